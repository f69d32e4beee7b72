package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	anthropicVersion = "2023-06-01"
	maxResponseBody  = 4 << 20
)

type anthropicProtocol struct{}

type anthropicRequest struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
	Stream    bool      `json:"stream"`
}

type anthropicResponse struct {
	Model      string          `json:"model"`
	Content    json.RawMessage `json:"content"`
	Completion *string         `json:"completion"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (anthropicProtocol) Complete(ctx context.Context, hc *http.Client, m ModelDescriptor, req Request) (Response, error) {
	// The messages API takes system turns as a separate top-level field.
	var system []string
	turns := make([]Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}
	payload, err := json.Marshal(anthropicRequest{
		Model:     m.RemoteModel(),
		System:    strings.Join(system, "\n\n"),
		Messages:  turns,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return Response{}, &Error{Kind: KindConfig, Model: m.Name, Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return Response{}, &Error{Kind: KindConfig, Model: m.Name, Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	if key := m.Key(); key != "" {
		httpReq.Header.Set("x-api-key", key)
	}
	for k, v := range m.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := hc.Do(httpReq)
	if err != nil {
		return Response{}, &Error{Kind: KindTransport, Model: m.Name, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Response{}, &Error{Kind: KindTransport, Model: m.Name, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode >= 300 {
		return Response{}, statusError(m.Name, resp.StatusCode, string(body))
	}

	text, parsed, err := parseAnthropic(body)
	if err != nil {
		return Response{}, &Error{Kind: KindMalformed, Model: m.Name, Body: snippet(string(body)), Err: err}
	}
	out := Response{Content: text, Model: parsed.Model}
	if out.Model == "" {
		out.Model = m.RemoteModel()
	}
	out.PromptTokens = parsed.Usage.InputTokens
	out.CompletionTokens = parsed.Usage.OutputTokens
	out.TotalTokens = out.PromptTokens + out.CompletionTokens
	return out, nil
}

// parseAnthropic extracts text from a messages API response, falling back
// to the legacy completion field and then to an OpenAI-style choices list.
func parseAnthropic(body []byte) (string, anthropicResponse, error) {
	var r anthropicResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return "", r, fmt.Errorf("decode response: %w", err)
	}
	var blocks []anthropicBlock
	if len(r.Content) > 0 && json.Unmarshal(r.Content, &blocks) == nil && blocks != nil {
		var sb strings.Builder
		for _, b := range blocks {
			if b.Type == "text" {
				sb.WriteString(b.Text)
			}
		}
		return sb.String(), r, nil
	}
	if r.Completion != nil {
		return *r.Completion, r, nil
	}
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content, r, nil
	}
	return "", r, errors.New("unexpected response shape")
}
