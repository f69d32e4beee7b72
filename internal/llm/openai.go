package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// openaiProtocol covers OpenAI and every compatible server (LM Studio,
// Ollama, OpenRouter, Fireworks, Together).
type openaiProtocol struct{}

type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone request to avoid mutating the original
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}

// withHeaders returns hc, or a copy of it that adds the descriptor's extra
// headers (HTTP-Referer and X-Title for OpenRouter, for example).
func withHeaders(hc *http.Client, extra map[string]string) *http.Client {
	if len(extra) == 0 {
		return hc
	}
	h := http.Header{}
	for k, v := range extra {
		h.Set(k, v)
	}
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	cp := *hc
	cp.Transport = headerTransport{rt: base, headers: h}
	return &cp
}

// openaiBaseURL turns a full chat completions URL into the base URL the
// client library appends its own path to.
func openaiBaseURL(endpoint string) string {
	return strings.TrimSuffix(strings.TrimRight(endpoint, "/"), "/chat/completions")
}

func (openaiProtocol) Complete(ctx context.Context, hc *http.Client, m ModelDescriptor, req Request) (Response, error) {
	config := openai.DefaultConfig(m.Key())
	config.BaseURL = openaiBaseURL(m.Endpoint)
	config.HTTPClient = withHeaders(hc, m.Headers)
	client := openai.NewClientWithConfig(config)

	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     m.RemoteModel(),
		Messages:  oaMsgs,
		MaxTokens: req.MaxTokens,
		Stream:    false,
	})
	if err != nil {
		return Response{}, openaiError(m.Name, err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, &Error{Kind: KindMalformed, Model: m.Name, Err: errors.New("response has no choices")}
	}

	out := Response{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
	}
	if out.Model == "" {
		out.Model = m.RemoteModel()
	}
	out.PromptTokens = resp.Usage.PromptTokens
	out.CompletionTokens = resp.Usage.CompletionTokens
	out.TotalTokens = resp.Usage.TotalTokens
	return out, nil
}

func openaiError(model string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return statusError(model, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		// Err holds the decode failure of a non-JSON error body; Body is the payload.
		body := strings.TrimSpace(string(reqErr.Body))
		if body == "" {
			body = http.StatusText(reqErr.HTTPStatusCode)
		}
		return statusError(model, reqErr.HTTPStatusCode, body)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &Error{Kind: KindMalformed, Model: model, Err: err}
	}
	return &Error{Kind: KindTransport, Model: model, Err: err}
}
