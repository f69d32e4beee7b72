package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Morwran/yagpt"
)

// IAM tokens live for 12 hours; refresh well before that.
const iamTokenTTL = time.Hour

type iamToken struct {
	value   string
	expires time.Time
}

// yandexProtocol calls YandexGPT. The descriptor's key is the OAuth token
// and FolderID selects the cloud folder. The library manages its own HTTP
// client, so hc is not used.
type yandexProtocol struct {
	mu     sync.Mutex
	tokens map[string]iamToken
	now    func() time.Time
}

func newYandexProtocol() *yandexProtocol {
	return &yandexProtocol{tokens: make(map[string]iamToken), now: time.Now}
}

func (p *yandexProtocol) iamToken(oauthToken string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.tokens[oauthToken]; ok && p.now().Before(t.expires) {
		return t.value, nil
	}
	iam, err := yagpt.NewYaIam(oauthToken)
	if err != nil {
		return "", fmt.Errorf("failed to init yandex iam: %w", err)
	}
	resp, err := iam.Create()
	if err != nil {
		return "", fmt.Errorf("failed to create iam token: %w", err)
	}
	p.tokens[oauthToken] = iamToken{value: resp.IamToken, expires: p.now().Add(iamTokenTTL)}
	return resp.IamToken, nil
}

func (p *yandexProtocol) Complete(ctx context.Context, _ *http.Client, m ModelDescriptor, req Request) (Response, error) {
	if m.FolderID == "" {
		return Response{}, &Error{Kind: KindConfig, Model: m.Name, Err: errors.New("folder_id is required for yandex models")}
	}
	token, err := p.iamToken(m.Key())
	if err != nil {
		return Response{}, &Error{Kind: KindTransport, Model: m.Name, Err: err}
	}
	ya, err := yagpt.NewYagpt(m.FolderID)
	if err != nil {
		return Response{}, &Error{Kind: KindConfig, Model: m.Name, Err: fmt.Errorf("failed to init yagpt: %w", err)}
	}

	messages := make([]yagpt.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, yagpt.Message{Role: msg.Role, Content: msg.Content})
	}
	resp, err := ya.CompletionWithCtx(ctx, token, messages)
	if err != nil {
		return Response{}, &Error{Kind: KindTransport, Model: m.Name, Err: fmt.Errorf("yagpt completion failed: %w", err)}
	}
	if resp == nil || len(resp.Alternatives) == 0 {
		return Response{}, &Error{Kind: KindMalformed, Model: m.Name, Err: errors.New("yagpt returned empty response")}
	}
	out := Response{Content: resp.Alternatives[0].Message.Content, Model: yagpt.YaModelLite}
	out.PromptTokens = int(resp.Usage.InputTextTokens)
	out.CompletionTokens = int(resp.Usage.CompletionTokens)
	out.TotalTokens = int(resp.Usage.TotalTokens)
	return out, nil
}
