package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Request is what every protocol receives for one attempt.
type Request struct {
	Messages  []Message
	MaxTokens int
}

// Protocol speaks one provider's wire format. Implementations return *Error
// for HTTP status failures and wrap transport failures so the invoker can
// classify them.
type Protocol interface {
	Complete(ctx context.Context, hc *http.Client, m ModelDescriptor, req Request) (Response, error)
}

// Factory maps a descriptor's service to its protocol.
type Factory struct {
	protocols map[string]Protocol
}

func NewFactory() *Factory {
	return &Factory{protocols: map[string]Protocol{
		ServiceOpenAI:    openaiProtocol{},
		ServiceAnthropic: anthropicProtocol{},
		ServiceYandex:    newYandexProtocol(),
	}}
}

// Register replaces or adds the protocol for a service.
func (f *Factory) Register(service string, p Protocol) {
	f.protocols[strings.ToLower(service)] = p
}

func (f *Factory) Protocol(service string) (Protocol, error) {
	p, ok := f.protocols[strings.ToLower(service)]
	if !ok {
		return nil, fmt.Errorf("unknown llm service: %s", service)
	}
	return p, nil
}
