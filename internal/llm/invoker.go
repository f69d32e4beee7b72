package llm

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"llm-assistant/internal/metrics"
)

// Options tune the invoker. Zero values fall back to the defaults below.
type Options struct {
	Attempts       int
	InitialDelay   time.Duration
	RequestTimeout time.Duration
	MaxTokens      int
	InsecureTLS    bool
	// Timer drives the waits between attempts; nil uses real timers.
	Timer backoff.Timer
}

const (
	defaultAttempts       = 3
	defaultInitialDelay   = time.Second
	defaultRequestTimeout = 60 * time.Second
	defaultMaxTokens      = 1024
)

// Invoker resolves a model from the catalog and calls it with retries.
// Every failure it returns is an *Error.
type Invoker struct {
	catalog  *Catalog
	factory  *Factory
	opts     Options
	log      zerolog.Logger
	secure   *http.Client
	insecure *http.Client
}

func NewInvoker(catalog *Catalog, factory *Factory, opts Options, log zerolog.Logger) *Invoker {
	if opts.Attempts <= 0 {
		opts.Attempts = defaultAttempts
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = defaultInitialDelay
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if factory == nil {
		factory = NewFactory()
	}
	return &Invoker{
		catalog:  catalog,
		factory:  factory,
		opts:     opts,
		log:      log,
		secure:   newHTTPClient(false),
		insecure: newHTTPClient(true),
	}
}

func newHTTPClient(insecure bool) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &http.Client{Transport: tr}
}

// Generate calls the default model.
func (i *Invoker) Generate(ctx context.Context, messages []Message) (Response, error) {
	return i.GenerateWith(ctx, "", messages)
}

// GenerateWith calls the named model, or the default when name is empty.
func (i *Invoker) GenerateWith(ctx context.Context, name string, messages []Message) (Response, error) {
	log := i.logger(ctx)
	if name == "" {
		name = i.catalog.DefaultName()
	}
	m, err := i.catalog.Resolve(name)
	if err != nil {
		le := &Error{Kind: KindConfig, Model: name, Err: err}
		i.finish(log, name, time.Now(), le)
		return Response{}, le
	}
	if m.NeedsKey() && m.Key() == "" {
		le := &Error{Kind: KindConfig, Model: m.Name, Err: fmt.Errorf("API key for model %s is not configured", m.Name)}
		i.finish(log, m.Name, time.Now(), le)
		return Response{}, le
	}
	proto, err := i.factory.Protocol(m.ServiceName())
	if err != nil {
		le := &Error{Kind: KindConfig, Model: m.Name, Err: err}
		i.finish(log, m.Name, time.Now(), le)
		return Response{}, le
	}

	req := Request{Messages: messages, MaxTokens: i.opts.MaxTokens}
	insecure := i.opts.InsecureTLS
	tlsFallbackUsed := false
	attempt := 0
	var out Response

	op := func() error {
		attempt++
		resp, err := i.attempt(ctx, proto, m, req, insecure)
		if err != nil && !insecure && !tlsFallbackUsed && isCertError(err) {
			tlsFallbackUsed = true
			log.Warn().Err(err).Str("model", m.Name).Msg("certificate verification failed, retrying once without verification")
			resp, err = i.attempt(ctx, proto, m, req, true)
		}
		if err != nil {
			le := classify(ctx, m.Name, err)
			if !le.Retryable() {
				return backoff.Permanent(le)
			}
			return le
		}
		out = resp
		return nil
	}
	notify := func(err error, next time.Duration) {
		metrics.LLMRetriesTotal.WithLabelValues(m.Name).Inc()
		ev := log.Warn().Err(err).Str("model", m.Name).Int("attempt", attempt).Dur("backoff", next)
		var le *Error
		if errors.As(err, &le) && le.Status != 0 {
			ev = ev.Int("status", le.Status)
		}
		ev.Msg("llm request failed, retrying")
	}

	start := time.Now()
	b := backoff.WithContext(backoff.WithMaxRetries(i.newBackOff(), uint64(i.opts.Attempts-1)), ctx)
	if err := backoff.RetryNotifyWithTimer(op, b, notify, i.opts.Timer); err != nil {
		le := classify(ctx, m.Name, err)
		i.finish(log.With().Int("attempts", attempt).Logger(), m.Name, start, le)
		return Response{}, le
	}
	i.finish(log.With().Int("attempts", attempt).Logger(), m.Name, start, nil)
	return out, nil
}

func (i *Invoker) attempt(ctx context.Context, p Protocol, m ModelDescriptor, req Request, insecure bool) (Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, i.opts.RequestTimeout)
	defer cancel()
	hc := i.secure
	if insecure {
		hc = i.insecure
	}
	return p.Complete(attemptCtx, hc, m, req)
}

func (i *Invoker) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = i.opts.InitialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Hour
	b.MaxElapsedTime = 0
	return b
}

func (i *Invoker) finish(log zerolog.Logger, model string, start time.Time, le *Error) {
	metrics.LLMRequestDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	if le == nil {
		metrics.LLMRequestsTotal.WithLabelValues(model, "ok").Inc()
		log.Debug().Str("model", model).Dur("took", time.Since(start)).Msg("llm responded")
		return
	}
	metrics.LLMRequestsTotal.WithLabelValues(model, string(le.Kind)).Inc()
	ev := log.Error().Str("model", model).Str("kind", string(le.Kind))
	if le.Status != 0 {
		ev = ev.Int("status", le.Status).Str("body", le.Body)
	}
	if le.Err != nil {
		ev = ev.AnErr("cause", le.Err)
	}
	ev.Msg("llm request failed")
}

// logger prefers a request-scoped logger carried in ctx.
func (i *Invoker) logger(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return i.log
}

// classify turns any failure into an *Error. Expiry of the caller's context
// is a timeout regardless of what the attempt reported.
func classify(ctx context.Context, model string, err error) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Error{Kind: KindTimeout, Model: model, Err: ctxErr}
	}
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	return &Error{Kind: KindTransport, Model: model, Err: err}
}

func isCertError(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	var authorityErr x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &verifyErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}
