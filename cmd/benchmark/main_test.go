package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-assistant/internal/llm"
)

type fakeGenerator struct {
	delays map[string]time.Duration
}

func (f fakeGenerator) GenerateWith(ctx context.Context, name string, _ []llm.Message) (llm.Response, error) {
	if name == "broken" {
		return llm.Response{}, &llm.Error{Kind: llm.KindAuth, Model: name, Status: 401}
	}
	select {
	case <-time.After(f.delays[name]):
	case <-ctx.Done():
		return llm.Response{}, ctx.Err()
	}
	return llm.Response{Content: "<think>x</think>ответ " + name, TotalTokens: 10}, nil
}

func TestRunBenchmark(t *testing.T) {
	gen := fakeGenerator{delays: map[string]time.Duration{"slow": 30 * time.Millisecond}}
	results := runBenchmark(context.Background(), gen, []string{"slow", "fast", "broken"}, nil, time.Second)
	require.Len(t, results, 3)

	assert.Equal(t, "slow", results[0].Model)
	assert.Equal(t, "ответ slow", results[0].Response)
	assert.Equal(t, len([]rune("ответ slow")), results[0].ResponseLength)

	var le *llm.Error
	assert.True(t, errors.As(results[2].Err, &le))

	s := summarize(results)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 10, s.AvgTokens)
	assert.Equal(t, "fast", s.Fastest)
}

func TestRunBenchmark_Timeout(t *testing.T) {
	gen := fakeGenerator{delays: map[string]time.Duration{"slow": time.Second}}
	results := runBenchmark(context.Background(), gen, []string{"slow"}, nil, 10*time.Millisecond)
	assert.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
	assert.Equal(t, 0, summarize(results).Succeeded)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "при...", truncateString("привет", 3))
	assert.Equal(t, "hi", truncateString("hi", 3))
}
