package history

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"llm-assistant/internal/llm"
	"llm-assistant/internal/storage"
)

func addPair(src *memSource, userID int64, q, a string) {
	src.add(userID, storage.KindUserMessage, q)
	src.add(userID, storage.KindAssistantReply, a)
}

func TestRecall_FindsMatchingPair(t *testing.T) {
	src := &memSource{}
	addPair(src, 1, "what is X", "X is Y")
	r := NewRecall(src, true, 3, 2000, zerolog.Nop())

	got := r.Search(context.Background(), 1, "tell me about X")
	if len(got) != 1 {
		t.Fatalf("expected one memory, got %+v", got)
	}
	if got[0].Role != llm.RoleSystem {
		t.Fatalf("memory should be a system turn: %+v", got[0])
	}
	if !strings.Contains(got[0].Content, "what is X") || !strings.Contains(got[0].Content, "X is Y") {
		t.Fatalf("memory lacks the exchange: %q", got[0].Content)
	}
	if !strings.HasPrefix(got[0].Content, "Relevant past conversation from 2024-01-01T10:01:00Z:\n") {
		t.Fatalf("memory lacks timestamp label: %q", got[0].Content)
	}
}

func TestRecall_DisabledOrEmptyQuery(t *testing.T) {
	src := &memSource{}
	addPair(src, 1, "weather today", "sunny weather")

	if got := NewRecall(src, false, 3, 2000, zerolog.Nop()).Search(context.Background(), 1, "weather"); len(got) != 0 {
		t.Fatalf("disabled recall returned %+v", got)
	}
	if got := NewRecall(src, true, 3, 2000, zerolog.Nop()).Search(context.Background(), 1, ""); len(got) != 0 {
		t.Fatalf("empty query returned %+v", got)
	}
}

func TestRecall_ZeroScoreExcludedAndSorted(t *testing.T) {
	src := &memSource{}
	addPair(src, 1, "unrelated chatter", "nothing here")      // 0
	addPair(src, 1, "something else", "mentions golang")       // 1
	addPair(src, 1, "golang channels", "channels in golang")   // 6
	addPair(src, 1, "tell me about golang", "sure")            // 2
	addPair(src, 1, "more unrelated chatter", "still nothing") // 0

	got := NewRecall(src, true, 10, 10000, zerolog.Nop()).Search(context.Background(), 1, "golang channels")
	if len(got) != 3 {
		t.Fatalf("expected 3 memories, got %d", len(got))
	}
	order := []string{"golang channels", "tell me about golang", "something else"}
	for i, want := range order {
		if !strings.Contains(got[i].Content, "User: "+want+"\n") {
			t.Fatalf("position %d: want %q in %q", i, want, got[i].Content)
		}
	}
	for _, m := range got {
		if strings.Contains(m.Content, "unrelated") {
			t.Fatalf("zero-score pair included: %q", m.Content)
		}
	}
}

func TestRecall_TiesKeepEncounterOrderAndTopN(t *testing.T) {
	src := &memSource{}
	addPair(src, 1, "first pizza", "ok")
	addPair(src, 1, "second pizza", "ok")
	addPair(src, 1, "third pizza", "ok")

	got := NewRecall(src, true, 2, 2000, zerolog.Nop()).Search(context.Background(), 1, "pizza")
	if len(got) != 2 {
		t.Fatalf("expected top 2, got %d", len(got))
	}
	if !strings.Contains(got[0].Content, "first pizza") || !strings.Contains(got[1].Content, "second pizza") {
		t.Fatalf("ties reordered: %q / %q", got[0].Content, got[1].Content)
	}
}

func TestRecall_BudgetStopsAtFirstOverflow(t *testing.T) {
	src := &memSource{}
	// equal scores, so encounter order decides
	addPair(src, 1, "rust rust "+strings.Repeat("a", 80), "ok")
	addPair(src, 1, "rust "+strings.Repeat("b", 300), "ok")
	addPair(src, 1, "rust", "ok")

	got := NewRecall(src, true, 3, 150, zerolog.Nop()).Search(context.Background(), 1, "rust")
	if len(got) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(got))
	}
	total := 0
	for _, m := range got {
		body := m.Content[strings.Index(m.Content, "\n")+1:]
		total += utf8.RuneCountInString(body)
	}
	if total > 150 {
		t.Fatalf("formatted length %d exceeds budget", total)
	}
}

func TestRecall_TrailingUnansweredDiscarded(t *testing.T) {
	src := &memSource{}
	addPair(src, 1, "kafka topics", "partitions explained")
	src.add(1, storage.KindUserMessage, "kafka consumers")

	got := NewRecall(src, true, 3, 2000, zerolog.Nop()).Search(context.Background(), 1, "kafka")
	if len(got) != 1 || strings.Contains(got[0].Content, "consumers") {
		t.Fatalf("unexpected memories: %+v", got)
	}
}

func TestRecall_IsolatedPerUser(t *testing.T) {
	src := &memSource{}
	addPair(src, 2, "secret project", "classified")
	got := NewRecall(src, true, 3, 2000, zerolog.Nop()).Search(context.Background(), 1, "secret project")
	if len(got) != 0 {
		t.Fatalf("leaked another user's memory: %+v", got)
	}
}

func TestRecall_ErrorYieldsEmpty(t *testing.T) {
	src := &memSource{err: errors.New("corrupt")}
	if got := NewRecall(src, true, 3, 2000, zerolog.Nop()).Search(context.Background(), 1, "anything"); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestPairs(t *testing.T) {
	events := []storage.Event{
		{Kind: storage.KindAssistantReply, Detail: "orphan reply"},
		{Kind: storage.KindUserMessage, Detail: "q1"},
		{Kind: storage.KindFAQListShown},
		{Kind: storage.KindAssistantReply, Detail: "a1"},
		{Kind: storage.KindUserMessage, Detail: "q2"},
		{Kind: storage.KindUserMessage, Detail: "q3"},
		{Kind: storage.KindAssistantReply, Detail: "a3"},
		{Kind: storage.KindUserMessage, Detail: "q4"},
	}
	got := Pairs(events)
	if len(got) != 2 {
		t.Fatalf("expected 2 pairs, got %+v", got)
	}
	if got[0].User != "q1" || got[0].Assistant != "a1" || got[1].User != "q3" || got[1].Assistant != "a3" {
		t.Fatalf("unexpected pairs: %+v", got)
	}
}

func TestKeywordsAndScore(t *testing.T) {
	kws := Keywords("Как настроить Redis, v7?")
	want := []string{"как", "настроить", "redis", "v7"}
	if strings.Join(kws, "|") != strings.Join(want, "|") {
		t.Fatalf("keywords = %v, want %v", kws, want)
	}
	p := Pair{User: "Настроить REDIS кластер", Assistant: "Redis настраивается так"}
	// настроить: user +2; redis: user +2, assistant +1
	if s := Score(p, kws); s != 5 {
		t.Fatalf("score = %d, want 5", s)
	}
}
