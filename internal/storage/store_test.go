package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock hands out strictly increasing timestamps.
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{cur: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

func openAll(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	sq, err := NewSQLiteStore(filepath.Join(dir, "events.db"))
	require.NoError(t, err)
	sq.now = newFakeClock().Now
	t.Cleanup(func() { sq.Close() })

	fs, err := NewFileStore(filepath.Join(dir, "events.jsonl"))
	require.NoError(t, err)
	fs.now = newFakeClock().Now

	mr := miniredis.RunT(t)
	rs := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	rs.now = newFakeClock().Now
	t.Cleanup(func() { rs.Close() })

	return map[string]Store{"sqlite": sq, "jsonl": fs, "redis": rs}
}

func TestStore_FetchRecentNewestFirstFiltered(t *testing.T) {
	ctx := context.Background()
	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Append(ctx, 1, KindUserMessage, "q1"))
			require.NoError(t, s.Append(ctx, 1, KindAssistantReply, "a1"))
			require.NoError(t, s.Append(ctx, 1, KindContactSubmitted, "name=x, contact=y"))
			require.NoError(t, s.Append(ctx, 2, KindUserMessage, "other user"))
			require.NoError(t, s.Append(ctx, 1, KindUserMessage, "q2"))

			got, err := s.FetchRecent(ctx, 1, ConversationKinds, 2)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "q2", got[0].Detail)
			assert.Equal(t, "a1", got[1].Detail)
			assert.Greater(t, got[0].ID, got[1].ID)

			all, err := s.FetchRecent(ctx, 1, ConversationKinds, 10)
			require.NoError(t, err)
			assert.Len(t, all, 3)
			for _, ev := range all {
				assert.Equal(t, int64(1), ev.UserID)
				assert.NotEqual(t, KindContactSubmitted, ev.Kind)
			}

			none, err := s.FetchRecent(ctx, 1, ConversationKinds, 0)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestStore_FetchAllOldestFirst(t *testing.T) {
	ctx := context.Background()
	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Append(ctx, 7, KindUserMessage, "first"))
			require.NoError(t, s.Append(ctx, 8, KindUserMessage, "foreign"))
			require.NoError(t, s.Append(ctx, 7, KindFAQListShown, ""))
			require.NoError(t, s.Append(ctx, 7, KindAssistantReply, "last"))

			got, err := s.FetchAll(ctx, 7)
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, "first", got[0].Detail)
			assert.Equal(t, KindFAQListShown, got[1].Kind)
			assert.Equal(t, "last", got[2].Detail)
			assert.True(t, got[0].CreatedAt.Before(got[2].CreatedAt))

			empty, err := s.FetchAll(ctx, 999)
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestStore_RoundTripPreservesText(t *testing.T) {
	ctx := context.Background()
	text := "Привет! Как дела? 👋 «кавычки» \"quotes\"\nвторая строка"
	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Append(ctx, 5, KindUserMessage, text))
			got, err := s.FetchRecent(ctx, 5, []Kind{KindUserMessage}, 1)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, text, got[0].Detail)
		})
	}
}

func TestStore_FetchSince(t *testing.T) {
	ctx := context.Background()
	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Append(ctx, 1, KindUserMessage, "early"))  // 10:00:01
			require.NoError(t, s.Append(ctx, 2, KindUserMessage, "middle")) // 10:00:02
			require.NoError(t, s.Append(ctx, 1, KindUserMessage, "late"))   // 10:00:03

			got, err := s.FetchSince(ctx, time.Date(2024, 1, 1, 10, 0, 2, 0, time.UTC))
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "middle", got[0].Detail)
			assert.Equal(t, "late", got[1].Detail)
		})
	}
}

func TestStore_ContactsSince(t *testing.T) {
	ctx := context.Background()
	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			// saved at 10:00:01, 10:00:02 and 10:00:03
			require.NoError(t, s.SaveContact(ctx, 3, "Иван", "+7 900"))
			require.NoError(t, s.SaveContact(ctx, 4, "Анна", "@anna"))
			require.NoError(t, s.SaveContact(ctx, 5, "Пётр", "p@x.org"))

			got, err := s.ContactsSince(ctx, time.Date(2024, 1, 1, 10, 0, 2, 0, time.UTC))
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "Анна", got[0].Name)
			assert.Equal(t, "@anna", got[0].Contact)
			assert.Equal(t, int64(5), got[1].UserID)
		})
	}
}

func TestRedisStore_FetchAllOrdersByID(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(client)
	t.Cleanup(func() { s.Close() })

	// Two appends whose pushes landed in the opposite order of their ids.
	for _, id := range []int64{2, 1} {
		data, err := json.Marshal(Event{ID: id, UserID: 7, Kind: KindUserMessage, Detail: fmt.Sprint(id)})
		require.NoError(t, err)
		require.NoError(t, client.RPush(ctx, redisUserKey(7), data).Err())
	}

	all, err := s.FetchAll(ctx, 7)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(1), all[0].ID)
	assert.Equal(t, int64(2), all[1].ID)

	recent, err := s.FetchRecent(ctx, 7, ConversationKinds, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, int64(2), recent[0].ID)
}

func TestSQLiteStore_ContactsAndReopen(t *testing.T) {
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "nested", "contacts.db")
	s, err := NewSQLiteStore(p)
	require.NoError(t, err)
	require.NoError(t, s.SaveContact(ctx, 3, "Анна", "@anna"))
	require.NoError(t, s.Append(ctx, 3, KindUserMessage, "hi"))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(p)
	require.NoError(t, err)
	defer s.Close()

	contacts, err := s.ContactsSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Анна", contacts[0].Name)

	events, err := s.FetchAll(ctx, 3)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestSQLiteStore_ReadsLegacyTimestamps(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "legacy.db"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO history (user_id, action, details, created_at) VALUES (?, ?, ?, ?)`,
		11, "user_message", "old", "2024-01-01T10:00:00.123456")
	require.NoError(t, err)

	events, err := s.FetchAll(ctx, 11)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 2024, events[0].CreatedAt.Year())
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mongo", "", "")
	assert.Error(t, err)
}
