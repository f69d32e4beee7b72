package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisSeqKey      = "eventlog:seq"
	redisUsersKey    = "eventlog:users"
	redisContactsKey = "eventlog:contacts"
)

func redisUserKey(userID int64) string { return "eventlog:user:" + strconv.FormatInt(userID, 10) }

// RedisStore keeps one list of JSON events per user. The sequence increment
// and the push are separate commands, so list order can differ from id order
// under concurrent appends; reads sort by id.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore connects using a redis:// URL and pings the server.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) Append(ctx context.Context, userID int64, kind Kind, detail string) error {
	id, err := s.client.Incr(ctx, redisSeqKey).Result()
	if err != nil {
		return fmt.Errorf("incr seq: %w", err)
	}
	data, err := json.Marshal(Event{ID: id, UserID: userID, Kind: kind, Detail: detail, CreatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, redisUserKey(userID), data)
	pipe.SAdd(ctx, redisUsersKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *RedisStore) FetchRecent(ctx context.Context, userID int64, kinds []Kind, limit int) ([]Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	events, err := s.FetchAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := kindSet(kinds)
	var out []Event
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		if matches(set, events[i]) {
			out = append(out, events[i])
		}
	}
	return out, nil
}

func (s *RedisStore) FetchAll(ctx context.Context, userID int64) ([]Event, error) {
	vals, err := s.client.LRange(ctx, redisUserKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange user %d: %w", userID, err)
	}
	events := make([]Event, 0, len(vals))
	for _, v := range vals {
		var ev Event
		if err := json.Unmarshal([]byte(v), &ev); err != nil {
			continue // skip malformed entries
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events, nil
}

func (s *RedisStore) FetchSince(ctx context.Context, since time.Time) ([]Event, error) {
	users, err := s.client.SMembers(ctx, redisUsersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers: %w", err)
	}
	var out []Event
	for _, u := range users {
		id, err := strconv.ParseInt(u, 10, 64)
		if err != nil {
			continue
		}
		events, err := s.FetchAll(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if !ev.CreatedAt.Before(since) {
				out = append(out, ev)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *RedisStore) SaveContact(ctx context.Context, userID int64, name, contact string) error {
	data, err := json.Marshal(Contact{UserID: userID, Name: name, Contact: contact, CreatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal contact: %w", err)
	}
	if err := s.client.RPush(ctx, redisContactsKey, data).Err(); err != nil {
		return fmt.Errorf("rpush contact: %w", err)
	}
	return nil
}

func (s *RedisStore) ContactsSince(ctx context.Context, since time.Time) ([]Contact, error) {
	vals, err := s.client.LRange(ctx, redisContactsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange contacts: %w", err)
	}
	var out []Contact
	for _, v := range vals {
		var c Contact
		if err := json.Unmarshal([]byte(v), &c); err != nil {
			continue
		}
		if !c.CreatedAt.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}
