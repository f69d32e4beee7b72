package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Kind tags what an event records.
type Kind string

const (
	KindUserMessage       Kind = "user_message"
	KindAssistantReply    Kind = "assistant_reply"
	KindContactSubmitted  Kind = "contact_submitted"
	KindFAQListShown      Kind = "faq_list_shown"
	KindFAQAnswered       Kind = "faq_answered"
	KindFAQNotFound       Kind = "faq_not_found"
	KindServicesListShown Kind = "services_list_shown"
)

// ConversationKinds are the kinds that make up the dialogue itself.
var ConversationKinds = []Kind{KindUserMessage, KindAssistantReply}

// Event is one immutable record in a user's log. IDs grow with insertion
// order; CreatedAt is always UTC.
type Event struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Kind      Kind      `json:"action"`
	Detail    string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// Contact is a name/contact pair left by a user in the /start flow.
type Contact struct {
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is an append-only event log scoped by user id.
// FetchRecent returns at most limit events of the given kinds, newest first.
// FetchAll returns every event of the user, oldest first.
// FetchSince returns events of all users created at or after since, oldest first.
// ContactsSince returns contacts saved at or after since, oldest first.
// Implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, userID int64, kind Kind, detail string) error
	FetchRecent(ctx context.Context, userID int64, kinds []Kind, limit int) ([]Event, error)
	FetchAll(ctx context.Context, userID int64) ([]Event, error)
	FetchSince(ctx context.Context, since time.Time) ([]Event, error)
	SaveContact(ctx context.Context, userID int64, name, contact string) error
	ContactsSince(ctx context.Context, since time.Time) ([]Contact, error)
	Close() error
}

// timeLayout is fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// legacyLayout matches naive ISO timestamps written by older deployments.
const legacyLayout = "2006-01-02T15:04:05.999999"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, legacyLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func kindSet(kinds []Kind) map[Kind]bool {
	if len(kinds) == 0 {
		return nil
	}
	set := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return set
}

// matches reports whether ev is one of set; a nil set matches everything.
func matches(set map[Kind]bool, ev Event) bool {
	return set == nil || set[ev.Kind]
}

// FormatContactDetail renders the detail text of a contact_submitted event.
func FormatContactDetail(name, contact string) string {
	return fmt.Sprintf("name=%s, contact=%s", strings.TrimSpace(name), strings.TrimSpace(contact))
}

// Open builds the store selected by driver: "sqlite", "jsonl" or "redis".
func Open(ctx context.Context, driver, path, redisURL string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLiteStore(path)
	case "jsonl":
		return NewFileStore(path)
	case "redis":
		return NewRedisStore(ctx, redisURL)
	default:
		return nil, fmt.Errorf("unknown event log driver: %s", driver)
	}
}
