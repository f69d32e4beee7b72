package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"llm-assistant/internal/storage"
)

// DailyStats содержит статистику за день
type DailyStats struct {
	Date              string               `json:"date"`
	TotalMessages     int                  `json:"total_messages"`
	AssistantReplies  int                  `json:"assistant_replies"`
	UniqueUsers       int                  `json:"unique_users"`
	ContactsSubmitted int                  `json:"contacts_submitted"`
	FAQAnswered       int                  `json:"faq_answered"`
	FAQNotFound       int                  `json:"faq_not_found"`
	EventsByKind      map[storage.Kind]int `json:"events_by_kind"`
	UserStats         map[int64]UserStats  `json:"user_stats"`
	NewContacts       []storage.Contact    `json:"new_contacts,omitempty"`
}

// UserStats содержит статистику по пользователю
type UserStats struct {
	UserID   int64 `json:"user_id"`
	Messages int   `json:"messages"`
	Replies  int   `json:"replies"`
}

// EventLoader отдаёт события и контакты начиная с момента since
type EventLoader interface {
	FetchSince(ctx context.Context, since time.Time) ([]storage.Event, error)
	ContactsSince(ctx context.Context, since time.Time) ([]storage.Contact, error)
}

// AnalyzeDailyLogs анализирует события за указанную дату
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	// Нормализуем дату до начала дня
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	stats := &DailyStats{
		Date:         startOfDay.Format("2006-01-02"),
		EventsByKind: make(map[storage.Kind]int),
		UserStats:    make(map[int64]UserStats),
	}
	uniqueUsers := make(map[int64]bool)

	for _, event := range events {
		if event.CreatedAt.Before(startOfDay) || !event.CreatedAt.Before(endOfDay) {
			continue
		}
		stats.EventsByKind[event.Kind]++

		switch event.Kind {
		case storage.KindUserMessage:
			stats.TotalMessages++
			uniqueUsers[event.UserID] = true
			us := stats.UserStats[event.UserID]
			us.UserID = event.UserID
			us.Messages++
			stats.UserStats[event.UserID] = us
		case storage.KindAssistantReply:
			stats.AssistantReplies++
			if us, ok := stats.UserStats[event.UserID]; ok {
				us.Replies++
				stats.UserStats[event.UserID] = us
			}
		case storage.KindContactSubmitted:
			stats.ContactsSubmitted++
		case storage.KindFAQAnswered:
			stats.FAQAnswered++
		case storage.KindFAQNotFound:
			stats.FAQNotFound++
		}
	}

	stats.UniqueUsers = len(uniqueUsers)
	return stats
}

// DailyReport загружает события за день, в который попадает now
func DailyReport(ctx context.Context, src EventLoader, now time.Time) (*DailyStats, error) {
	now = now.UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	events, err := src.FetchSince(ctx, startOfDay)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	contacts, err := src.ContactsSince(ctx, startOfDay)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	stats := AnalyzeDailyLogs(events, startOfDay)
	endOfDay := startOfDay.Add(24 * time.Hour)
	for _, c := range contacts {
		if c.CreatedAt.Before(endOfDay) {
			stats.NewContacts = append(stats.NewContacts, c)
		}
	}
	return stats, nil
}

// GenerateReportSummary создает текстовое резюме для администратора
func (ds *DailyStats) GenerateReportSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, `Статистика ассистента за %s:

Общая активность:
- Сообщений пользователей: %d
- Ответов ассистента: %d
- Уникальных пользователей: %d
- Оставлено контактов: %d
- FAQ: найдено ответов %d, не найдено %d

`, ds.Date, ds.TotalMessages, ds.AssistantReplies, ds.UniqueUsers, ds.ContactsSubmitted, ds.FAQAnswered, ds.FAQNotFound)

	ids := make([]int64, 0, len(ds.UserStats))
	for id := range ds.UserStats {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, c := ds.UserStats[ids[i]], ds.UserStats[ids[j]]
		if a.Messages != c.Messages {
			return a.Messages > c.Messages
		}
		return ids[i] < ids[j]
	})

	fmt.Fprintf(&b, "Активность пользователей (%d пользователей):\n", len(ids))
	for _, id := range ids {
		us := ds.UserStats[id]
		fmt.Fprintf(&b, "- Пользователь %d: %d сообщений, %d ответов\n", id, us.Messages, us.Replies)
	}

	if len(ds.NewContacts) > 0 {
		fmt.Fprintf(&b, "\nНовые контакты (%d):\n", len(ds.NewContacts))
		for _, c := range ds.NewContacts {
			fmt.Fprintf(&b, "- %s: %s (пользователь %d)\n", c.Name, c.Contact, c.UserID)
		}
	}
	return b.String()
}

// ToJSON сериализует статистику в JSON для детального анализа
func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
