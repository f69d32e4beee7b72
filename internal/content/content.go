// Package content holds the static FAQ and service catalog shown by bot
// commands.
package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type FAQItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type FAQ []FAQItem

type Service struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UnmarshalJSON accepts numeric or string ids.
func (s *Service) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          json.RawMessage `json:"id"`
		Name        string          `json:"name"`
		Description string          `json:"description"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Name, s.Description = raw.Name, raw.Description
	s.ID = strings.Trim(string(raw.ID), `"`)
	return nil
}

// LoadFAQ reads a JSON FAQ list. A missing file yields an empty FAQ.
func LoadFAQ(path string) (FAQ, error) {
	var faq FAQ
	if err := loadJSON(path, &faq); err != nil {
		return nil, fmt.Errorf("load faq: %w", err)
	}
	return faq, nil
}

// LoadServices reads a JSON service list. A missing file yields no services.
func LoadServices(path string) ([]Service, error) {
	var services []Service
	if err := loadJSON(path, &services); err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	return services, nil
}

func loadJSON(path string, v any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Find matches text as a 1-based question number, or else as a
// case-insensitive substring of a question.
func (f FAQ) Find(text string) (FAQItem, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return FAQItem{}, false
	}
	if n, err := strconv.Atoi(text); err == nil {
		if n >= 1 && n <= len(f) && f[n-1].Answer != "" {
			return f[n-1], true
		}
		return FAQItem{}, false
	}
	needle := strings.ToLower(text)
	for _, item := range f {
		if strings.Contains(strings.ToLower(item.Question), needle) {
			return item, item.Answer != ""
		}
	}
	return FAQItem{}, false
}

// List renders the numbered question list.
func (f FAQ) List() string {
	var b strings.Builder
	b.WriteString("Часто задаваемые вопросы:\n")
	for i, item := range f {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, item.Question)
	}
	b.WriteString("\n\nОтправьте номер или текст вопроса для получения ответа.")
	return b.String()
}

// FormatServices renders the service catalog; empty input yields the
// "unavailable" notice.
func FormatServices(services []Service) string {
	if len(services) == 0 {
		return "Каталог услуг временно недоступен."
	}
	var b strings.Builder
	b.WriteString("Наши услуги:\n")
	for _, s := range services {
		fmt.Fprintf(&b, "\n%s. %s\n%s\n", s.ID, s.Name, s.Description)
	}
	return b.String()
}
