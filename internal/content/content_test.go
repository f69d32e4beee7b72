package content

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleFAQ() FAQ {
	return FAQ{
		{Question: "Сколько стоит консультация?", Answer: "Первая консультация бесплатна."},
		{Question: "Как с вами связаться?", Answer: "Напишите /start."},
	}
}

func TestFAQFind(t *testing.T) {
	f := sampleFAQ()
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1", "Первая консультация бесплатна.", true},
		{" 2 ", "Напишите /start.", true},
		{"3", "", false},
		{"0", "", false},
		{"СВЯЗАТЬСЯ", "Напишите /start.", true},
		{"стоит", "Первая консультация бесплатна.", true},
		{"доставка", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		item, ok := f.Find(c.in)
		if ok != c.ok || item.Answer != c.want {
			t.Errorf("Find(%q) = (%q, %v), want (%q, %v)", c.in, item.Answer, ok, c.want, c.ok)
		}
	}
}

func TestFAQList(t *testing.T) {
	got := sampleFAQ().List()
	want := "Часто задаваемые вопросы:\n1. Сколько стоит консультация?\n2. Как с вами связаться?\n\nОтправьте номер или текст вопроса для получения ответа."
	if got != want {
		t.Fatalf("List() = %q", got)
	}
}

func TestLoadAndFormatServices(t *testing.T) {
	p := filepath.Join(t.TempDir(), "services.json")
	data := `[{"id": 1, "name": "Аудит", "description": "Проверка кода"}, {"id": "b2", "name": "Обучение", "description": "Курсы"}]`
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	services, err := LoadServices(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(services) != 2 || services[0].ID != "1" || services[1].ID != "b2" {
		t.Fatalf("unexpected services: %+v", services)
	}
	text := FormatServices(services)
	if !strings.HasPrefix(text, "Наши услуги:\n\n1. Аудит\nПроверка кода\n") {
		t.Fatalf("unexpected text: %q", text)
	}
	if FormatServices(nil) != "Каталог услуг временно недоступен." {
		t.Fatal("empty catalog text mismatch")
	}
}

func TestLoadMissingFiles(t *testing.T) {
	faq, err := LoadFAQ(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil || len(faq) != 0 {
		t.Fatalf("expected empty faq, got %v %v", faq, err)
	}
	p := filepath.Join(t.TempDir(), "bad.json")
	_ = os.WriteFile(p, []byte("{"), 0o644)
	if _, err := LoadFAQ(p); err == nil {
		t.Fatal("expected parse error")
	}
}
