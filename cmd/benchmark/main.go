package main

import (
	"context"
	"flag"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"llm-assistant/internal/history"
	"llm-assistant/internal/keys"
	"llm-assistant/internal/llm"
)

const defaultQuestion = "Кратко расскажите, чем вы можете помочь клиенту?"

// BenchmarkResult одна попытка вызова модели
type BenchmarkResult struct {
	Model          string
	Response       string
	Tokens         int
	Duration       time.Duration
	ResponseLength int
	Err            error
}

type generator interface {
	GenerateWith(ctx context.Context, name string, messages []llm.Message) (llm.Response, error)
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	modelsFile := flag.String("models", envOr("LLM_MODELS_FILE", "llm_models.json"), "path to the model catalog")
	question := flag.String("q", defaultQuestion, "question sent to every model")
	only := flag.String("only", "", "comma-separated model names, default is the whole catalog")
	timeout := flag.Duration("timeout", 90*time.Second, "per-model timeout")
	flag.Parse()

	var dec keys.Decrypter
	if mk := os.Getenv("LLM_MODEL_DECRYPT_KEY"); mk != "" {
		master, err := keys.ParseMasterKey(mk)
		if err != nil {
			log.Fatalf("invalid master key: %v", err)
		}
		c, err := keys.New(os.Getenv("LLM_KEY_CIPHER"), master)
		if err != nil {
			log.Fatalf("invalid key cipher: %v", err)
		}
		dec = c
	}

	catalog, err := llm.LoadCatalog(*modelsFile, "", dec)
	if err != nil {
		log.Fatalf("failed to load catalog: %v", err)
	}
	names := catalog.Names()
	if *only != "" {
		names = strings.Split(*only, ",")
	}
	if len(names) == 0 {
		log.Fatalf("no models to benchmark in %s", *modelsFile)
	}

	inv := llm.NewInvoker(catalog, llm.NewFactory(), llm.Options{Attempts: 1}, zerolog.Nop())
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: history.SystemDirective},
		{Role: llm.RoleUser, Content: *question},
	}

	log.Printf("Starting %d parallel model tests...", len(names))
	results := runBenchmark(context.Background(), inv, names, messages, *timeout)
	for _, r := range results {
		if r.Err != nil {
			log.Printf("  %s failed: %s", r.Model, llm.UserMessage(r.Err))
			continue
		}
		log.Printf("  %s: %d tokens, %v, %d chars\n%s\n", r.Model, r.Tokens, r.Duration, r.ResponseLength, truncateString(r.Response, 300))
	}
	printSummaryStats(results)
}

// runBenchmark calls every model once in parallel; results follow names order.
func runBenchmark(ctx context.Context, gen generator, names []string, messages []llm.Message, timeout time.Duration) []BenchmarkResult {
	results := make([]BenchmarkResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			requestCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			resp, err := gen.GenerateWith(requestCtx, name, messages)
			r := BenchmarkResult{Model: name, Duration: time.Since(start), Err: err}
			if err == nil {
				r.Response = llm.StripThinking(resp.Content)
				r.Tokens = resp.TotalTokens
				r.ResponseLength = len([]rune(r.Response))
			}
			results[i] = r
		}(i, strings.TrimSpace(name))
	}
	wg.Wait()
	return results
}

type summary struct {
	Succeeded   int
	Failed      int
	AvgTokens   int
	AvgDuration time.Duration
	Fastest     string
}

func summarize(results []BenchmarkResult) summary {
	var s summary
	var ok []BenchmarkResult
	for _, r := range results {
		if r.Err != nil {
			s.Failed++
			continue
		}
		ok = append(ok, r)
	}
	s.Succeeded = len(ok)
	if len(ok) == 0 {
		return s
	}
	var total time.Duration
	for _, r := range ok {
		s.AvgTokens += r.Tokens
		total += r.Duration
	}
	s.AvgTokens /= len(ok)
	s.AvgDuration = total / time.Duration(len(ok))
	sort.SliceStable(ok, func(i, j int) bool { return ok[i].Duration < ok[j].Duration })
	s.Fastest = ok[0].Model
	return s
}

func printSummaryStats(results []BenchmarkResult) {
	s := summarize(results)
	log.Printf("Results: %d successful, %d failed", s.Succeeded, s.Failed)
	if s.Succeeded == 0 {
		return
	}
	log.Printf("  Avg Tokens: %d", s.AvgTokens)
	log.Printf("  Avg Duration: %v", s.AvgDuration)
	log.Printf("  Fastest: %s", s.Fastest)
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
