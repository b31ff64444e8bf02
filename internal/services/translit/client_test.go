package translit_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"granth/internal/config"
	"granth/internal/services"
	"granth/internal/services/translit"
)

func testConfig(baseURL string) config.Transliteration {
	return config.Transliteration{
		APIKey:         "test-key",
		BaseURL:        baseURL,
		Model:          "gemini-2.5-flash",
		TargetScript:   "roman",
		TimeoutSeconds: 5,
	}
}

func completionBody(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}, "finish_reason": "stop"},
		},
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, payload any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func TestTransliterateSendsPromptAndReturnsContent(t *testing.T) {
	var captured struct {
		Model       string `json:"model"`
		Temperature float64
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		writeJSON(t, w, completionBody("  \"Adhyatma Prakasha\"  "))
	}))
	defer server.Close()

	client := translit.NewClient(testConfig(server.URL))
	got, err := client.Transliterate(context.Background(), "ಅಧ್ಯಾತ್ಮ ಪ್ರಕಾಶ")
	if err != nil {
		t.Fatalf("Transliterate returned error: %v", err)
	}
	if got != "Adhyatma Prakasha" {
		t.Fatalf("result = %q, quoting not stripped", got)
	}
	if captured.Model != "gemini-2.5-flash" {
		t.Errorf("model = %q", captured.Model)
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("messages = %d, want system + user", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || !strings.Contains(captured.Messages[0].Content, "roman") {
		t.Errorf("system message = %+v", captured.Messages[0])
	}
	if captured.Messages[1].Content != "ಅಧ್ಯಾತ್ಮ ಪ್ರಕಾಶ" {
		t.Errorf("user message = %q", captured.Messages[1].Content)
	}
}

func TestTransliterateRetriesRateLimitWithRetryAfter(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(t, w, completionBody("Gita Bhashya"))
	}))
	defer server.Close()

	var slept []time.Duration
	client := translit.NewClient(testConfig(server.URL),
		translit.WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)
	got, err := client.Transliterate(context.Background(), "ಗೀತಾ ಭಾಷ್ಯ")
	if err != nil {
		t.Fatalf("Transliterate returned error: %v", err)
	}
	if got != "Gita Bhashya" {
		t.Fatalf("result = %q", got)
	}
	if requests != 2 {
		t.Fatalf("requests = %d, want 2", requests)
	}
	if len(slept) != 1 || slept[0] != 7*time.Second {
		t.Fatalf("slept = %v, Retry-After not honored", slept)
	}
}

func TestTransliterateExhaustedRetriesIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := translit.NewClient(testConfig(server.URL),
		translit.WithRetryMaxAttempts(2),
		translit.WithSleeper(func(time.Duration) {}),
	)
	_, err := client.Transliterate(context.Background(), "ಪುಸ್ತಕ")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("5xx exhaustion should be transient, got %v", err)
	}
}

func TestTransliterateBadRequestIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := translit.NewClient(testConfig(server.URL))
	_, err := client.Transliterate(context.Background(), "ಪುಸ್ತಕ")
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("400 should be permanent, got %v", err)
	}
}

func TestTransliterateUnauthorizedIsConfiguration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := translit.NewClient(testConfig(server.URL))
	_, err := client.Transliterate(context.Background(), "ಪುಸ್ತಕ")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("401 should be a configuration error, got %v", err)
	}
}

func TestTransliterateRefusalIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "", "refusal": "cannot process"}},
			},
		})
	}))
	defer server.Close()

	client := translit.NewClient(testConfig(server.URL))
	_, err := client.Transliterate(context.Background(), "ಪುಸ್ತಕ")
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("refusal should be permanent, got %v", err)
	}
}

func TestTransliterateEmptyContentIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, completionBody("   "))
	}))
	defer server.Close()

	client := translit.NewClient(testConfig(server.URL))
	_, err := client.Transliterate(context.Background(), "ಪುಸ್ತಕ")
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("empty content should be permanent, got %v", err)
	}
}

func TestTransliterateRejectsEmptyInput(t *testing.T) {
	client := translit.NewClient(testConfig("http://127.0.0.1:0"))
	_, err := client.Transliterate(context.Background(), "   ")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("empty input should be a validation error, got %v", err)
	}
}

func TestTransliterateRequiresAPIKey(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0")
	cfg.APIKey = ""
	client := translit.NewClient(cfg)
	_, err := client.Transliterate(context.Background(), "ಪುಸ್ತಕ")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("missing key should be a configuration error, got %v", err)
	}
}
