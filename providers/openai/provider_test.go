package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haowjy/luminote-go"
)

const testKey = "sk-test"

const okBody = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "gpt-4",
	"choices": [{
		"index": 0,
		"message": {"role": "assistant", "content": " Hallo Welt "},
		"finish_reason": "stop"
	}],
	"usage": {"prompt_tokens": 30, "completion_tokens": 4, "total_tokens": 34}
}`

func fakeAPI(t *testing.T, status int, body string) (*httptest.Server, *map[string]any) {
	t.Helper()
	var last map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer "+testKey {
			t.Errorf("Authorization = %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&last)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func TestProvider_Translate(t *testing.T) {
	srv, last := fakeAPI(t, http.StatusOK, okBody)
	provider := NewProvider(WithBaseURL(srv.URL))

	result, err := provider.Translate(context.Background(), &luminote.TranslateInput{
		Text:           "Hello world",
		TargetLanguage: "de",
		Model:          "gpt-4o-mini",
		APIKey:         testKey,
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	if result.TranslatedText != "Hallo Welt" {
		t.Errorf("TranslatedText = %q", result.TranslatedText)
	}
	if result.TokensUsed != 34 {
		t.Errorf("TokensUsed = %d, want 34", result.TokensUsed)
	}
	if result.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q", result.Model)
	}
	if (*last)["model"] != "gpt-4o-mini" {
		t.Errorf("request model = %v", (*last)["model"])
	}
	if (*last)["temperature"] != 0.3 {
		t.Errorf("temperature = %v", (*last)["temperature"])
	}
}

func TestProvider_TranslateErrors(t *testing.T) {
	errBody := `{"error":{"message":"bad","type":"invalid_request_error","param":null,"code":null}}`
	tests := []struct {
		name   string
		status int
		code   luminote.ErrorCode
	}{
		{"unauthorized", http.StatusUnauthorized, luminote.ErrorCodeInvalidAPIKey},
		{"rate limited", http.StatusTooManyRequests, luminote.ErrorCodeRateLimited},
		{"server error", http.StatusBadGateway, luminote.ErrorCodeTranslation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := fakeAPI(t, tt.status, errBody)
			_, err := NewProvider(WithBaseURL(srv.URL)).Translate(context.Background(), &luminote.TranslateInput{
				Text: "Hello", TargetLanguage: "de", APIKey: testKey,
			})

			var te *luminote.TranslationError
			if !errors.As(err, &te) {
				t.Fatalf("error = %v, want *TranslationError", err)
			}
			if te.Code != tt.code {
				t.Errorf("Code = %s, want %s", te.Code, tt.code)
			}
		})
	}
}

func TestProvider_KeyFormat(t *testing.T) {
	_, err := NewProvider().Translate(context.Background(), &luminote.TranslateInput{
		Text: "Hello", TargetLanguage: "de", APIKey: "not-a-key",
	})
	if !luminote.IsAuthError(err) {
		t.Errorf("error = %v, want auth error", err)
	}
}

func TestProvider_Validate(t *testing.T) {
	srv, last := fakeAPI(t, http.StatusOK, okBody)

	result, err := NewProvider(WithBaseURL(srv.URL)).Validate(context.Background(), "", testKey)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if result.Model != "gpt-4" || result.Capabilities.MaxTokens != 8192 {
		t.Errorf("result = %+v", result)
	}
	if (*last)["max_tokens"] != float64(5) {
		t.Errorf("max_tokens = %v, want 5", (*last)["max_tokens"])
	}
}

func TestProvider_SupportsModel(t *testing.T) {
	p := NewProvider()
	if !p.SupportsModel("gpt-4o") || p.SupportsModel("claude-3-haiku") {
		t.Error("SupportsModel() mismatch")
	}
}
