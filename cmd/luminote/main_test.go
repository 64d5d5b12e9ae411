package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haowjy/luminote-go"
	"github.com/haowjy/luminote-go/internal/config"
	"github.com/haowjy/luminote-go/internal/server"
	"github.com/haowjy/luminote-go/internal/service"
	"github.com/haowjy/luminote-go/internal/versions"
	"github.com/haowjy/luminote-go/providers"
)

func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	chdir(t, t.TempDir())

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestProvidersCmd(t *testing.T) {
	out, _, err := run(t, "providers", "--models")
	if err != nil {
		t.Fatalf("providers: %v", err)
	}
	for _, want := range []string{"PROVIDER", "anthropic", "claude-3-5-sonnet-20241022", "sk-ant-", "openai", "gpt-4", "mock", "MODEL PREFIX"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	out, _, err := run(t, "version", "-o", "json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("version -o json printed invalid JSON: %v\n%s", err, out)
	}
	if info["gitVersion"] == "" {
		t.Errorf("info = %v", info)
	}
}

func TestStreamCmd(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(providers.DefaultRegistry(), service.WithLogger(logger))
	ts := httptest.NewServer(server.New(config.Default(), svc, server.WithLogger(logger)).Handler())
	defer ts.Close()

	out, errOut, err := run(t, "stream", "--base-url", ts.URL, "--lang", "es", "--model", "mock-fail",
		"--log-level", "error", "Good morning", "fail please")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	if !strings.Contains(out, "[p1] [ES] Good morning") {
		t.Errorf("stdout missing translated block:\n%s", out)
	}
	if !strings.Contains(out, "done: 1 translated, 1 failed") {
		t.Errorf("stdout missing summary:\n%s", out)
	}
	if !strings.Contains(errOut, "error [p2] TRANSLATION_ERROR") {
		t.Errorf("stderr missing block error:\n%s", errOut)
	}
}

func pageServer(t *testing.T) *httptest.Server {
	t.Helper()
	para := strings.Repeat("Lighthouse keepers trimmed the wicks every few hours through the night. ", 6)
	page := `<html><head><title>Keeping the Light</title><meta name="author" content="Ida Lewis"></head><body>
<article><h1>Keeping the Light</h1><p>` + para + `</p><p>Storms made the work harder. ` + para + `</p></article>
</body></html>`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, page)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestExtractCmd(t *testing.T) {
	site := pageServer(t)
	t.Setenv(config.EnvPrefix+"CACHE_ENABLED", "false")

	out, _, err := run(t, "extract", site.URL, "--log-level", "error")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	for _, want := range []string{"TITLE:", "Keeping the Light", "Ida Lewis", "TYPE", "Storms made the work harder."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, _, err = run(t, "extract", site.URL, "-o", "json", "--log-level", "error")
	if err != nil {
		t.Fatalf("extract -o json: %v", err)
	}
	var doc struct {
		URL           string                  `json:"url"`
		ContentBlocks []luminote.ContentBlock `json:"content_blocks"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if doc.URL != site.URL || len(doc.ContentBlocks) == 0 {
		t.Errorf("doc = %+v", doc)
	}

	if _, _, err := run(t, "extract", "not-a-url", "--log-level", "error"); err == nil {
		t.Error("expected an error for a bad url")
	}
}

func TestStreamCmd_URL(t *testing.T) {
	site := pageServer(t)
	t.Setenv(config.EnvPrefix+"CACHE_ENABLED", "false")

	store, err := versions.Open(filepath.Join(t.TempDir(), "versions.db"), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(providers.DefaultRegistry(), service.WithLogger(logger), service.WithVersions(store))
	ts := httptest.NewServer(server.New(config.Default(), svc, server.WithLogger(logger)).Handler())
	defer ts.Close()

	out, errOut, err := run(t, "stream", "--base-url", ts.URL, "--lang", "de", "--url", site.URL,
		"--template", "casual", "--var", "context=maritime history", "--log-level", "error")
	if err != nil {
		t.Fatalf("stream --url: %v", err)
	}
	if !strings.Contains(errOut, `extracted "Keeping the Light"`) {
		t.Errorf("stderr missing extraction summary:\n%s", errOut)
	}
	if !strings.Contains(out, "[DE] Storms made the work harder.") || !strings.Contains(out, "0 failed") {
		t.Errorf("stdout:\n%s", out)
	}

	tmpl, _ := svc.Templates().Get("casual")
	if tmpl.UsageCount == 0 {
		t.Error("casual template was not used")
	}

	saved, err := store.List(context.Background(), site.URL)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 1 || saved[0].Metadata.TemplateID != "casual" || saved[0].Metadata.TemplateVariables["context"] != "maritime history" {
		t.Errorf("saved versions = %+v", saved)
	}
}

func TestStreamCmd_URLAndFileConflict(t *testing.T) {
	_, _, err := run(t, "stream", "--lang", "fr", "--url", "https://example.com", "--file", "blocks.json")
	if err == nil {
		t.Fatal("expected --url and --file to conflict")
	}
}

func TestStreamCmd_ConnectionFailure(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	_, _, err := run(t, "stream", "--base-url", url, "--lang", "fr", "--max-retries", "0", "--log-level", "error", "hi")
	if err == nil {
		t.Fatal("expected an error from a closed server")
	}
	if !strings.Contains(err.Error(), "stream connection error") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadBlocks(t *testing.T) {
	dir := t.TempDir()

	arrayPath := filepath.Join(dir, "blocks.json")
	os.WriteFile(arrayPath, []byte(`[{"id":"h","type":"heading","text":"Title"}]`), 0o644)

	requestPath := filepath.Join(dir, "request.json")
	os.WriteFile(requestPath, []byte(`{"content_blocks":[{"id":"q","type":"quote","text":"Quote"}]}`), 0o644)

	tests := []struct {
		name    string
		stdin   string
		path    string
		texts   []string
		wantIDs []string
		wantErr bool
	}{
		{name: "texts", texts: []string{"a", "b"}, wantIDs: []string{"p1", "p2"}},
		{name: "array file", path: arrayPath, wantIDs: []string{"h"}},
		{name: "request file", path: requestPath, wantIDs: []string{"q"}},
		{name: "stdin", path: "-", stdin: `[{"id":"s","type":"code","text":"x := 1"}]`, wantIDs: []string{"s"}},
		{name: "nothing", wantErr: true},
		{name: "garbage", path: "-", stdin: "nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks, err := loadBlocks(strings.NewReader(tt.stdin), tt.path, tt.texts)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			var ids []string
			for _, b := range blocks {
				ids = append(ids, b.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.wantIDs, ",") {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestAPIKeyEnv(t *testing.T) {
	if got := apiKeyEnv(luminote.ProviderAnthropic); got != "ANTHROPIC_API_KEY" {
		t.Errorf("anthropic -> %s", got)
	}
	if got := apiKeyEnv("OpenAI"); got != "OPENAI_API_KEY" {
		t.Errorf("openai -> %s", got)
	}
}

// chdir changes the working directory for the rest of the test and restores
// it on cleanup (stand-in for testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
