package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newChatBackend(t *testing.T, reply func(req chatRequest) string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := chatResponse{}
		resp.Choices = []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Role: "assistant", Content: reply(req)}}}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestGenerate_WritesArtifacts(t *testing.T) {
	srv := newChatBackend(t, func(req chatRequest) string {
		if strings.Contains(req.Messages[1].Content, "README.md") {
			return "# t1\n\nA demo app."
		}
		return "<html><body>demo</body></html>"
	})
	defer srv.Close()

	outputDir := t.TempDir()
	g, err := New("test-api-key", srv.URL, outputDir)
	assert.NoError(t, err)

	appDir, err := g.Generate(context.Background(), "Build a demo", []string{"shows demo"}, nil, "t1")
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(outputDir, "t1"), appDir)

	index, err := os.ReadFile(filepath.Join(appDir, "index.html"))
	assert.NoError(t, err)
	assert.Equal(t, "<html><body>demo</body></html>", string(index))

	readme, err := os.ReadFile(filepath.Join(appDir, "README.md"))
	assert.NoError(t, err)
	assert.Contains(t, string(readme), "# t1")
}

func TestGenerate_StripsCodeFences(t *testing.T) {
	srv := newChatBackend(t, func(req chatRequest) string {
		if strings.Contains(req.Messages[1].Content, "README.md") {
			return "```markdown\n# fenced\n```"
		}
		return "```html\n<html><body>fenced</body></html>\n```"
	})
	defer srv.Close()

	g, err := New("test-api-key", srv.URL, t.TempDir())
	assert.NoError(t, err)

	appDir, err := g.Generate(context.Background(), "Build a demo", nil, nil, "t1")
	assert.NoError(t, err)

	index, _ := os.ReadFile(filepath.Join(appDir, "index.html"))
	assert.Equal(t, "<html><body>fenced</body></html>", string(index))

	readme, _ := os.ReadFile(filepath.Join(appDir, "README.md"))
	assert.Equal(t, "# fenced", string(readme))
}

func TestGenerate_FallsBackWhenBackendFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g, err := New("test-api-key", srv.URL, t.TempDir())
	assert.NoError(t, err)

	appDir, err := g.Generate(context.Background(), "Build a markdown previewer", nil, nil, "t1")
	assert.NoError(t, err, "backend failure falls back to templates, it does not fail the run")

	index, readErr := os.ReadFile(filepath.Join(appDir, "index.html"))
	assert.NoError(t, readErr)
	assert.Contains(t, string(index), "Build a markdown previewer")
	assert.Contains(t, string(index), "Generated Application")

	readme, readErr := os.ReadFile(filepath.Join(appDir, "README.md"))
	assert.NoError(t, readErr)
	assert.Contains(t, string(readme), "# t1")
	assert.Contains(t, string(readme), "MIT License")
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, "<p>hi</p>", stripCodeFence("```html\n<p>hi</p>\n```", "html"))
	assert.Equal(t, "plain content", stripCodeFence("plain content", "html"))
	assert.Equal(t, "generic fence", stripCodeFence("```\ngeneric fence\n```", "html"))
}

func TestBuildPrompt_IncludesChecksAndAttachments(t *testing.T) {
	prompt := buildPrompt("Build X", []string{"check one", "check two"}, []string{"/tmp/att/logo.png"})
	assert.Contains(t, prompt, "Build X")
	assert.Contains(t, prompt, "- check one")
	assert.Contains(t, prompt, "- check two")
	assert.Contains(t, prompt, "Attachments provided: logo.png")
}
