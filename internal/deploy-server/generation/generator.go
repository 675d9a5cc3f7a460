package generation

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

const (
	defaultModel       = "gpt-4-turbo-preview"
	htmlSystemPrompt   = "You are an expert web developer. Generate clean, modern, production-ready HTML/CSS/JS code."
	readmeSystemPrompt = "You are a technical writer creating clear, professional documentation."
)

// Generator produces a self-contained web app (index.html + README.md)
// from a brief via an OpenAI-style chat-completions backend. When the
// backend call fails it falls back to static templates rather than
// failing the run.
type Generator struct {
	client    *client.Client
	apiKey    string
	baseURL   string
	outputDir string
}

func New(apiKey, baseURL, outputDir string) (*Generator, error) {
	c, err := client.NewClient(
		client.WithTLSConfig(&tls.Config{}),
		client.WithDialTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator HTTP client: %w", err)
	}
	return &Generator{
		client:    c,
		apiKey:    apiKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		outputDir: outputDir,
	}, nil
}

// Generate writes index.html and README.md for the task and returns
// the app directory.
func (g *Generator) Generate(ctx context.Context, brief string, checks []string, attachmentPaths []string, taskID string) (string, error) {
	appDir := filepath.Join(g.outputDir, taskID)
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create app directory: %w", err)
	}

	prompt := buildPrompt(brief, checks, attachmentPaths)

	htmlContent, err := g.chatCompletion(ctx, htmlSystemPrompt, prompt, 4000)
	if err != nil {
		log.Printf("Generator backend failed for task %s, using fallback template: %v", taskID, err)
		htmlContent = fallbackTemplate(brief)
	} else {
		htmlContent = stripCodeFence(htmlContent, "html")
	}
	if err := os.WriteFile(filepath.Join(appDir, "index.html"), []byte(htmlContent), 0o644); err != nil {
		return "", fmt.Errorf("failed to write index.html: %w", err)
	}

	readmeContent, err := g.chatCompletion(ctx, readmeSystemPrompt, buildReadmePrompt(brief, taskID), 1500)
	if err != nil {
		log.Printf("README generation failed for task %s, using fallback: %v", taskID, err)
		readmeContent = fallbackReadme(brief, taskID)
	} else {
		readmeContent = stripCodeFence(readmeContent, "markdown")
	}
	if err := os.WriteFile(filepath.Join(appDir, "README.md"), []byte(readmeContent), 0o644); err != nil {
		return "", fmt.Errorf("failed to write README.md: %w", err)
	}

	return appDir, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Generator) chatCompletion(ctx context.Context, system, user string, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: defaultModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.7,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()

	req.SetMethod(consts.MethodPost)
	req.SetRequestURI(g.baseURL + "/v1/chat/completions")
	req.SetBody(body)
	req.Header.SetContentTypeBytes([]byte("application/json"))
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	callCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := g.client.Do(callCtx, req, resp); err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}
	if resp.StatusCode() != consts.StatusOK {
		return "", fmt.Errorf("chat completion returned status %d: %s", resp.StatusCode(), resp.Body())
	}

	var parsed chatResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", fmt.Errorf("failed to decode chat completion response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat completion error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func buildPrompt(brief string, checks []string, attachmentPaths []string) string {
	attachmentInfo := ""
	if len(attachmentPaths) > 0 {
		names := make([]string, 0, len(attachmentPaths))
		for _, p := range attachmentPaths {
			names = append(names, filepath.Base(p))
		}
		attachmentInfo = "\n\nAttachments provided: " + strings.Join(names, ", ")
	}

	checkLines := make([]string, 0, len(checks))
	for _, check := range checks {
		checkLines = append(checkLines, "- "+check)
	}

	return fmt.Sprintf(`Create a complete, self-contained single-page web application (HTML with embedded CSS and JavaScript).

**Requirements:**
%s

**Evaluation Criteria:**
%s
%s

**Instructions:**
1. Create a modern, responsive UI using HTML5, CSS3, and vanilla JavaScript
2. Handle URL parameters (e.g., ?url=...) as specified
3. Include error handling and loading states
4. Make it visually appealing with good UX
5. Add clear instructions for users
6. Ensure all functionality works client-side
7. Use modern web APIs and best practices

Return ONLY the complete HTML file content, no explanations.`, brief, strings.Join(checkLines, "\n"), attachmentInfo)
}

func buildReadmePrompt(brief, taskID string) string {
	return fmt.Sprintf(`Create a professional README.md for a web application with these details:

**Brief:** %s
**Task ID:** %s

Include these sections:
1. Project title and brief description
2. Features
3. Setup instructions (how to run locally)
4. Usage instructions (how to use the app)
5. Code explanation (brief technical overview)
6. License (MIT)

Keep it concise and professional. Use Markdown formatting.`, brief, taskID)
}

// stripCodeFence unwraps a markdown-fenced response. Models sometimes
// wrap the file content even when asked not to.
func stripCodeFence(content, lang string) string {
	fence := "```" + lang
	if strings.Contains(content, fence) {
		parts := strings.SplitN(content, fence, 2)
		inner := strings.SplitN(parts[1], "```", 2)
		return strings.TrimSpace(inner[0])
	}
	if strings.Contains(content, "```") {
		parts := strings.SplitN(content, "```", 3)
		if len(parts) >= 2 {
			return strings.TrimSpace(parts[1])
		}
	}
	return content
}
