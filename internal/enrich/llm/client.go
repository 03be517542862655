// Package llm summarizes postings through an OpenAI-compatible chat
// completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tejaschuahan/job-scraper-bot/internal/enrich"
	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

// Defaults applied by New.
const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.3-70b-versatile"
	DefaultTimeout = 15 * time.Second
)

const maxPromptDescription = 1000

// Config locates the endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client implements enrich.Enricher.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New builds a Client. An empty API key is rejected.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("enrich.api_key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const systemPrompt = "You summarize job postings for a job-alert bot. " +
	"Reply with 3 bullet points starting with '• ', each under 15 words: " +
	"key requirements, compensation or benefits if mentioned, and why the role stands out or any red flags."

// Summarize asks the model for a bullet summary. Any failure is reported as
// enrich.ErrUnavailable wrapping the cause.
func (c *Client) Summarize(ctx context.Context, record scraper.JobRecord) (enrich.Summary, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(record)},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return enrich.Summary{}, unavailable(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return enrich.Summary{}, unavailable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return enrich.Summary{}, unavailable(fmt.Errorf("http request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return enrich.Summary{}, unavailable(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return enrich.Summary{}, unavailable(fmt.Errorf("status %d", resp.StatusCode))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return enrich.Summary{}, unavailable(fmt.Errorf("decode response: %w", err))
	}
	if parsed.Error != nil {
		return enrich.Summary{}, unavailable(fmt.Errorf("api error: %s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return enrich.Summary{}, unavailable(fmt.Errorf("no choices returned"))
	}
	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return enrich.Summary{}, unavailable(fmt.Errorf("empty completion"))
	}
	return enrich.Summary{Text: text}, nil
}

func userPrompt(r scraper.JobRecord) string {
	desc := r.Description
	if utf8.RuneCountInString(desc) > maxPromptDescription {
		desc = string([]rune(desc)[:maxPromptDescription])
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Job Title: %s\n", orNA(r.Title))
	fmt.Fprintf(&b, "Company: %s\n", orNA(r.Company))
	fmt.Fprintf(&b, "Location: %s\n", orNA(r.Location))
	fmt.Fprintf(&b, "Job Type: %s\n", orNA(r.JobType))
	fmt.Fprintf(&b, "Description: %s\n", orNA(desc))
	return b.String()
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", enrich.ErrUnavailable, err)
}
