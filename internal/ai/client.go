package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/khrees2412/coldreach/internal/config"
)

const (
	defaultOpenAIURL    = "https://api.openai.com"
	defaultAnthropicURL = "https://api.anthropic.com"
)

// Client sends prompts to the configured LLM provider
type Client struct {
	Provider     string // openai, anthropic, ollama, lmstudio
	Model        string
	OpenAIKey    string
	AnthropicKey string
	OpenAIURL    string
	AnthropicURL string
	OllamaURL    string
	LMStudioURL  string

	http *http.Client
}

// NewClient builds a client from the loaded configuration
func NewClient(cfg *config.Config) *Client {
	return &Client{
		Provider:     cfg.AIProvider,
		Model:        cfg.DefaultModel,
		OpenAIKey:    cfg.OpenAIKey,
		AnthropicKey: cfg.AnthropicKey,
		OpenAIURL:    defaultOpenAIURL,
		AnthropicURL: defaultAnthropicURL,
		OllamaURL:    cfg.OllamaURL,
		LMStudioURL:  cfg.LMStudioURL,
		http:         &http.Client{Timeout: 2 * time.Minute},
	}
}

// Complete returns the model's answer to prompt
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	switch c.Provider {
	case "openai":
		if c.OpenAIKey == "" {
			return "", fmt.Errorf("OpenAI API key not configured. Run: coldreach config set openai_key YOUR_KEY")
		}
		return c.chatCompletion(ctx, "OpenAI", strings.TrimRight(c.OpenAIURL, "/"), c.OpenAIKey, c.model("gpt-4"), prompt, maxTokens)
	case "lmstudio":
		url := c.LMStudioURL
		if url == "" {
			url = "http://localhost:1234"
		}
		return c.chatCompletion(ctx, "LMStudio", strings.TrimRight(url, "/"), "", c.model("local-model"), prompt, maxTokens)
	case "anthropic":
		return c.completeAnthropic(ctx, prompt, maxTokens)
	case "ollama":
		return c.completeOllama(ctx, prompt)
	default:
		return "", fmt.Errorf("unsupported AI provider: %s", c.Provider)
	}
}

func (c *Client) model(fallback string) string {
	if c.Model == "" {
		return fallback
	}
	return c.Model
}

// chatCompletion speaks the OpenAI chat completions API, which LMStudio also serves
func (c *Client) chatCompletion(ctx context.Context, name, baseURL, apiKey, model, prompt string, maxTokens int) (string, error) {
	reqBody := map[string]interface{}{
		"model": model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.7,
		"max_tokens":  maxTokens,
	}
	headers := map[string]string{}
	if apiKey != "" {
		headers["Authorization"] = "Bearer " + apiKey
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.post(ctx, name, baseURL+"/v1/chat/completions", headers, reqBody, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("unexpected response format from %s", name)
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

func (c *Client) completeAnthropic(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if c.AnthropicKey == "" {
		return "", fmt.Errorf("Anthropic API key not configured. Run: coldreach config set anthropic_key YOUR_KEY")
	}
	reqBody := map[string]interface{}{
		"model":      c.model("claude-3-5-sonnet-20241022"),
		"max_tokens": maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	headers := map[string]string{
		"x-api-key":         c.AnthropicKey,
		"anthropic-version": "2023-06-01",
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := c.post(ctx, "Anthropic", strings.TrimRight(c.AnthropicURL, "/")+"/v1/messages", headers, reqBody, &result); err != nil {
		return "", err
	}
	if len(result.Content) == 0 {
		return "", fmt.Errorf("unexpected response format from Anthropic")
	}
	return strings.TrimSpace(result.Content[0].Text), nil
}

func (c *Client) completeOllama(ctx context.Context, prompt string) (string, error) {
	url := c.OllamaURL
	if url == "" {
		url = "http://localhost:11434"
	}
	reqBody := map[string]interface{}{
		"model":  c.model("llama3.2"),
		"prompt": prompt,
		"stream": false,
	}

	var result struct {
		Response *string `json:"response"`
	}
	if err := c.post(ctx, "Ollama", strings.TrimRight(url, "/")+"/api/generate", nil, reqBody, &result); err != nil {
		return "", err
	}
	if result.Response == nil {
		return "", fmt.Errorf("unexpected response format from Ollama")
	}
	return strings.TrimSpace(*result.Response), nil
}

func (c *Client) post(ctx context.Context, name, url string, headers map[string]string, reqBody interface{}, out interface{}) error {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := c.http
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s API error: %s", name, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", name, err)
	}
	return nil
}
