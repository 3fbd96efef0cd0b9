package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/clara-platform/clara-backend/internal/ai"
	"github.com/clara-platform/clara-backend/internal/config"
	"github.com/clara-platform/clara-backend/internal/core/clerror"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
)

// Client talks to any OpenAI-compatible endpoint (OpenAI itself, or DeepSeek
// via its compatible base URL). It implements the ai adapter interfaces and
// fills in a Call record for every request.
type Client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	imageModel string
	imageSize  string
	ttsModel   string
	retryLimit int
	httpClient *http.Client
}

func NewClient(log *logger.Logger, cfg config.AIConfig) (*Client, error) {
	keyEnv := "OPENAI_API_KEY"
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if strings.EqualFold(cfg.Provider, "deepseek") {
		keyEnv = "DEEP_SEEK_API_KEY"
		if baseURL == "" {
			baseURL = "https://api.deepseek.com"
		}
	}
	apiKey := strings.TrimSpace(os.Getenv(keyEnv))
	if apiKey == "" {
		return nil, fmt.Errorf("missing %s", keyEnv)
	}
	return NewClientWithKey(log, cfg, baseURL, apiKey), nil
}

// NewClientWithKey builds a client around an explicit key. Used when a user
// has configured a personal API key, which bypasses the credit check.
func NewClientWithKey(log *logger.Logger, cfg config.AIConfig, baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o"
	}
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 180
	}
	retryLimit := cfg.RetryLimit
	if retryLimit < 0 {
		retryLimit = 0
	}
	return &Client{
		log:        log.With("service", "OpenAIClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		imageModel: "dall-e-3",
		imageSize:  "1024x1024",
		ttsModel:   "tts-1",
		retryLimit: retryLimit,
		httpClient: &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}
}

func (c *Client) GenerateText(ctx context.Context, system, user string) (string, ai.Call, error) {
	body := map[string]any{
		"model": c.model,
		"messages": []map[string]any{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	}
	return c.chat(ctx, system+"\n"+user, body)
}

func (c *Client) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, ai.Call, error) {
	format := map[string]any{"type": "json_object"}
	if schema != nil {
		format = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   schemaName,
				"schema": schema,
			},
		}
	}
	body := map[string]any{
		"model": c.model,
		"messages": []map[string]any{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"response_format": format,
	}
	text, call, err := c.chat(ctx, system+"\n"+user, body)
	if err != nil {
		return nil, call, err
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(stripFence(text)), &out); err != nil {
		return nil, call, clerror.Wrap(clerror.AICallFailed, err, "response is not valid JSON for schema %s", schemaName)
	}
	return out, call, nil
}

func (c *Client) InterpretImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, ai.Call, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	body := map[string]any{
		"model": c.model,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": prompt},
					{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
				},
			},
		},
	}
	return c.chat(ctx, prompt, body)
}

func (c *Client) GenerateImage(ctx context.Context, prompt string) (ai.ImageResult, ai.Call, error) {
	call := ai.Call{Prompt: prompt, Timestamp: time.Now()}
	body := map[string]any{
		"model":           c.imageModel,
		"prompt":          prompt,
		"size":            c.imageSize,
		"response_format": "b64_json",
	}
	start := time.Now()
	raw, retries, err := c.post(ctx, "/v1/images/generations", body)
	call.Duration = time.Since(start)
	call.Retries = retries
	if err != nil {
		return ai.ImageResult{}, call, err
	}
	var resp struct {
		Data []struct {
			B64JSON       string `json:"b64_json"`
			RevisedPrompt string `json:"revised_prompt"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Data) == 0 {
		return ai.ImageResult{}, call, clerror.New(clerror.AICallFailed, "image response missing data")
	}
	imgBytes, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return ai.ImageResult{}, call, clerror.Wrap(clerror.AICallFailed, err, "decode image payload")
	}
	call.Cost = imageCost(c.imageModel, c.imageSize)
	call.Response = "(image)"
	return ai.ImageResult{
		Bytes:         imgBytes,
		MimeType:      "image/png",
		RevisedPrompt: resp.Data[0].RevisedPrompt,
	}, call, nil
}

func (c *Client) EngineID() string { return "openai_tts" }

func (c *Client) Synthesize(ctx context.Context, language, voice, text string) ([]byte, ai.Call, error) {
	call := ai.Call{Prompt: text, Timestamp: time.Now()}
	if strings.TrimSpace(voice) == "" {
		voice = "alloy"
	}
	body := map[string]any{
		"model": c.ttsModel,
		"voice": voice,
		"input": text,
	}
	start := time.Now()
	raw, retries, err := c.post(ctx, "/v1/audio/speech", body)
	call.Duration = time.Since(start)
	call.Retries = retries
	if err != nil {
		return nil, call, err
	}
	call.Cost = ttsCost(c.ttsModel, len(text))
	call.Response = "(audio)"
	return raw, call, nil
}

// chat runs one chat-completions request and extracts the first choice.
func (c *Client) chat(ctx context.Context, prompt string, body map[string]any) (string, ai.Call, error) {
	call := ai.Call{Prompt: prompt, Timestamp: time.Now()}
	start := time.Now()
	raw, retries, err := c.post(ctx, "/v1/chat/completions", body)
	call.Duration = time.Since(start)
	call.Retries = retries
	if err != nil {
		return "", call, err
	}
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
				Refusal string `json:"refusal"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", call, clerror.Wrap(clerror.AICallFailed, err, "decode chat response")
	}
	if len(resp.Choices) == 0 {
		return "", call, clerror.New(clerror.AICallFailed, "chat response has no choices")
	}
	if refusal := strings.TrimSpace(resp.Choices[0].Message.Refusal); refusal != "" {
		return "", call, clerror.New(clerror.ContentPolicyRejected, "%s", refusal)
	}
	call.Cost = tokenCost(c.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	call.Response = resp.Choices[0].Message.Content
	return resp.Choices[0].Message.Content, call, nil
}

// post sends the request with retry on transport and 5xx/429 failures.
// Content-policy rejections are surfaced immediately and never retried here;
// the image engine owns the rewrite-and-retry loop.
func (c *Client) post(ctx context.Context, path string, body map[string]any) ([]byte, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, err
	}
	var lastErr error
	for attempt := 0; attempt <= c.retryLimit; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, attempt, clerror.Wrap(clerror.AICallFailed, ctx.Err(), "request cancelled")
			case <-time.After(backoff(attempt)):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, attempt, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = clerror.Wrap(clerror.AICallFailed, err, "request failed")
			continue
		}
		raw, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = clerror.Wrap(clerror.AICallFailed, readErr, "read response")
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return raw, attempt, nil
		}
		apiErr := decodeAPIError(raw, resp.StatusCode)
		if clerror.Is(apiErr, clerror.ContentPolicyRejected) {
			return nil, attempt, apiErr
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = apiErr
			continue
		}
		return nil, attempt, apiErr
	}
	return nil, c.retryLimit, lastErr
}

func decodeAPIError(raw []byte, status int) error {
	var e struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	_ = json.Unmarshal(raw, &e)
	msg := e.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("http %d", status)
	}
	code := strings.ToLower(e.Error.Code + " " + e.Error.Type)
	if strings.Contains(code, "content_policy") || strings.Contains(code, "moderation") ||
		strings.Contains(strings.ToLower(msg), "content policy") {
		return clerror.New(clerror.ContentPolicyRejected, "%s", msg)
	}
	return clerror.New(clerror.AICallFailed, "http %d: %s", status, msg)
}

func backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt-1)) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
