// Package gemini provides a client for the Gemini multimodal generateContent API.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Generator is the surface the analysis and rules modules depend on.
// Tests substitute a stub implementation.
type Generator interface {
	// GenerateText sends a text-only prompt and returns the model's reply.
	GenerateText(ctx context.Context, prompt string) (string, error)
	// AnalyzeImage sends a prompt plus an inline image and returns the model's reply.
	AnalyzeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
}

// Client calls the hosted Gemini generateContent endpoint over plain HTTP.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// New creates a new Gemini client
func New(apiKey, model, baseURL string, log zerolog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log.With().Str("client", "gemini").Logger(),
	}
}

// part is one entry of a generateContent request content block
type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64-encoded bytes
}

// GenerateText sends a text-only prompt
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, []part{{Text: prompt}})
}

// AnalyzeImage sends a prompt together with an inline image
func (c *Client) AnalyzeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("empty image payload")
	}
	if mimeType == "" {
		mimeType = "image/png"
	}

	parts := []part{
		{Text: prompt},
		{InlineData: &inlineData{
			MimeType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(image),
		}},
	}
	return c.generate(ctx, parts)
}

func (c *Client) generate(ctx context.Context, parts []part) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("gemini API key not configured")
	}

	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": parts},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("gemini API returned %d: %s", resp.StatusCode, string(body))
	}

	var geminiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return "", fmt.Errorf("failed to decode gemini response: %w", err)
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	c.log.Debug().
		Dur("duration_ms", time.Since(start)).
		Int("parts", len(parts)).
		Msg("generateContent completed")

	return geminiResp.Candidates[0].Content.Parts[0].Text, nil
}

// StripCodeFences removes markdown code fences and surrounding prose from a
// model reply so the embedded JSON object can be decoded. Best effort: when
// no braces are found the trimmed text is returned unchanged and the caller's
// json.Unmarshal reports the failure.
func StripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	// Models sometimes wrap the object in prose; cut to the outermost braces.
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			return text[start : end+1]
		}
	}
	return text
}
