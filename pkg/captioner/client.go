package captioner

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"emojid/pkg/config"
	"emojid/pkg/logger"
)

// ErrPayloadTooLarge marks a request rejected by the remote endpoint for
// size; the caller may compress and retry or abandon the asset.
var ErrPayloadTooLarge = errors.New("captioner payload too large")

const (
	maxRetries  = 3
	baseWait    = 5 * time.Second
	maxTagCount = 5
)

const describePrompt = "This is a meme image used as an emoji. Describe in detail the " +
	"emotion and content it expresses, considering internet memes and emoticon culture."

const describeGIFPrompt = "This is an animated meme used as an emoji. Describe the " +
	"emotion and content it expresses, considering internet memes and emoticon culture."

// Client talks to an OpenAI-compatible chat/completions endpoint. The
// vision model produces captions; the utils model handles tag extraction
// and eviction decisions.
type Client struct {
	baseURL     string
	apiKey      string
	visionModel string
	utilsModel  string
	maxTokens   int
	httpc       *http.Client
}

// NewClient builds a Client from captioner config.
func NewClient(cfg config.CaptionerConfig) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		visionModel: cfg.VisionModel,
		utilsModel:  cfg.UtilsModel,
		maxTokens:   cfg.MaxTokens,
		httpc:       &http.Client{Timeout: cfg.Timeout.Duration()},
	}
}

// Describe captions the image with the vision model, then extracts short
// emotion tags from the caption with the utils model.
func (c *Client) Describe(ctx context.Context, image []byte, format string) (string, []string, error) {
	prompt := describePrompt
	if strings.EqualFold(format, "gif") {
		prompt = describeGIFPrompt
	}
	desc, err := c.chat(ctx, c.visionModel, prompt, image, format, 0.3)
	if err != nil {
		return "", nil, fmt.Errorf("caption request failed: %w", err)
	}
	tagPrompt := "Identify the meaning and usage scenarios of this emoji based on its " +
		"description, as short phrases of at most a few words each. Description: '" + desc + "'. " +
		"Consider humor, sarcasm and internet meme culture. Output only the phrases, " +
		"comma separated, with no other content."
	tagsText, err := c.chat(ctx, c.utilsModel, tagPrompt, nil, "", 0.7)
	if err != nil {
		return "", nil, fmt.Errorf("tag extraction failed: %w", err)
	}
	return desc, splitTags(tagsText), nil
}

// ExtractEmotion pulls emotion keywords out of arbitrary text.
func (c *Client) ExtractEmotion(ctx context.Context, text string) ([]string, error) {
	prompt := "Extract the emotion or applicable scenario expressed by the following " +
		"text, as short keywords. Output only the keywords, comma separated, with no " +
		"other content.\n" + text
	out, err := c.chat(ctx, c.utilsModel, prompt, nil, "", 0.7)
	if err != nil {
		return nil, err
	}
	return splitTags(out), nil
}

// DecideEviction presents the candidate set and parses a structured
// verdict. Any malformed or unparseable answer means "do not delete".
func (c *Client) DecideEviction(ctx context.Context, candidates []EvictionCandidate, newDescription string) (Decision, error) {
	var b strings.Builder
	b.WriteString("Emoji storage is full and a new emoji is waiting for registration.\n")
	b.WriteString("New emoji description: " + newDescription + "\n\nExisting candidates:\n")
	for i, cand := range candidates {
		ts := time.Unix(cand.RegisterTime, 0).UTC().Format("2006-01-02 15:04:05")
		fmt.Fprintf(&b, "#%d description: %s | usage count: %d | registered: %s\n",
			i+1, cand.Description, cand.UsageCount, ts)
	}
	b.WriteString("\nDecide whether one existing emoji should be deleted to make room. ")
	b.WriteString(`Answer with JSON only: {"delete": false} to keep all, or `)
	b.WriteString(`{"delete": true, "index": N} where N is the candidate number.`)

	out, err := c.chat(ctx, c.utilsModel, b.String(), nil, "", 0.8)
	if err != nil {
		return Decision{}, err
	}
	return ParseDecision(out, len(candidates)), nil
}

var jsonBlockRe = regexp.MustCompile(`\{[^{}]*\}`)

// ParseDecision extracts the structured verdict from model output. The
// decision indexes are one-based on the wire and zero-based in Decision.
// Fail-safe: anything unparseable or out of range is "do not delete".
func ParseDecision(out string, candidateCount int) Decision {
	block := jsonBlockRe.FindString(out)
	if block == "" {
		logger.Warn("eviction_decision_unparseable", "output", out)
		return Decision{}
	}
	var wire struct {
		Delete bool `json:"delete"`
		Index  int  `json:"index"`
	}
	if err := json.Unmarshal([]byte(block), &wire); err != nil {
		logger.Warn("eviction_decision_bad_json", "output", out, "error", err)
		return Decision{}
	}
	if !wire.Delete {
		return Decision{}
	}
	if wire.Index < 1 || wire.Index > candidateCount {
		logger.Warn("eviction_decision_index_out_of_range", "index", wire.Index, "candidates", candidateCount)
		return Decision{}
	}
	return Decision{Delete: true, Index: wire.Index - 1}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

var thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// chat issues one chat/completions call with bounded retries and
// exponential backoff. 429 and 5xx responses and network errors are
// retried; other 4xx responses are terminal.
func (c *Client) chat(ctx context.Context, model, prompt string, image []byte, format string, temperature float64) (string, error) {
	var content any = prompt
	if len(image) > 0 {
		if format == "" {
			format = "jpeg"
		}
		content = []map[string]any{
			{"type": "text", "text": prompt},
			{"type": "image_url", "image_url": map[string]string{
				"url": "data:image/" + strings.ToLower(format) + ";base64," +
					base64.StdEncoding.EncodeToString(image),
			}},
		}
	}
	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: content}},
		Temperature: temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	var lastErr error
	for retry := 0; retry < maxRetries; retry++ {
		if retry > 0 {
			wait := baseWait * time.Duration(1<<(retry-1))
			logger.Warn("captioner_retrying", "wait", wait.String(), "attempt", retry, "error", lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			requestRetriesTotal.Inc()
			continue
		}
		out, done, err := c.handleResponse(resp, model)
		if done {
			return out, err
		}
		lastErr = err
		requestRetriesTotal.Inc()
	}
	requestFailuresTotal.Inc()
	return "", fmt.Errorf("captioner request failed after %d attempts: %w", maxRetries, lastErr)
}

// handleResponse consumes one HTTP response. done=false means the caller
// should retry.
func (c *Client) handleResponse(resp *http.Response, model string) (string, bool, error) {
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return "", true, ErrPayloadTooLarge
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", false, fmt.Errorf("captioner returned status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", true, fmt.Errorf("captioner rejected request (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false, fmt.Errorf("failed to decode captioner response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("captioner response has no choices")
	}
	if parsed.Usage.TotalTokens > 0 {
		logger.Debug("captioner_tokens", "model", model,
			"prompt", parsed.Usage.PromptTokens,
			"completion", parsed.Usage.CompletionTokens,
			"total", parsed.Usage.TotalTokens)
	}
	content := strings.TrimSpace(thinkRe.ReplaceAllString(parsed.Choices[0].Message.Content, ""))
	requestsTotal.Inc()
	return content, true, nil
}

// splitTags normalizes comma-separated model output into at most
// maxTagCount trimmed tags. Full-width commas appear in multilingual
// output and are treated as separators too.
func splitTags(s string) []string {
	s = strings.ReplaceAll(s, "，", ",")
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
		if len(tags) == maxTagCount {
			break
		}
	}
	return tags
}
