package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// openAI calls the chat completions endpoint over plain HTTP.
type openAI struct {
	apiKey   string
	model    string
	endpoint string
	http     *http.Client
}

func newOpenAI(apiKey, model string) *openAI {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &openAI{
		apiKey:   apiKey,
		model:    model,
		endpoint: "https://api.openai.com/v1/chat/completions",
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (o *openAI) name() string { return "openai" }

type oaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaRequest struct {
	Model          string            `json:"model"`
	Messages       []oaMessage       `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type oaResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (o *openAI) complete(ctx context.Context, c completion) (string, error) {
	body := oaRequest{
		Model: o.model,
		Messages: []oaMessage{
			{Role: "system", Content: c.System},
			{Role: "user", Content: c.Prompt},
		},
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	}
	if c.JSON {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var parsed oaResponse
	_ = json.Unmarshal(raw, &parsed)
	if resp.StatusCode >= 400 {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return "", fmt.Errorf("llm status %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("llm status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
