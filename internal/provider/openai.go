package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/airqa/inspect-cli/internal/model"
	"github.com/airqa/inspect-cli/internal/resilience"
)

// openaiConfidence is the baseline confidence for OpenAI-format output.
const openaiConfidence = 0.85

type openaiClient struct {
	cfg  model.ServiceConfig
	http *http.Client
}

func newOpenAIClient(cfg model.ServiceConfig, hc *http.Client) *openaiClient {
	return &openaiClient{cfg: cfg, http: hc}
}

func (c *openaiClient) Config() model.ServiceConfig { return c.cfg }

type openaiContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openaiImageURL `json:"image_url,omitempty"`
}

type openaiImageURL struct {
	URL string `json:"url"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *openaiClient) Generate(ctx context.Context, req Request) (*Response, error) {
	var content any = req.Prompt
	if len(req.ImageData) > 0 {
		dataURL := "data:" + req.ImageMIME + ";base64," + base64.StdEncoding.EncodeToString(req.ImageData)
		content = []openaiContentPart{
			{Type: "text", Text: req.Prompt},
			{Type: "image_url", ImageURL: &openaiImageURL{URL: dataURL}},
		}
	}

	body := openaiRequest{
		Model:       c.cfg.Model,
		Messages:    []openaiMessage{{Role: "user", Content: content}},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	retry := resilience.ProviderRetryConfig(c.cfg.MaxRetries, c.cfg.Provider, "generate")
	return resilience.DoVal(ctx, retry, func(ctx context.Context) (*Response, error) {
		return c.call(ctx, body)
	})
}

func (c *openaiClient) call(ctx context.Context, body openaiRequest) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "openai: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "openai: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "openai: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "openai: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("openai", resp.StatusCode, respBody)
	}

	var result openaiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "openai: unmarshal response")
	}
	if len(result.Choices) == 0 {
		return nil, eris.New("openai: empty choices in response")
	}

	return &Response{
		Text:       result.Choices[0].Message.Content,
		Confidence: openaiConfidence,
	}, nil
}

func (c *openaiClient) Probe(ctx context.Context) error {
	ctx, cancel := probeContext(ctx, c.cfg)
	defer cancel()

	_, err := c.call(ctx, openaiRequest{
		Model:     c.cfg.Model,
		Messages:  []openaiMessage{{Role: "user", Content: "ping"}},
		MaxTokens: 8,
	})
	return err
}
