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

// geminiConfidence is the baseline confidence for Gemini-format output.
const geminiConfidence = 0.9

type geminiClient struct {
	cfg  model.ServiceConfig
	http *http.Client
}

func newGeminiClient(cfg model.ServiceConfig, hc *http.Client) *geminiClient {
	return &geminiClient{cfg: cfg, http: hc}
}

func (c *geminiClient) Config() model.ServiceConfig { return c.cfg }

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiGenConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (c *geminiClient) Generate(ctx context.Context, req Request) (*Response, error) {
	parts := []geminiPart{{Text: req.Prompt}}
	if len(req.ImageData) > 0 {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MIMEType: req.ImageMIME,
			Data:     base64.StdEncoding.EncodeToString(req.ImageData),
		}})
	}

	body := geminiRequest{Contents: []geminiContent{{Parts: parts}}}
	if req.MaxTokens > 0 || req.Temperature != nil {
		body.GenerationConfig = &geminiGenConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		}
	}

	retry := resilience.ProviderRetryConfig(c.cfg.MaxRetries, c.cfg.Provider, "generate")
	return resilience.DoVal(ctx, retry, func(ctx context.Context) (*Response, error) {
		return c.call(ctx, body)
	})
}

func (c *geminiClient) call(ctx context.Context, body geminiRequest) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: marshal request")
	}

	url := c.cfg.BaseURL + "/v1beta/models/" + c.cfg.Model + ":generateContent"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("gemini", resp.StatusCode, respBody)
	}

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "gemini: unmarshal response")
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, eris.New("gemini: empty candidates in response")
	}

	return &Response{
		Text:       result.Candidates[0].Content.Parts[0].Text,
		Confidence: geminiConfidence,
	}, nil
}

func (c *geminiClient) Probe(ctx context.Context) error {
	ctx, cancel := probeContext(ctx, c.cfg)
	defer cancel()

	_, err := c.call(ctx, geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: "ping"}}}},
		GenerationConfig: &geminiGenConfig{MaxOutputTokens: 8},
	})
	return err
}
