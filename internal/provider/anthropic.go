package provider

import (
	"context"
	"encoding/base64"
	"net/http"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/airqa/inspect-cli/internal/model"
	"github.com/airqa/inspect-cli/internal/resilience"
)

// anthropicConfidence is the baseline confidence for Anthropic-format output.
const anthropicConfidence = 0.88

const anthropicDefaultMaxTokens = 4096

// anthropicClient wraps the official SDK rather than speaking raw REST.
type anthropicClient struct {
	cfg model.ServiceConfig
	sdk sdk.Client
}

func newAnthropicClient(cfg model.ServiceConfig, hc *http.Client) *anthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(hc),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicClient{cfg: cfg, sdk: sdk.NewClient(opts...)}
}

func (c *anthropicClient) Config() model.ServiceConfig { return c.cfg }

func (c *anthropicClient) Generate(ctx context.Context, req Request) (*Response, error) {
	blocks := []sdk.ContentBlockParamUnion{sdk.NewTextBlock(req.Prompt)}
	if len(req.ImageData) > 0 {
		blocks = append(blocks, sdk.NewImageBlockBase64(req.ImageMIME,
			base64.StdEncoding.EncodeToString(req.ImageData)))
	}

	maxTokens := int64(anthropicDefaultMaxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.cfg.Model),
		MaxTokens: maxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	retry := resilience.ProviderRetryConfig(c.cfg.MaxRetries, c.cfg.Provider, "generate")
	return resilience.DoVal(ctx, retry, func(ctx context.Context) (*Response, error) {
		msg, err := c.sdk.Messages.New(ctx, params)
		if err != nil {
			return nil, mapAnthropicError(err)
		}
		for _, block := range msg.Content {
			if block.Type == "text" {
				return &Response{Text: block.Text, Confidence: anthropicConfidence}, nil
			}
		}
		return nil, eris.New("anthropic: no text block in response")
	})
}

func (c *anthropicClient) Probe(ctx context.Context) error {
	ctx, cancel := probeContext(ctx, c.cfg)
	defer cancel()

	_, err := c.sdk.Models.List(ctx, sdk.ModelListParams{Limit: sdk.Int(1)})
	if err != nil {
		return mapAnthropicError(err)
	}
	return nil
}

// mapAnthropicError maps SDK errors onto the retry taxonomy by status code.
func mapAnthropicError(err error) error {
	var apiErr *sdk.Error
	if eris.As(err, &apiErr) {
		return statusError("anthropic", apiErr.StatusCode, []byte(apiErr.Error()))
	}
	return eris.Wrap(err, "anthropic: request")
}
