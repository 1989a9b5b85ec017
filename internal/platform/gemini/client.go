package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	genai "google.golang.org/genai"

	"github.com/yungbote/ideaforge-backend/internal/llm"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

const ProviderName = "gemini"

type Config struct {
	APIKey          string
	Model           string
	EmbedModel      string
	EmbedDimensions int
}

// Client is a thin wrapper around the official genai client.
type Client struct {
	cli        *genai.Client
	log        *logger.Logger
	model      string
	embedModel string
	embedDims  int
}

var (
	_ llm.Generator = (*Client)(nil)
	_ llm.Embedder  = (*Client)(nil)
)

func NewClient(ctx context.Context, log *logger.Logger, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.0-flash"
	}
	embed := strings.TrimSpace(cfg.EmbedModel)
	if embed == "" {
		embed = "text-embedding-004"
	}
	return &Client{
		cli:        cli,
		log:        log.With("service", "GeminiClient"),
		model:      model,
		embedModel: embed,
		embedDims:  cfg.EmbedDimensions,
	}, nil
}

func (c *Client) Provider() string { return ProviderName }

func (c *Client) Generate(ctx context.Context, in llm.Request) (llm.Response, error) {
	model := strings.TrimSpace(in.Model)
	if model == "" {
		model = c.model
	}
	cfg := &genai.GenerateContentConfig{}
	if strings.TrimSpace(in.System) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(in.System, genai.RoleUser)
	}
	if in.Temperature != nil {
		t := float32(*in.Temperature)
		cfg.Temperature = &t
	}
	if in.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(in.MaxTokens)
	}
	if in.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := c.cli.Models.GenerateContent(ctx, model,
		[]*genai.Content{genai.NewContentFromText(in.User, genai.RoleUser)},
		cfg,
	)
	if err != nil {
		return llm.Response{}, wrapErr(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return llm.Response{}, &llm.ProviderError{Provider: ProviderName, Kind: llm.ErrEmptyResponse, Message: "no candidates returned"}
	}
	out := llm.Response{Text: text, Provider: ProviderName, Model: model}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("embed: empty input")
	}
	cfg := &genai.EmbedContentConfig{}
	if c.embedDims > 0 {
		d := int32(c.embedDims)
		cfg.OutputDimensionality = &d
	}
	resp, err := c.cli.Models.EmbedContent(ctx, c.embedModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		cfg,
	)
	if err != nil {
		return nil, wrapErr(err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, &llm.ProviderError{Provider: ProviderName, Kind: llm.ErrEmptyResponse, Message: "no embedding returned"}
	}
	return resp.Embeddings[0].Values, nil
}

func wrapErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llm.Classify(ProviderName, apiErr.Code, strings.TrimSpace(apiErr.Status+" "+apiErr.Message), err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return llm.Classify(ProviderName, apiErrPtr.Code, strings.TrimSpace(apiErrPtr.Status+" "+apiErrPtr.Message), err)
	}
	return llm.Classify(ProviderName, 0, err.Error(), err)
}
