package anthropic

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/yungbote/ideaforge-backend/internal/llm"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

const ProviderName = "anthropic"

type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// Client generates text through the eino claude chat model.
type Client struct {
	chat      *claude.ChatModel
	log       *logger.Logger
	model     string
	maxTokens int
}

var _ llm.Generator = (*Client)(nil)

func NewClient(ctx context.Context, log *logger.Logger, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing ANTHROPIC_API_KEY")
	}
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		modelName = "claude-3-5-haiku-latest"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	chat, err := claude.NewChatModel(ctx, &claude.Config{
		APIKey:    cfg.APIKey,
		Model:     modelName,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, err
	}
	return &Client{chat: chat, log: log.With("service", "AnthropicClient"), model: modelName, maxTokens: maxTokens}, nil
}

func (c *Client) Provider() string { return ProviderName }

func (c *Client) Generate(ctx context.Context, in llm.Request) (llm.Response, error) {
	msgs := make([]*schema.Message, 0, 2)
	if strings.TrimSpace(in.System) != "" {
		msgs = append(msgs, schema.SystemMessage(in.System))
	}
	msgs = append(msgs, schema.UserMessage(in.User))

	opts := []model.Option{}
	modelName := c.model
	if m := strings.TrimSpace(in.Model); m != "" {
		modelName = m
		opts = append(opts, model.WithModel(m))
	}
	if in.Temperature != nil {
		opts = append(opts, model.WithTemperature(float32(*in.Temperature)))
	}
	if in.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(in.MaxTokens))
	}

	out, err := c.chat.Generate(ctx, msgs, opts...)
	if err != nil {
		return llm.Response{}, wrapErr(err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return llm.Response{}, &llm.ProviderError{Provider: ProviderName, Kind: llm.ErrEmptyResponse, Message: "empty message content"}
	}
	resp := llm.Response{Text: out.Content, Provider: ProviderName, Model: modelName}
	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		resp.InputTokens = out.ResponseMeta.Usage.PromptTokens
		resp.OutputTokens = out.ResponseMeta.Usage.CompletionTokens
	}
	return resp, nil
}

var statusRe = regexp.MustCompile(`\b([45]\d\d)\b`)

// wrapErr recovers the HTTP status from the SDK error text.
func wrapErr(err error) error {
	msg := err.Error()
	status := 0
	if m := statusRe.FindStringSubmatch(msg); len(m) == 2 {
		status, _ = strconv.Atoi(m[1])
	}
	return llm.Classify(ProviderName, status, msg, err)
}
