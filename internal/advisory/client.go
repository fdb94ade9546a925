package advisory

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"ai-cruise/internal/config"
)

// Client 封装与大模型顾问的对话，默认对接 DeepSeek 的
// OpenAI 兼容接口，BaseURL 可替换为任意兼容服务。
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient 创建顾问客户端。
func NewClient(cfg config.AdvisoryConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		api:     openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: timeout,
		logger:  logger,
	}
}

// Ask 发送一次决策请求并解析建议。
// 调用期间不持有任何业务锁，网络耗时不会阻塞巡航循环之外的组件。
func (c *Client) Ask(ctx context.Context, data PromptData) (*Advice, error) {
	prompt, err := BuildPrompt(data)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("顾问调用失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("顾问返回空回复")
	}

	content := resp.Choices[0].Message.Content
	advice, err := ParseAdvice(content)
	if err != nil {
		c.logger.Warn("顾问回复解析失败",
			zap.String("content", truncate(content, 300)),
			zap.Error(err))
		return nil, err
	}

	c.logger.Info("顾问建议",
		zap.String("action", advice.Action),
		zap.Float64("position", advice.Position),
		zap.Float64("confidence", advice.Confidence),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("reason", advice.Reason))

	return advice, nil
}
