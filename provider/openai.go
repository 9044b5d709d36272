package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	oaioption "github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/agentpipe/agentpipe/logger"
	"github.com/agentpipe/agentpipe/message"
)

const (
	openAIDefaultBase = "https://api.openai.com/v1"
	sdkMaxRetries     = 3
)

// OpenAIProvider implements Provider on top of an OpenAI-compatible chat
// completions API via the official SDK. The SDK owns retry policy here.
type OpenAIProvider struct {
	modelName   string
	maxTokens   int
	temperature float64
	client      openai.Client
}

// NewOpenAIProvider creates an SDK-backed provider. apiBase may be empty for
// the default OpenAI endpoint or point at any compatible service.
func NewOpenAIProvider(apiKey, apiBase, modelName string, maxTokens int, temperature float64) *OpenAIProvider {
	baseURL := strings.TrimSpace(apiBase)
	if baseURL == "" {
		baseURL = openAIDefaultBase
	}
	baseURL = strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/chat/completions")

	client := openai.NewClient(
		oaioption.WithAPIKey(apiKey),
		oaioption.WithBaseURL(baseURL),
		oaioption.WithMaxRetries(sdkMaxRetries),
	)

	return &OpenAIProvider{
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: temperature,
		client:      client,
	}
}

// SendMessage sends one exchange and returns the reply as an assistant message.
func (p *OpenAIProvider) SendMessage(ctx context.Context, req *Request) (*message.Message, error) {
	start := time.Now()

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage(req.Content),
	}

	chatReq := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.modelName),
		Messages: messages,
		Tools:    toOpenAIChatTools(req.Tools),
	}
	if p.maxTokens > 0 {
		chatReq.MaxTokens = openai.Int(int64(p.maxTokens))
	}
	if p.temperature != 0 {
		chatReq.Temperature = openai.Float(p.temperature)
	}

	logger.Info("openai request",
		"modelName", p.modelName,
		"toolCount", len(req.Tools),
		"inputChars", len(req.Content),
	)

	chatResp, err := p.client.Chat.Completions.New(ctx, chatReq)
	if err != nil {
		logger.Error("openai request send error", "err", err)
		return nil, &TransportError{Err: err}
	}

	if len(chatResp.Choices) == 0 {
		return nil, ErrNoData
	}
	choice := chatResp.Choices[0]
	content := choice.Message.Content
	if strings.TrimSpace(content) == "" {
		return nil, ErrNoData
	}

	logger.Info("openai response",
		"modelName", p.modelName,
		"finishReason", choice.FinishReason,
		"totalTokens", chatResp.Usage.TotalTokens,
		"outputChars", len(content),
		"latencyMs", time.Since(start).Milliseconds(),
	)

	msg := message.New(content, req.AgentID, message.RoleAssistant)
	if req.ThreadID != "" {
		msg = msg.WithMetadata(map[string]string{"threadId": req.ThreadID})
	}
	return msg, nil
}

// toOpenAIChatTools converts wire tool definitions into SDK params.
func toOpenAIChatTools(defs []ToolDef) []openai.ChatCompletionToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))
	for _, def := range defs {
		out = append(out, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        def.Name,
			Description: openai.String(def.Description),
			Parameters:  shared.FunctionParameters(def.Parameters),
		}))
	}
	return out
}

var _ Provider = (*OpenAIProvider)(nil)
var _ Provider = (*HTTPProvider)(nil)

// String identifies the provider in logs.
func (p *OpenAIProvider) String() string {
	return fmt.Sprintf("openai(%s)", p.modelName)
}
