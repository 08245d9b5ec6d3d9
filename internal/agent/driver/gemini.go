// Package driver holds the conversation drivers: the Gemini-backed production
// driver and a scripted driver for demos and tests.
package driver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/trialvoice-core/engine/internal/agent/model"
	"github.com/trialvoice-core/engine/internal/agent/observers"
	"github.com/trialvoice-core/engine/internal/agent/prompts"
	"github.com/trialvoice-core/engine/internal/agent/supervisor"
	logx "github.com/trialvoice-core/engine/pkg/logger"
)

// GeminiDriver turns conversation context into speech and tool requests via a
// Gemini chat model with the tool set bound.
type GeminiDriver struct {
	chatModel *gemini.ChatModel
	modelName string
	pricing   model.Pricing
	promptCfg model.PromptConfig
	maxTurns  int
	handler   callbacks.Handler
}

// GeminiDriverConfig carries what NewGeminiDriver needs beyond the registry.
type GeminiDriverConfig struct {
	APIKey   string
	BaseURL  string
	Model    model.DriverModelConfig
	Prompt   model.PromptConfig
	MaxTurns int
}

// NewGeminiDriver builds the client, the chat model, and binds the tool
// schemas so the model can request external actions.
func NewGeminiDriver(ctx context.Context, cfg GeminiDriverConfig, specs []*supervisor.ToolSpec) (*GeminiDriver, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Model.Model,
		Temperature: &cfg.Model.Temperature,
		MaxTokens:   &cfg.Model.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating driver model")
		return nil, fmt.Errorf("error creating driver model: %w", err)
	}

	if err := chatModel.BindTools(toolInfos(specs)); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return nil, fmt.Errorf("failed to bind tools: %w", err)
	}

	return &GeminiDriver{
		chatModel: chatModel,
		modelName: cfg.Model.Model,
		pricing:   model.ResolvePricing(cfg.Model.Model),
		promptCfg: cfg.Prompt,
		maxTurns:  cfg.MaxTurns,
		handler:   observers.NewDriverCallbacks(),
	}, nil
}

// toolInfos lifts supervised tool specs into the schema the model binds.
func toolInfos(specs []*supervisor.ToolSpec) []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(specs))
	for _, s := range specs {
		infos = append(infos, &schema.ToolInfo{
			Name:        s.ID,
			Desc:        s.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(s.Params),
		})
	}
	return infos
}

// Decide renders the system prompt for the current phase, replays the bounded
// history, and maps the model's reply into speech plus tool requests.
func (d *GeminiDriver) Decide(ctx context.Context, dc *model.DriverContext) (*model.DriverDecision, error) {
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "conversation-driver",
		Type:      d.modelName,
		Component: components.ComponentOfChatModel,
	}, d.handler)

	system, err := prompts.RenderSystem(ctx, d.promptCfg, dc.Phase, dc.Qualification)
	if err != nil {
		return nil, err
	}

	msgs := make([]*schema.Message, 0, len(dc.History)+1)
	msgs = append(msgs, schema.SystemMessage(system))
	msgs = append(msgs, trimTail(dc.History, d.maxTurns)...)

	resp, err := d.chatModel.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("driver generate: %w", err)
	}

	decision := &model.DriverDecision{Speech: resp.Content}
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		_, _, total := model.ComputeCost(resp.ResponseMeta.Usage, d.pricing)
		decision.CostUSD = total
	}

	for _, tc := range resp.ToolCalls {
		params := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &params); err != nil {
				logx.Warn().Str("tool", tc.Function.Name).Err(err).Msg("Unparseable tool arguments, skipping request")
				continue
			}
		}
		decision.ToolRequests = append(decision.ToolRequests, model.ToolRequest{
			ToolID: tc.Function.Name,
			Params: params,
		})
	}
	return decision, nil
}

// trimTail keeps the most recent n messages.
func trimTail(msgs []*schema.Message, n int) []*schema.Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
