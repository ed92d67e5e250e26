// Package regen asks the character model for a fresh reply when the action
// gate rejects a draft. It is the pipeline's only writer-side model client;
// the judge never generates chat content.
package regen

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/conversation"
	"github.com/ensemble-chat/server/internal/eval/model"
	logx "github.com/ensemble-chat/server/pkg/logger"
)

//go:embed template/regen_prompt.txt
var regenPromptTemplate string

// historyLimit bounds the channel context handed to the character model.
const historyLimit = 12

// Config holds everything needed to construct the regeneration chain,
// sourced from environment variables.
type Config struct {
	APIKey      string  `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL     string  `envconfig:"GEMINI_BASE_URL"`
	Model       string  `envconfig:"AGENT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"AGENT_MAX_TOKENS" default:"2048"`
	Temperature float32 `envconfig:"AGENT_TEMPERATURE" default:"0.8"`
	// PersonaPath points at the personas YAML file. Empty uses a neutral
	// persona for every agent.
	PersonaPath    string `envconfig:"AGENT_PERSONA_PATH"`
	CallTimeoutSec int    `envconfig:"AGENT_CALL_TIMEOUT" default:"45"`
}

// Agent regenerates replies through an eino chain: persona-aware prompt
// template into the Gemini chat model.
type Agent struct {
	chain       compose.Runnable[map[string]any, *schema.Message]
	store       model.ConversationStore
	personas    *Personas
	modelName   string
	callTimeout time.Duration
}

// New composes the regeneration chain.
func New(ctx context.Context, cfg Config, store model.ConversationStore) (*Agent, error) {
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
		Model:       cfg.Model,
		Temperature: &cfg.Temperature,
		MaxTokens:   &cfg.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating character model")
		return nil, fmt.Errorf("error creating character model: %w", err)
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(regenPromptTemplate),
		schema.UserMessage("{{.Request}}"),
	)

	chain, err := compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(tpl).
		AppendChatModel(chatModel).
		Compile(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling regeneration chain")
		return nil, fmt.Errorf("error compiling regeneration chain: %w", err)
	}

	personas, err := LoadPersonas(cfg.PersonaPath)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.CallTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	return &Agent{
		chain:       chain,
		store:       store,
		personas:    personas,
		modelName:   cfg.Model,
		callTimeout: timeout,
	}, nil
}

// ModelName reports the configured character model, used for pricing lookups.
func (a *Agent) ModelName() string {
	return a.modelName
}

// Regenerate produces a new in-character reply for the channel, steering the
// model away from whatever the guidance lines describe.
func (a *Agent) Regenerate(ctx context.Context, agentID, channelID string, guidance []string) (string, model.TokenUsage, error) {
	var usage model.TokenUsage
	if strings.TrimSpace(agentID) == "" {
		return "", usage, errx.NewValidation("agentID is required")
	}

	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	history, err := a.store.ChannelMessages(ctx, channelID, model.Window{Limit: historyLimit})
	if err != nil {
		return "", usage, err
	}

	out, err := a.chain.Invoke(ctx, map[string]any{
		"AgentName": agentID,
		"Persona":   a.personas.Lookup(agentID),
		"History":   strings.Join(conversation.EvidenceLines(history), "\n"),
		"Guidance":  "- " + strings.Join(guidance, "\n- "),
		"Request":   "Write your next message in the conversation.",
	}, compose.WithCallbacks(newModelUsageCallbacks()))
	if err != nil {
		logx.Error().Err(err).Str("agentID", agentID).Msg("regeneration call failed")
		return "", usage, errx.WrapJudge(err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", usage, errx.WrapJudge(fmt.Errorf("empty regeneration reply"))
	}

	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		usage = model.TokenUsage{
			InputTokens:  out.ResponseMeta.Usage.PromptTokens,
			OutputTokens: out.ResponseMeta.Usage.CompletionTokens,
		}
	}
	return strings.TrimSpace(out.Content), usage, nil
}
