package judge

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/model"
	logx "github.com/ensemble-chat/server/pkg/logger"
)

//go:embed template/judge_prompt.txt
var judgeSystemPrompt string

//go:embed template/rewrite_prompt.txt
var rewritePromptTemplate string

// Config holds everything needed to construct the live Gemini judge,
// sourced from environment variables.
type Config struct {
	APIKey      string  `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL     string  `envconfig:"GEMINI_BASE_URL"`
	Model       string  `envconfig:"JUDGE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"JUDGE_MAX_TOKENS" default:"1024"`
	Temperature float32 `envconfig:"JUDGE_TEMPERATURE" default:"0.0"`
	// CallTimeoutSec bounds each individual judge call, distinct from the
	// caller's overall request timeout.
	CallTimeoutSec int `envconfig:"JUDGE_CALL_TIMEOUT" default:"30"`
}

// GeminiJudge scores propositions with a Gemini chat model. It also
// implements Editor for the gate's direct-correction stage.
type GeminiJudge struct {
	chatModel   einomodel.BaseChatModel
	modelName   string
	callTimeout time.Duration
}

// NewGeminiJudge creates the live judge client.
func NewGeminiJudge(ctx context.Context, cfg Config) (*GeminiJudge, error) {
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
		logx.Error().Err(err).Msg("Error creating judge model")
		return nil, fmt.Errorf("error creating judge model: %w", err)
	}

	timeout := time.Duration(cfg.CallTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &GeminiJudge{
		chatModel:   chatModel,
		modelName:   cfg.Model,
		callTimeout: timeout,
	}, nil
}

// ModelName reports the configured judge model, used for pricing lookups.
func (g *GeminiJudge) ModelName() string {
	return g.modelName
}

// Judge scores one claim against the evidence messages.
func (g *GeminiJudge) Judge(ctx context.Context, claim string, evidence []string) (*Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	out, err := g.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(judgeSystemPrompt),
		schema.UserMessage(buildJudgeInput(claim, evidence)),
	})
	if err != nil {
		logx.Error().Err(err).Str("claim", claim).Msg("judge call failed")
		return nil, errx.WrapJudge(err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return nil, errx.WrapJudge(fmt.Errorf("empty judge reply"))
	}

	score, reasoning, err := parseVerdict(out.Content)
	if err != nil {
		logx.Error().Err(err).Str("claim", claim).Msg("judge reply malformed")
		return nil, errx.WrapJudge(err)
	}

	return &Verdict{
		Score:     score,
		Reasoning: reasoning,
		Usage:     usageFrom(out),
	}, nil
}

// Rewrite applies guidance to a candidate message, returning the edited text.
func (g *GeminiJudge) Rewrite(ctx context.Context, text string, guidance []string) (string, model.TokenUsage, error) {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	var usage model.TokenUsage

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.UserMessage(rewritePromptTemplate),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Text":     text,
		"Guidance": "- " + strings.Join(guidance, "\n- "),
	})
	if err != nil {
		return "", usage, fmt.Errorf("rewrite prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", usage, fmt.Errorf("rewrite prompt render: empty result")
	}

	out, err := g.chatModel.Generate(ctx, msgs)
	if err != nil {
		logx.Error().Err(err).Msg("rewrite call failed")
		return "", usage, errx.WrapJudge(err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", usage, errx.WrapJudge(fmt.Errorf("empty rewrite reply"))
	}

	usage = usageFrom(out)
	return strings.TrimSpace(out.Content), usage, nil
}

// buildJudgeInput frames the claim and evidence the way the system prompt
// expects. Evidence lines are numbered so reasoning can cite them.
func buildJudgeInput(claim string, evidence []string) string {
	var b strings.Builder
	b.WriteString("<claim>\n")
	b.WriteString(claim)
	b.WriteString("\n</claim>\n\n<evidence>\n")
	if len(evidence) == 0 {
		b.WriteString("(no messages in window)\n")
	}
	for i, line := range evidence {
		fmt.Fprintf(&b, "%02d. %s\n", i+1, line)
	}
	b.WriteString("</evidence>")
	return b.String()
}

func usageFrom(out *schema.Message) model.TokenUsage {
	if out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return model.TokenUsage{}
	}
	return model.TokenUsage{
		InputTokens:  out.ResponseMeta.Usage.PromptTokens,
		OutputTokens: out.ResponseMeta.Usage.CompletionTokens,
	}
}

var _ Judge = (*GeminiJudge)(nil)
var _ Editor = (*GeminiJudge)(nil)
