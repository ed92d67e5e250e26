package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/ensemble-chat/server/internal/core"
	"github.com/ensemble-chat/server/internal/eval/conversation"
	"github.com/ensemble-chat/server/internal/eval/harness"
	"github.com/ensemble-chat/server/internal/eval/judge"
	"github.com/ensemble-chat/server/internal/eval/proposition"
	"github.com/ensemble-chat/server/internal/eval/repo"
	"github.com/ensemble-chat/server/internal/eval/scorer"
	logx "github.com/ensemble-chat/server/pkg/logger"
	pkgredis "github.com/ensemble-chat/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the evaluation harness,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis pkgredis.Config

	// Evaluation inputs
	PropositionRoot string `envconfig:"PROPOSITION_ROOT" default:"config/propositions"`
	GoldenRoot      string `envconfig:"GOLDEN_ROOT" default:"config/golden"`
	ConversationTTL string `envconfig:"CONVERSATION_TTL" default:"168h"`

	// Harness run
	Agents           string  `envconfig:"EVAL_AGENTS" default:"all"`
	Roster           string  `envconfig:"EVAL_ROSTER"`
	ChannelID        string  `envconfig:"EVAL_CHANNEL_ID"`
	PassThreshold    float64 `envconfig:"EVAL_PASS_THRESHOLD" default:"5.0"`
	RegressionDelta  float64 `envconfig:"EVAL_REGRESSION_DELTA" default:"1.0"`
	JudgeConcurrency int     `envconfig:"EVAL_JUDGE_CONCURRENCY" default:"8"`
	ReportPath       string  `envconfig:"EVAL_REPORT_PATH"`
	// UseMockJudge switches to the deterministic judge, the CI default.
	UseMockJudge bool `envconfig:"EVAL_USE_MOCK_JUDGE" default:"true"`
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})

	rdb, err := cfg.Redis.New()
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	ttl, err := time.ParseDuration(cfg.ConversationTTL)
	if err != nil {
		log.Fatalf("Invalid CONVERSATION_TTL '%s': %v", cfg.ConversationTTL, err)
	}

	var j judge.Judge
	if cfg.UseMockJudge {
		j = judge.NewMockJudge()
	} else {
		var judgeCfg judge.Config
		if err := envconfig.Process("", &judgeCfg); err != nil {
			log.Fatalf("Failed to process judge config: %v", err)
		}
		gj, err := judge.NewGeminiJudge(ctx, judgeCfg)
		if err != nil {
			log.Fatalf("Failed to create judge: %v", err)
		}
		j = gj
	}

	store := conversation.NewRedisStore(rdb, ttl)
	runs := repo.NewRedisEvaluationRepository(rdb)
	library := proposition.NewLibrary(cfg.PropositionRoot)
	sc := scorer.New(library, j, store, runs, cfg.JudgeConcurrency)

	runner := harness.NewRunner(sc)
	report, err := runner.Run(ctx, harness.Config{
		Agents:          splitList(cfg.Agents),
		Roster:          splitList(cfg.Roster),
		ChannelID:       cfg.ChannelID,
		PassThreshold:   cfg.PassThreshold,
		RegressionDelta: cfg.RegressionDelta,
		GoldenRoot:      cfg.GoldenRoot,
	})
	if err != nil {
		log.Fatalf("Harness run failed: %v", err)
	}

	fmt.Print(harness.FormatPRComment(report, cfg.PassThreshold))

	if cfg.ReportPath != "" {
		if err := harness.WriteJSON(report, cfg.ReportPath); err != nil {
			log.Fatalf("Failed to write report: %v", err)
		}
	}

	if report.Summary.Failed > 0 {
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
