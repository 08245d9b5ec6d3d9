package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/trialvoice-core/engine/internal/agent/driver"
	"github.com/trialvoice-core/engine/internal/agent/model"
	"github.com/trialvoice-core/engine/internal/agent/repo"
	"github.com/trialvoice-core/engine/internal/agent/session"
	"github.com/trialvoice-core/engine/internal/agent/tools"
	"github.com/trialvoice-core/engine/internal/core"
	logx "github.com/trialvoice-core/engine/pkg/logger"
	pkgredis "github.com/trialvoice-core/engine/pkg/redis"
)

// AppConfig defines all configurable parameters for the engine, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis      pkgredis.Config
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"24h"`

	// LLM provider; leave GEMINI_API_KEY unset to run the scripted demo driver.
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Engine configs
	Limits       model.SessionLimitsConfig
	Routing      model.RoutingConfig
	Breaker      model.BreakerConfig
	Driver       model.DriverModelConfig
	Conversation model.ConversationConfig
	Prompt       model.PromptConfig
}

// consolePipeline is a stand-in audio pipeline that prints agent speech.
type consolePipeline struct{}

func (consolePipeline) Speak(_ context.Context, text string) error {
	fmt.Printf("Agent: %s\n", text)
	return nil
}

func (consolePipeline) SpeakUninterruptible(_ context.Context, text string) error {
	fmt.Printf("Agent (uninterruptible): %s\n", text)
	return nil
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

	// Session archive is optional for local runs; without Redis the session
	// still works, only persistence is skipped.
	var archive session.Archiver
	if cfg.Redis.URL != "" {
		rdb, err := cfg.Redis.New()
		if err != nil {
			log.Fatalf("Failed to initialise Redis client: %v", err)
		}
		defer rdb.Close()
		archive = repo.NewRedisSessionArchive(rdb, cfg.SessionTTL)
		fmt.Println("Connected to Redis successfully")
	}

	backends := tools.Backends{
		Knowledge: tools.NewMemoryKnowledge(),
		Scheduler: tools.NewMemoryScheduler(),
		Mailer:    tools.NewMemoryMailer(),
		Events:    tools.NewMemoryEvents(),
	}
	specs := tools.Registry(backends)

	var drv model.ConversationDriver
	if cfg.APIKey != "" {
		gd, err := driver.NewGeminiDriver(ctx, driver.GeminiDriverConfig{
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Driver,
			Prompt:   cfg.Prompt,
			MaxTurns: cfg.Conversation.HistoryMaxTurns,
		}, specs)
		if err != nil {
			log.Fatalf("Failed to build Gemini driver: %v", err)
		}
		drv = gd
	} else {
		drv = scriptedDemoDriver()
		fmt.Println("GEMINI_API_KEY not set, running scripted demo driver")
	}

	orch := session.New(session.Config{
		Limits:       cfg.Limits,
		Routing:      cfg.Routing,
		Breaker:      cfg.Breaker,
		Conversation: cfg.Conversation,
	}, drv, consolePipeline{}, specs, archive)
	orch.Start(ctx)

	utterances := []string{
		"Hi, yes, that's fine with me.",
		"We're a healthcare company and getting contracts signed takes forever.",
		"We have 8 sales reps sending about 40 proposals a week.",
		"We need Salesforce sync for all of it.",
		"Sure, let's book a meeting. I'm Jamie, jamie@example.com.",
	}
	for i, u := range utterances {
		fmt.Printf("\nCaller: %s\n", u)
		orch.OnUtterance(ctx, u)
		fmt.Printf("  [phase=%s tier=%s]\n", orch.Phase(), orch.Qualification().Tier)
		if i < len(utterances)-1 {
			time.Sleep(200 * time.Millisecond)
		}
	}

	orch.EndByUser()
	<-orch.Done()

	export := orch.Export()
	b, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal session export: %v", err)
	}
	fmt.Printf("\nSession export:\n%s\n", b)
}

// scriptedDemoDriver replays a qualifying trial call end to end, exercising
// consent recording, signal confirmation, availability lookup, booking, and
// the follow-up email.
func scriptedDemoDriver() *driver.ScriptedDriver {
	return driver.NewScriptedDriver(
		&model.DriverDecision{
			Speech: "Great, thanks! How's your trial going so far?",
			ToolRequests: []model.ToolRequest{
				{ToolID: tools.RecordConsent, Params: map[string]any{"granted": true, "channel": "email"}},
			},
		},
		&model.DriverDecision{Speech: "Perfect, we're all set."},
		&model.DriverDecision{Speech: "That's a common pain point in healthcare. What does your signing process look like today?"},
		&model.DriverDecision{
			Speech: "Got it, eight reps and a steady proposal volume.",
			ToolRequests: []model.ToolRequest{
				{ToolID: tools.LogQualification, Params: map[string]any{"team_size": 8, "industry": "healthcare"}},
			},
		},
		&model.DriverDecision{Speech: "Thanks, noted."},
		&model.DriverDecision{
			Speech: "Salesforce sync is fully supported. Let me check when our team could walk you through it.",
			ToolRequests: []model.ToolRequest{
				{ToolID: tools.CheckAvailability, Params: map[string]any{"preferred_date": "tomorrow"}},
			},
		},
		&model.DriverDecision{Speech: "I have a few open slots tomorrow morning. Would one of those work?"},
		&model.DriverDecision{
			Speech: "Booking that now and sending you a recap.",
			ToolRequests: []model.ToolRequest{
				{ToolID: tools.BookMeeting, Params: map[string]any{
					"customer_name":  "Jamie",
					"customer_email": "jamie@example.com",
					"preferred_date": "tomorrow",
					"preferred_time": "10:00",
				}},
				{ToolID: tools.SendFollowupEmail, Params: map[string]any{
					"to":      "jamie@example.com",
					"subject": "Your DocuFlow sales meeting",
					"body":    "Thanks for the call! Your meeting is booked; details inside.",
				}},
			},
		},
		&model.DriverDecision{Speech: "You're booked! You'll get a confirmation email shortly. Anything else?"},
	)
}
