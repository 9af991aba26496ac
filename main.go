package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/rentalgenie/rental-genie-agent/agent/contract"
	enginex "github.com/rentalgenie/rental-genie-agent/agent/engine"
	extractx "github.com/rentalgenie/rental-genie-agent/agent/extract"
	handoffx "github.com/rentalgenie/rental-genie-agent/agent/handoff"
	notifyx "github.com/rentalgenie/rental-genie-agent/agent/notify"
	respondx "github.com/rentalgenie/rental-genie-agent/agent/respond"
	statex "github.com/rentalgenie/rental-genie-agent/agent/state"
	configx "github.com/rentalgenie/rental-genie-agent/pkg/config"
	_ "github.com/rentalgenie/rental-genie-agent/pkg/logger/autoload"
	slackx "github.com/rentalgenie/rental-genie-agent/pkg/slack"
)

type AppConfig struct {
	SessionID string `envconfig:"SESSION_ID" default:"local-session"`
	Platform  string `envconfig:"PLATFORM" default:"web"`
	UserID    string `envconfig:"USER_ID" default:"local-user"`
	// Storage selects the snapshot backend: "", "postgres" or "upstash".
	Storage string `envconfig:"STORAGE"`
}

func main() {
	ctx := context.Background()
	appCfg := configx.MustNew[AppConfig]("APP")

	extractor, err := extractx.NewOpenAIExtractor(*configx.MustNew[extractx.Config]("OPENAI"))
	if err != nil {
		log.Fatal().Err(err).Msg("init extractor")
	}
	responder, err := respondx.NewOpenAIResponder(*configx.MustNew[respondx.Config]("OPENAI"))
	if err != nil {
		log.Fatal().Err(err).Msg("init responder")
	}

	var notifier contractx.Notifier
	slackCfg := configx.MustNew[slackx.Config]("SLACK")
	if strings.TrimSpace(slackCfg.WebhookURL) != "" {
		notifier, err = notifyx.NewSlackNotifier(slackx.MustNew(*slackCfg))
		if err != nil {
			log.Fatal().Err(err).Msg("init slack notifier")
		}
	} else {
		log.Warn().Msg("SLACK_WEBHOOK_URL not set, handoff notifications disabled")
	}

	store := statex.NewSessionStore()
	decider := handoffx.New(handoffx.DefaultConfig())

	var opts []enginex.Option
	if snapshots := buildSnapshotStore(ctx, appCfg.Storage); snapshots != nil {
		if snap, err := snapshots.Load(ctx, appCfg.SessionID); err == nil {
			if err := store.Restore(snap); err != nil {
				log.Warn().Err(err).Msg("restore previous session failed")
			}
		} else if !errors.Is(err, statex.ErrSnapshotNotFound) {
			log.Warn().Err(err).Msg("load previous session failed")
		}
		opts = append(opts, enginex.WithSnapshotStore(snapshots))
	}

	eng, err := enginex.New(store, extractor, responder, notifier, decider, enginex.Config{}, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("init engine")
	}

	runLoop(ctx, eng, appCfg)
}

func buildSnapshotStore(ctx context.Context, backend string) statex.Store {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "postgres":
		store, err := statex.NewPostgresSnapshotStore(*configx.MustNew[statex.PostgresConfig]("POSTGRES"))
		if err != nil {
			log.Fatal().Err(err).Msg("init postgres snapshot store")
		}
		if err := store.Init(ctx); err != nil {
			log.Fatal().Err(err).Msg("init postgres schema")
		}
		return store
	case "upstash":
		store, err := statex.NewUpstashSnapshotStore(*configx.MustNew[statex.UpstashConfig]("UPSTASH_REDIS"))
		if err != nil {
			log.Fatal().Err(err).Msg("init upstash snapshot store")
		}
		return store
	case "":
		return nil
	default:
		log.Fatal().Str("storage", backend).Msg("unknown storage backend")
		return nil
	}
}

func runLoop(ctx context.Context, eng *enginex.Engine, cfg *AppConfig) {
	fmt.Println("Rental Genie intake agent. Type a message, or /quit to exit.")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" {
			return
		}

		res, err := eng.HandleMessage(ctx, cfg.SessionID, statex.Platform(cfg.Platform), cfg.UserID, line)
		if err != nil {
			log.Error().Err(err).Msg("handle message")
			continue
		}
		if res.LoggedOnly {
			fmt.Println("(message logged; a human has taken over this conversation)")
			continue
		}
		fmt.Println(res.Reply)
		if res.HandoffTriggered {
			log.Info().
				Str("priority", string(res.Priority)).
				Str("reason", res.HandoffReason).
				Msg("conversation escalated")
		}
	}
}
