package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/reviewloop/reviewloop/internal/ai"
	"github.com/reviewloop/reviewloop/internal/config"
	"github.com/reviewloop/reviewloop/internal/discussion"
	"github.com/reviewloop/reviewloop/internal/dispatch"
	"github.com/reviewloop/reviewloop/internal/event"
	"github.com/reviewloop/reviewloop/internal/logging"
	"github.com/reviewloop/reviewloop/internal/quota"
	"github.com/reviewloop/reviewloop/internal/registry"
	"github.com/reviewloop/reviewloop/internal/review"
	"github.com/reviewloop/reviewloop/internal/server"
	"github.com/reviewloop/reviewloop/internal/store"
	"github.com/reviewloop/reviewloop/internal/store/postgres"
)

var version = "0.1.0"

const botName = "reviewloop"

func main() {
	rootCmd := &cobra.Command{
		Use:   "reviewloop",
		Short: "AI code review webhook service for GitHub and GitLab",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("reviewloop v%s\n", version)
		},
	}
}

func serveCmd() *cobra.Command {
	var configPath string
	var envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			loadEnv(envFile)

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "Path to config file")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (optional)")

	return cmd
}

func loadEnv(envFile string) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Printf("Warning: could not load env file %s: %v", envFile, err)
		}
		return
	}
	godotenv.Load(".env")
	godotenv.Load("/etc/reviewloop/reviewloop.env")
}

func runServe(cfg *config.Config) error {
	s, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ledger := quota.NewLedger(s, cfg.Limits.QuotaTTL())
	aiClient := ai.NewHTTPClient(cfg.AI, s, ledger, cfg.Limits.MaxAIRequestsPerHour)
	builder := discussion.NewBuilder(cfg.Limits.MaxReplyDepth)

	pipelines := []review.Pipeline{
		review.NewCodeReviewPipeline(aiClient, cfg.AI.Language),
		review.NewLogicReviewPipeline(aiClient, cfg.AI.Language),
	}

	guardrail := review.NewGuardrail(botName,
		cfg.Limits.MaxFilesPerMR, cfg.Limits.MaxLinesPerFile, cfg.Limits.MaxBytesPerFile)
	replies := review.NewReplyHandler(botName, aiClient, builder, ledger,
		cfg.Limits.MaxCommentReplies, cfg.AI.Language)
	bot := review.NewBot(botName, ledger, guardrail, pipelines, replies,
		cfg.Limits.MaxMRReviewsPerHour)

	clients := registry.New(cfg)
	svc := review.NewService(clients, bot, builder, s, cfg.Limits.MaxMRReviews)

	logWriter := logging.NewWriter(cfg.Logging.Dir)
	cleaner := logging.NewCleaner(cfg.Logging.Dir, cfg.Logging.RetentionDays)
	scheduler := logging.NewCleanupScheduler(cleaner, 24*time.Hour)
	scheduler.Start()
	defer scheduler.Stop()

	pool := dispatch.NewPool(dispatch.Config{
		Workers:   cfg.Workers.Count,
		QueueSize: cfg.Workers.QueueSize,
	}, logWriter)

	debouncer := event.NewDebouncer(time.Duration(cfg.Workers.DebounceSeconds) * time.Second)

	srv := server.New(cfg, svc, pool, debouncer, ledger)

	log.Printf("Starting reviewloop v%s (providers: %v)", version, clients.List())
	return srv.ListenAndServeWithShutdown()
}

// openStore builds the counter store named by the config. The returned
// close function is a no-op for the in-memory store.
func openStore(cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Store.Driver {
	case "postgres":
		pg, err := postgres.New(context.Background(), cfg.Store.PostgresURL, postgres.DefaultConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres store: %w", err)
		}
		log.Printf("Using postgres counter store")
		return pg, pg.Close, nil
	default:
		return store.NewMemory(), func() {}, nil
	}
}
