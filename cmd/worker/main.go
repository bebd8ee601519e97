package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/delivery"
	"github.com/ignite/leadflow/internal/engine/lint"
	"github.com/ignite/leadflow/internal/engine/objection"
	"github.com/ignite/leadflow/internal/enrichment"
	"github.com/ignite/leadflow/internal/repository/postgres"
	"github.com/ignite/leadflow/internal/service/pipeline"
	"github.com/ignite/leadflow/internal/service/suppression"
	"github.com/ignite/leadflow/internal/storage"
	"github.com/ignite/leadflow/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := postgres.Open(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	store := postgres.NewStore(db)
	registry := suppression.NewService(postgres.NewSuppressionRepo(db))

	artifacts, err := storage.New(context.Background(), cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to init artifact storage: %v", err)
	}

	workerID := hostWorkerID()

	var completer enrichment.Completer
	if cfg.AI.ModelID != "" {
		bedrock, berr := enrichment.NewBedrockCompleter(context.Background(), cfg.AI.ModelID, cfg.AI.Region)
		if berr != nil {
			log.Fatalf("Failed to init Bedrock completer: %v", berr)
		}
		completer = bedrock
		log.Printf("Bedrock model: %s (%s)", cfg.AI.ModelID, cfg.AI.Region)
	} else {
		log.Println("No Bedrock model configured; classification and generation use offline defaults")
	}

	classifier := enrichment.NewStrictClassifier(completer)
	svc := pipeline.NewService(
		store,
		registry,
		enrichment.NewStorefrontScraper(artifacts),
		classifier,
		classifier,
		enrichment.NewGenerator(completer, cfg.Policy.BookingLink, cfg.Meeting.Duration),
		lint.New(cfg.Policy.ForbiddenPhrases, cfg.Policy.ForbiddenVariables, cfg.Policy.MaxItemsPerMessage),
		objection.NewResponder(cfg.Policy.BookingLink, objection.Meeting{
			Duration:  cfg.Meeting.Duration,
			Days:      cfg.Meeting.Days,
			Hours:     cfg.Meeting.Hours,
			Organizer: cfg.Meeting.Organizer,
		}),
		pipeline.Options{
			ItemCap:           cfg.Policy.MaxItemsPerMessage,
			ApprovalThreshold: cfg.Policy.HumanApprovalThreshold,
			ResearchBudgetMS:  cfg.Research.BudgetMS,
			ResearchMaxPages:  cfg.Research.MaxPages,
			TouchDelayHours:   cfg.Sequence.TouchDelayHours,
			WorkerID:          workerID,
		},
	)

	var dispatcher *worker.Dispatcher
	if cfg.Provider.APIKey != "" {
		provider, err := delivery.New(cfg.Provider)
		if err != nil {
			log.Fatalf("Failed to init delivery provider: %v", err)
		}

		limiter := worker.NewDomainLimiter(nil, 0)
		var redisClient *redis.Client
		if cfg.Redis.Enabled && cfg.Redis.URL != "" {
			limiter, err = worker.NewDomainLimiterFromURL(cfg.Redis.URL, cfg.Policy.RatePerDomainPerDay)
			if err != nil {
				// Degraded but running: sends go out uncapped.
				log.Printf("Redis unavailable, per-domain limit disabled: %v", err)
				limiter = worker.NewDomainLimiter(nil, 0)
			}
			opts, parseErr := redis.ParseURL(cfg.Redis.URL)
			if parseErr == nil {
				redisClient = redis.NewClient(opts)
				defer redisClient.Close()
			}
		}
		defer limiter.Close()

		dispatcher = worker.NewDispatcher(db, redisClient, provider, limiter, "leadflow-outreach")
		log.Printf("Dispatching sequences via %s", provider.Name())
	} else {
		log.Println("No provider API key; running research-only")
	}

	w := worker.NewWorker(svc, dispatcher, cfg.Worker.PollInterval())
	w.Start(context.Background())
	log.Printf("Worker %s running", workerID)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	log.Println("Shutting down...")
	w.Stop()
	log.Println("Worker stopped")
}

func hostWorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		return "worker"
	}
	return "worker-" + host
}
