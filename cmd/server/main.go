package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/leadflow/internal/api"
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
	suppressionRepo := postgres.NewSuppressionRepo(db)
	registry := suppression.NewService(suppressionRepo)

	artifacts, err := storage.New(context.Background(), cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to init artifact storage: %v", err)
	}

	var provider delivery.Provider
	var applier api.EventApplier
	if cfg.Provider.APIKey != "" {
		provider, err = delivery.New(cfg.Provider)
		if err != nil {
			log.Fatalf("Failed to init delivery provider: %v", err)
		}
		log.Printf("Delivery provider: %s", provider.Name())
	} else {
		log.Println("No provider API key; webhook and send endpoints disabled")
	}

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
			WorkerID:          hostWorkerID(),
		},
	)

	if provider != nil {
		applier = worker.NewApplier(db, svc, registry)
	}

	handlers := api.NewHandlers(svc, registry, provider, applier, db, cfg.Provider.WebhookSecret)
	server := api.NewServer(cfg.Server, handlers)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

func hostWorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		return "server"
	}
	return "server-" + host
}
