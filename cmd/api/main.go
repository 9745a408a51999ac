package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"bondarchitect/internal/agents"
	"bondarchitect/internal/gateway/config"
	"bondarchitect/internal/gateway/handler"
	"bondarchitect/internal/gateway/middleware"
	"bondarchitect/internal/gateway/server"
	"bondarchitect/internal/gateway/service"
	"bondarchitect/internal/library"
	"bondarchitect/internal/llmclient"
	"bondarchitect/internal/projectstore"
	"bondarchitect/internal/reportstore"
	"bondarchitect/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()

	lib, err := library.Open(cfg.RegistryPath)
	if err != nil {
		log.Fatalf("open model library: %v", err)
	}
	log.Printf("model library loaded: %d entries", len(lib.IDs()))

	store := projectstore.NewFromEnv(filepath.Join(cfg.DataDir, "projects"))
	defer store.Close()

	llm, err := llmclient.NewFromCatalog(ctx, cfg.LLM.Backend, cfg.LLM.Model, cfg.LLM.APIKey)
	if err != nil {
		log.Fatalf("init llm client: %v", err)
	}
	defer llm.Close()
	llm = llmclient.Chain(llm,
		llmclient.Timeout(cfg.LLM.CallTimeout),
		llmclient.Retry(2, 2*time.Second),
	)
	log.Printf("llm backend: %s", llm.Name())

	deps := agents.Deps{LLM: llm, Library: lib}
	machine, err := workflow.New(workflow.Config{
		AnalystRetryBudget:   cfg.Workflow.AnalystRetryBudget,
		AutoChainComposer:    cfg.Workflow.AutoChainComposer,
		AutoChainAnalystLoop: cfg.Workflow.AutoChainAnalystLoop,
	},
		agents.NewPlanner(deps),
		agents.NewPhysicist(deps),
		agents.NewComposer(deps),
		agents.NewCurator(deps),
		agents.NewAnalyst(deps),
	)
	if err != nil {
		log.Fatalf("build workflow: %v", err)
	}

	var archive *reportstore.Store
	if cfg.Archive.Enabled {
		archive, err = reportstore.New(reportstore.Config{
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			log.Printf("report archive disabled: %v", err)
			archive = nil
		}
	}

	svc := service.New(store, machine, lib, archive)

	mux := http.NewServeMux()
	handler.New(svc).Register(mux)
	srv := server.New(cfg.Port, middleware.CORS(mux))

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s (env=%s)", cfg.Port, cfg.Env)
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server: %v", err)
		}
	case sig := <-sigCh:
		log.Printf("received %s, shutting down", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}
