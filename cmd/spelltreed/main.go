package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/arcanist/spelltree/internal/llm"
	"github.com/arcanist/spelltree/internal/server"
	"github.com/arcanist/spelltree/pkg/spelltree"
	"github.com/arcanist/spelltree/pkg/spelltree/config"
	"github.com/arcanist/spelltree/pkg/spelltree/store"
	"github.com/arcanist/spelltree/pkg/spelltree/store/sqlite"
	"github.com/arcanist/spelltree/pkg/spelltree/tree"
)

// env holds settings read from the environment; flags override them.
type env struct {
	Addr       string `envconfig:"SPELLTREE_ADDR" default:":8080"`
	DBPath     string `envconfig:"SPELLTREE_DB"`
	LLMBaseURL string `envconfig:"SPELLTREE_LLM_URL"`
	LLMAPIKey  string `envconfig:"SPELLTREE_LLM_KEY"`
	LLMModel   string `envconfig:"SPELLTREE_LLM_MODEL"`
}

func main() {
	var cfg env
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal("Failed to read environment:", err)
	}

	var (
		addr         = flag.String("addr", cfg.Addr, "Listen address")
		dbPath       = flag.String("db", cfg.DBPath, "Build archive database path (optional)")
		stoplistPath = flag.String("stoplist", "", "Stopword YAML file (optional)")
		hintsPath    = flag.String("hints", "", "Theme hints YAML file (optional)")
		tiersPath    = flag.String("lock-tiers", "", "Lock tier table YAML file (optional)")
		llmURL       = flag.String("llm-url", cfg.LLMBaseURL, "OpenAI-compatible endpoint for the oracle strategy (optional)")
		llmModel     = flag.String("llm-model", cfg.LLMModel, "Model name for the oracle strategy")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	loader := config.Loader{
		StoplistPath:   *stoplistPath,
		ThemeHintsPath: *hintsPath,
		LockTiersPath:  *tiersPath,
	}
	components, err := loader.Load()
	if err != nil {
		logger.Fatal("load configuration", zap.Error(err))
	}

	var st store.Store
	if *dbPath != "" {
		st, err = sqlite.OpenSQLite(ctx, *dbPath)
		if err != nil {
			logger.Fatal("open store", zap.Error(err))
		}
	}

	var oracle tree.ChainOracle
	if *llmURL != "" && *llmModel != "" {
		oracle = &llm.Client{BaseURL: *llmURL, APIKey: cfg.LLMAPIKey, Model: *llmModel}
	}

	engine := spelltree.New(spelltree.Options{
		Tokenizer:    components.Tokenizer,
		Discoverer:   components.Discoverer,
		Oracle:       oracle,
		Store:        st,
		TierPercents: components.TierPercents,
	})
	defer engine.Close()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           server.New(engine, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", *addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}
