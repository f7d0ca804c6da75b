package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/iarabot/iara/pkg/agent"
	"github.com/iarabot/iara/pkg/channels"
	"github.com/iarabot/iara/pkg/config"
	"github.com/iarabot/iara/pkg/logger"
	"github.com/iarabot/iara/pkg/providers"
	"github.com/iarabot/iara/pkg/session"
	"github.com/iarabot/iara/pkg/store"
	"github.com/iarabot/iara/pkg/usage"
)

var version = "dev"

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("iara", version)
		return
	}

	// Local .env is a convenience for development; absence is normal.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if cfg.Logging.Debug {
		logger.SetLevel(logger.DEBUG)
	}
	if cfg.Logging.FileEnabled {
		if err := logger.EnableFileLogging(cfg.Logging.FilePath); err != nil {
			logger.WarnCF("main", "File logging disabled", map[string]interface{}{"error": err.Error()})
		}
	}

	logger.InfoCF("main", "Starting iara", map[string]interface{}{
		"version": version,
		"config":  *configPath,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The datastore is optional at runtime: without it the assistant still
	// chats, it just cannot remember or execute actions.
	var db *store.Store
	if path := cfg.DatabasePath(); path != "" {
		db, err = store.Open(path)
		if err != nil {
			logger.WarnCF("main", "Datastore unavailable, continuing without memory", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			db = nil
		} else {
			defer db.Close()
		}
	}

	var provider providers.LLMProvider
	if cfg.Gemini.APIKey != "" {
		p, err := providers.NewGeminiProvider(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			logger.ErrorCF("main", "Model backend init failed", map[string]interface{}{"error": err.Error()})
		} else {
			provider = p
		}
	} else {
		logger.WarnC("main", "No Gemini API key configured; inbound messages will be dropped")
	}

	sessions := session.NewManager(cfg.Assistant.HistoryLimit)
	usageStore := usage.NewStore(stateDir())

	var contextBuilder *agent.ContextBuilder
	var interpreter *agent.Interpreter
	if db != nil {
		contextBuilder = agent.NewContextBuilder(db)
		interpreter = agent.NewInterpreter(db)
	}

	pipeline := agent.NewPipeline(provider, sessions, contextBuilder, interpreter, usageStore, cfg.Assistant.Name, cfg.Gemini.Model)

	manager := channels.NewManager()
	manager.Register(channels.NewWhatsAppChannel(cfg.WhatsApp, cfg.Gateway, pipeline))

	if cfg.Telegram.Enabled && cfg.Telegram.Token != "" {
		tg, err := channels.NewTelegramChannel(cfg.Telegram, pipeline)
		if err != nil {
			logger.ErrorCF("main", "Telegram channel init failed", map[string]interface{}{"error": err.Error()})
		} else {
			manager.Register(tg)
		}
	}

	if err := manager.StartAll(ctx); err != nil {
		logger.ErrorCF("main", "Startup failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.InfoCF("main", "Shutting down", map[string]interface{}{"signal": sig.String()})

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	manager.StopAll(shutdownCtx)
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".iara", "config.json")
}

// stateDir is where runtime state that is not the datastore lives (usage
// records). Empty when the home directory cannot be resolved, which keeps
// the usage store memory-only.
func stateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".iara")
}
