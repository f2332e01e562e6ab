package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/hupe1980/agentruntime"
	"github.com/hupe1980/agentruntime/agent"
	"github.com/hupe1980/agentruntime/artifact"
	artifactsqlite "github.com/hupe1980/agentruntime/artifact/sqlite"
	"github.com/hupe1980/agentruntime/core"
	"github.com/hupe1980/agentruntime/logging"
	"github.com/hupe1980/agentruntime/memory"
	memoryopenai "github.com/hupe1980/agentruntime/memory/openai"
	"github.com/hupe1980/agentruntime/model"
	modelanthropic "github.com/hupe1980/agentruntime/model/anthropic"
	modelopenai "github.com/hupe1980/agentruntime/model/openai"
	"github.com/hupe1980/agentruntime/server"
	"github.com/hupe1980/agentruntime/session"
	sessionsqlite "github.com/hupe1980/agentruntime/session/sqlite"
)

var (
	serveAddr     string
	serveAppName  string
	serveLogLevel string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: "Serve starts the agent runtime HTTP server. Configuration is read from\n" +
		"the file given with --config, with flags overriding file values and\n" +
		"built-in defaults filling the rest.",
	RunE: func(cmd *cobra.Command, args []string) error {
		config := DefaultConfig()

		if configPath != "" {
			loaded, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			config = loaded
		}

		// Flags override file values only when set explicitly.
		if cmd.Flags().Changed("addr") {
			config.Addr = serveAddr
		}
		if cmd.Flags().Changed("app-name") {
			config.AppName = serveAppName
		}
		if cmd.Flags().Changed("log-level") {
			config.Log.Level = serveLogLevel
		}

		if err := config.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		return serve(cmd.Context(), config)
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveAppName, "app-name", "agentruntime", "Application name scoping sessions and memory")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "Log level: debug, info, warn or error")
}

func serve(ctx context.Context, config Config) error {
	logger := newLogger(config.Log)

	sessionStore, artifactStore, err := newStores(config.Store)
	if err != nil {
		return err
	}

	if closer, ok := sessionStore.(io.Closer); ok {
		defer closer.Close()
	}
	if closer, ok := artifactStore.(io.Closer); ok {
		defer closer.Close()
	}

	assistant := agent.NewModelAgent(config.Agent.Name, newModel(config.Model), func(o *agent.ModelAgentOptions) {
		if config.Agent.Instruction != "" {
			o.Instruction = agent.NewInstructionFromText(config.Agent.Instruction)
		}
	})

	runtime := agentruntime.New(assistant, func(o *agentruntime.Options) {
		o.AppName = config.AppName
		o.SessionStore = sessionStore
		o.ArtifactStore = artifactStore
		o.MemoryStore = newMemoryService(config.Memory)
		o.Logger = logger.WithComponent("runtime")
	})

	srv := server.New(runtime, func(o *server.Options) {
		o.Addr = config.Addr
		o.Logger = logger.WithComponent("server")
	})

	logger.Info("cli.serve.config",
		"app", config.AppName,
		"addr", config.Addr,
		"store", config.Store.Driver,
		"memory", config.Memory.Index,
		"model", config.Model.Provider,
		"agent", config.Agent.Name,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("cli.serve.shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	return <-serveErr
}

func newLogger(config LogConfig) *logging.RuntimeLogger {
	level := logging.LogLevelInfo
	switch config.Level {
	case "debug":
		level = logging.LogLevelDebug
	case "warn":
		level = logging.LogLevelWarn
	case "error":
		level = logging.LogLevelError
	}

	return logging.NewSlogLogger(level, config.Format, false)
}

func newStores(config StoreConfig) (core.SessionStore, core.ArtifactStore, error) {
	if config.Driver != "sqlite" {
		return session.NewInMemoryStore(), artifact.NewInMemoryStore(), nil
	}

	sessions, err := sessionsqlite.Open(config.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session store: %w", err)
	}

	artifacts, err := artifactsqlite.Open(config.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open artifact store: %w", err)
	}

	return sessions, artifacts, nil
}

func newMemoryService(config MemoryConfig) core.MemoryStore {
	if config.Index == "semantic" {
		return memory.New(memoryopenai.NewVectorStore(memoryopenai.NewEmbedder(), func(o *memoryopenai.VectorStoreOptions) {
			if config.TopK > 0 {
				o.TopK = config.TopK
			}
			o.MinScore = config.MinScore
		}))
	}

	return memory.New(memory.NewKeywordStore(func(o *memory.KeywordOptions) {
		if config.TopK > 0 {
			o.TopK = config.TopK
		}
		o.MinScore = config.MinScore
	}))
}

func newModel(config ModelConfig) model.Model {
	switch config.Provider {
	case "anthropic":
		return modelanthropic.NewModel(func(o *modelanthropic.Options) {
			if config.Name != "" {
				o.Model = anthropicsdk.Model(config.Name)
			}
		})
	case "openai":
		return modelopenai.NewModel(func(o *modelopenai.Options) {
			if config.Name != "" {
				o.Model = config.Name
			}
		})
	default:
		name := config.Name
		if name == "" {
			name = "mock-model"
		}
		return model.NewMockModel(name, "mock")
	}
}
