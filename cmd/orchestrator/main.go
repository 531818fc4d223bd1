// Package main is the entry point for the Cartrita orchestrator service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cartrita/mcp/internal/agent"
	"github.com/cartrita/mcp/internal/common/config"
	"github.com/cartrita/mcp/internal/common/logger"
	"github.com/cartrita/mcp/internal/conversation"
	"github.com/cartrita/mcp/internal/events/bus"
	"github.com/cartrita/mcp/internal/gateway"
	"github.com/cartrita/mcp/internal/memory"
	"github.com/cartrita/mcp/internal/orchestrator"
	"github.com/cartrita/mcp/internal/provider/automation"
	"github.com/cartrita/mcp/internal/provider/llm"
	"github.com/cartrita/mcp/internal/provider/search"
	"github.com/cartrita/mcp/internal/provider/vector"
	"github.com/cartrita/mcp/internal/store"
	"github.com/cartrita/mcp/internal/tool"
	"github.com/cartrita/mcp/internal/transport"
)

// pruneInterval is how often stale bridges are swept; a bridge missing three
// heartbeat intervals is considered gone.
const pruneInterval = 30 * time.Second

// embeddingModel backs the episodic task memory.
const embeddingModel = "text-embedding-3-small"

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting Cartrita orchestrator...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Connect the event bus. An empty NATS URL selects the in-memory bus.
	var events bus.EventBus
	if cfg.NATS.URL == "" {
		events = bus.NewMemoryEventBus(log)
		log.Info("Using in-memory event bus")
	} else {
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		events = natsBus
		log.Info("Connected to NATS event bus", zap.String("url", cfg.NATS.URL))
	}
	defer events.Close()

	// 5. Open the persistence backend
	persisted, err := openStore(cfg.Store)
	if err != nil {
		log.Fatal("Failed to open store", zap.Error(err))
	}
	defer persisted.Close()
	log.Info("Store ready", zap.String("backend", cfg.Store.Backend))

	// 6. Build the tool registry with the core tool set
	tools := tool.NewRegistry(log)
	tool.RegisterBuiltins(tools, tool.BuiltinDeps{
		Search:      search.NewDuckDuckGo(""),
		Automation:  automation.NewStub(cfg.Tools.DisplayWidth, cfg.Tools.DisplayHeight),
		CodeTimeout: cfg.Tools.CodeExecTimeoutDuration(),
	})

	// 7. Build the LLM client and episodic task memory when a key is set
	var client llm.Client
	var taskMemory *memory.TaskMemory
	if cfg.LLM.APIKey != "" {
		oa := llm.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.BaseURL)
		client = oa
		log.Info("LLM client configured", zap.String("model", cfg.LLM.Model))

		index, err := vector.NewChromemIndex("", "task-memory")
		if err != nil {
			log.Fatal("Failed to open vector index", zap.Error(err))
		}
		taskMemory = memory.New(index, func(ctx context.Context, input []string) ([][]float32, error) {
			return oa.CreateEmbeddings(ctx, embeddingModel, input)
		}, log)
	}

	// 8. Create the agent manager and seed the default worker pool
	manager := agent.NewManager(agent.ManagerConfig{
		MaxConcurrentTasks: cfg.Manager.MaxConcurrentTasks,
		DefaultModel:       cfg.LLM.Model,
	}, client, tools, events, log)

	if client != nil {
		if err := manager.RegisterDefaults(); err != nil {
			log.Fatal("Failed to register default workers", zap.Error(err))
		}
	} else {
		log.Warn("No LLM API key configured; local worker pool disabled, remote agents only")
	}

	// 9. Start the unix-socket transport with the bridge registry as handler
	registry := orchestrator.NewRegistry(orchestrator.RegistryConfig{}, nil, events, log)
	socket := transport.NewServer(transport.ServerConfig{
		SocketPath:   cfg.Transport.SocketPath,
		MaxFrameSize: cfg.Transport.MaxFrameSize,
	}, registry.HandleMessage, log)
	registry.SetSender(socket)

	if err := socket.Start(ctx); err != nil {
		log.Fatal("Failed to start transport", zap.Error(err))
	}
	log.Info("Transport listening", zap.String("socket", cfg.Transport.SocketPath))

	maxIdle := 3 * cfg.Bridge.HeartbeatIntervalDuration()
	go func() {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := registry.PruneStale(ctx, maxIdle); n > 0 {
					log.Warn("Pruned stale bridges", zap.Int("count", n))
				}
			}
		}
	}()

	// 10. Create the WebSocket hub and mirror bus events onto it
	hub := gateway.NewHub(log)
	go hub.Run(ctx)
	if _, err := hub.BindBus(events); err != nil {
		log.Fatal("Failed to bind hub to event bus", zap.Error(err))
	}

	// 11. Create the HTTP gateway
	gw := gateway.NewServer(
		manager,
		conversation.NewStore(cfg.Conversation.MaxConversations),
		hub,
		gateway.ServerOptions{
			Persisted: persisted,
			Remote:    registry,
			Cache:     conversation.NewResponseCache(cfg.Conversation.ResponseTTLDuration()),
			Memory:    taskMemory,
		},
		log,
	)

	// 12. Setup HTTP server with Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gateway.RequestLogger(log))
	engine.Use(gateway.Recovery(log))
	engine.Use(gateway.CORS())
	gw.SetupRoutes(engine)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// 13. Start server in goroutine
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 14. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down orchestrator...")

	// 15. Graceful shutdown
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	socket.Stop()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Error("Manager shutdown error", zap.Error(err))
	}

	log.Info("Orchestrator stopped")
}

// openStore selects the persistence backend from configuration.
func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return store.NewSQLite(cfg.SQLitePath)
	case "postgres":
		return store.NewPostgres(cfg.PostgresDSN, 0)
	default:
		return store.NewMemoryStore(), nil
	}
}
