// Package main is the entry point for a standalone worker bridge. It connects
// to the orchestrator socket, registers its agents, and serves tasks until
// interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/cartrita/mcp/internal/bridge"
	"github.com/cartrita/mcp/internal/common/config"
	"github.com/cartrita/mcp/internal/common/logger"
	v1 "github.com/cartrita/mcp/pkg/mcp/v1"
)

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

	log.Info("Starting worker bridge...", zap.String("service", cfg.Bridge.ServiceName))

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Connect the bridge to the orchestrator socket
	b := bridge.New(bridge.Config{
		SocketPath:         cfg.Transport.SocketPath,
		MaxFrameSize:       cfg.Transport.MaxFrameSize,
		ConnectTimeout:     cfg.Transport.ConnectTimeoutDuration(),
		ServiceName:        cfg.Bridge.ServiceName,
		ServicePort:        cfg.Bridge.ServicePort,
		HeartbeatInterval:  cfg.Bridge.HeartbeatIntervalDuration(),
		HeartbeatRetryWait: cfg.Bridge.HeartbeatRetryWaitDuration(),
		MaxConcurrentTasks: cfg.Bridge.MaxConcurrentTasks,
	}, log)

	if err := b.Initialize(ctx); err != nil {
		log.Fatal("Failed to initialize bridge", zap.Error(err))
	}

	// 5. Register the built-in agents
	for _, agent := range builtinAgents() {
		if err := b.RegisterAgent(agent); err != nil {
			log.Fatal("Failed to register agent", zap.String("agent", agent.Name()), zap.Error(err))
		}
	}

	log.Info("Worker bridge ready", zap.String("socket", cfg.Transport.SocketPath))

	// 6. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down worker bridge...")

	// 7. Graceful shutdown
	cancel()
	b.Shutdown()

	log.Info("Worker bridge stopped")
}

// builtinAgents returns the agents this bridge ships with: an echo agent for
// connectivity checks and a text-transform agent for simple string work.
func builtinAgents() []bridge.Agent {
	return []bridge.Agent{
		&bridge.AgentFunc{
			AgentName: "echo",
			Caps: []bridge.Capability{
				{Name: "echo", Category: "diagnostics", Priority: 1},
				{Name: "ping", Category: "diagnostics", Priority: 1},
			},
			Fn: func(_ context.Context, req *v1.TaskRequest) (*v1.TaskResponse, error) {
				return &v1.TaskResponse{
					TaskID: req.TaskID,
					Status: v1.TaskStatusCompleted,
					Result: map[string]interface{}{
						"echo":       req.Parameters,
						"go_runtime": runtime.Version(),
					},
				}, nil
			},
		},
		&bridge.AgentFunc{
			AgentName: "text-transform",
			Caps: []bridge.Capability{
				{Name: "uppercase", Category: "text", Priority: 5},
				{Name: "lowercase", Category: "text", Priority: 5},
			},
			Fn: func(_ context.Context, req *v1.TaskRequest) (*v1.TaskResponse, error) {
				text, _ := req.Parameters["text"].(string)
				var out string
				switch req.TaskType {
				case "lowercase":
					out = strings.ToLower(text)
				default:
					out = strings.ToUpper(text)
				}
				return &v1.TaskResponse{
					TaskID: req.TaskID,
					Status: v1.TaskStatusCompleted,
					Result: map[string]interface{}{"text": out},
				}, nil
			},
		},
	}
}
