// Package main is the entry point for the HAI-Net seed node.
// The single binary runs the whole node: the agent runtime, the guardian,
// local persistence, and the HTTP/WebSocket gateway over a shared event bus.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	// Common packages
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/config"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/db"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/telemetry"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/tracing"

	// Event bus
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events"

	// Agent runtime packages
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/lifecycle"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/parser"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/prompt"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/guardian"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/interaction"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/llm"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/memory"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/orchestrator/cycle"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/peers"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/tools"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/workflow"

	// Gateway
	gatewayhttp "github.com/gaborkukucska/hai-net-seed-sub000/internal/gateway/http"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/gateway/websocket"
)

const appVersion = "0.1.0"

// searchCacheSize bounds the memory_search result cache shared by all agents.
const searchCacheSize = 128

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
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

	log.Info("Starting HAI-Net seed node...", zap.String("version", appVersion))

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Telemetry registers on the default Prometheus registry, served at /metrics
	metrics := telemetry.Default()

	// 5. Initialize event bus (in-memory for a single node, NATS if configured)
	eventBus, busCleanup, err := events.Provide(cfg, metrics, log)
	if err != nil {
		log.Fatal("Failed to initialize event bus", zap.Error(err))
	}
	defer busCleanup()
	if cfg.NATS.URL != "" {
		log.Info("Connected to NATS event bus", zap.String("url", cfg.NATS.URL))
	} else {
		log.Info("Using in-memory event bus")
	}

	// ============================================
	// PERSISTENCE
	// ============================================
	log.Info("Initializing persistence...")

	pool, err := db.Open(cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Database ready", zap.String("driver", cfg.Database.Driver))

	var embedder memory.Embedder
	if cfg.Memory.Backend == "vector" {
		embedder = memory.OpenAICompatEmbedder(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.Memory.EmbeddingModel)
	}
	store, memCleanup, err := memory.Provide(cfg.Memory, pool, embedder, log)
	if err != nil {
		log.Fatal("Failed to initialize memory store", zap.Error(err))
	}
	log.Info("Memory store initialized", zap.String("backend", cfg.Memory.Backend))

	// ============================================
	// GUARDIAN
	// ============================================
	log.Info("Initializing Guardian...")

	policy, err := guardian.LoadPolicy(cfg.Guardian.PolicyPath, log)
	if err != nil {
		log.Fatal("Failed to load guardian policy", zap.Error(err))
	}
	archive, err := guardian.NewArchive(pool, log)
	if err != nil {
		log.Fatal("Failed to initialize violation archive", zap.Error(err))
	}
	guard := guardian.New(cfg.Guardian, policy, eventBus, metrics, archive, log)
	if err := guard.Start(); err != nil {
		log.Fatal("Failed to start guardian monitor", zap.Error(err))
	}
	log.Info("Guardian initialized")

	// ============================================
	// AGENT RUNTIME
	// ============================================
	log.Info("Initializing agent runtime...")

	table, err := prompt.LoadTable(cfg.Prompts.Path, log)
	if err != nil {
		log.Fatal("Failed to load prompt table", zap.Error(err))
	}
	assembler := prompt.NewAssembler(table, cfg.LLM.MaxPromptTokens, log)

	llmClient := llm.NewOpenAI(cfg.LLM, log)
	log.Info("LLM backend configured",
		zap.String("base_url", cfg.LLM.BaseURL),
		zap.String("model", cfg.LLM.Model))

	toolRegistry := tools.NewRegistry(cfg.Runtime.ToolTimeoutDuration(), log)
	interactions := interaction.NewHandler(toolRegistry, metrics, log)
	wf := workflow.NewManager(assembler, eventBus, log)
	cycles := cycle.NewHandler(cfg.Runtime.CycleTimeoutDuration(), wf, interactions, guard, eventBus, metrics, log)

	manager := lifecycle.NewManager(lifecycle.Options{
		Runtime:   cfg.Runtime,
		LLM:       llmClient,
		Assembler: assembler,
		Parser:    parser.New(log),
		Memory:    store,
		Cycles:    cycles,
		Guardian:  guard,
		EventBus:  eventBus,
		Metrics:   metrics,
		Logger:    log,
	})
	wf.BindSpawner(manager)
	cycles.BindSpawner(manager)

	// A minor violation pinned to an agent that has since been removed has
	// no live source left to correct, so the monitor may close it out.
	guard.AddRemediation(func(v guardian.Violation) bool {
		return v.SourceAgent != "" && manager.GetAgent(v.SourceAgent) == nil
	})

	if err := tools.RegisterBuiltins(toolRegistry, tools.BuiltinDeps{
		Directory:       manager,
		Memory:          store,
		SearchCacheSize: searchCacheSize,
	}); err != nil {
		log.Fatal("Failed to register built-in tools", zap.Error(err))
	}
	log.Info("Agent runtime initialized",
		zap.Int("max_agents", cfg.Runtime.MaxAgents),
		zap.Int("tools", len(toolRegistry.List())))

	// ============================================
	// PEERS
	// ============================================
	var peerRegistry *peers.Registry
	if cfg.Peers.Enabled {
		log.Info("Initializing peer registry...")
		peerRegistry = peers.NewRegistry(cfg.Peers.ConstitutionalVersion, eventBus, log)
		if err := peerRegistry.Start(peers.NewStaticProvider(seedPeers(cfg.Peers.Static)...)); err != nil {
			log.Fatal("Failed to start peer registry", zap.Error(err))
		}
		log.Info("Peer registry initialized", zap.Int("static_peers", len(cfg.Peers.Static)))
	} else {
		log.Info("Peer registry disabled")
	}

	// ============================================
	// GATEWAY (HTTP + WebSocket)
	// ============================================
	log.Info("Initializing gateway...")

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	hub := websocket.NewHub(log)
	go hub.Run(ctx)
	bridge := websocket.NewBridge(hub, eventBus, log)
	if err := bridge.Start(); err != nil {
		log.Fatal("Failed to bridge event bus to WebSocket hub", zap.Error(err))
	}
	wsHandler := websocket.NewHandler(hub, log)

	// Chat waits out the full cycle bound plus grace, so a slow turn surfaces
	// as a cycle outcome rather than a gateway timeout.
	chatTimeout := cycles.Timeout() + 5*time.Second
	handlers := gatewayhttp.NewHandlers(appVersion, manager, guard, store, peerRegistry, eventBus, chatTimeout, log)
	server := gatewayhttp.NewServer(cfg.Server, handlers, wsHandler.HandleConnection, log)

	go func() {
		log.Info("Gateway listening", zap.String("addr", server.Addr()))
		if err := server.Start(); err != nil {
			log.Fatal("Failed to start gateway", zap.Error(err))
		}
	}()

	log.Info("API configured",
		zap.String("websocket", "/ws/:client_id"),
		zap.String("health", "/health"),
		zap.String("metrics", "/metrics"))

	// ============================================
	// GRACEFUL SHUTDOWN
	// ============================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down HAI-Net seed node...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Gateway shutdown error", zap.Error(err))
	}
	bridge.Stop()
	if peerRegistry != nil {
		peerRegistry.Stop()
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Error("Agent manager shutdown error", zap.Error(err))
	}
	guard.Stop()
	if err := memCleanup(); err != nil {
		log.Error("Memory store close error", zap.Error(err))
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracing shutdown error", zap.Error(err))
	}

	log.Info("HAI-Net seed node stopped")
}

// seedPeers converts config-declared neighbors into registry peers.
func seedPeers(seeds []config.PeerSeed) []peers.Peer {
	out := make([]peers.Peer, 0, len(seeds))
	for _, seed := range seeds {
		out = append(out, peers.Peer{
			ID:                    seed.ID,
			Address:               seed.Address,
			Port:                  seed.Port,
			Role:                  seed.Role,
			Capabilities:          seed.Capabilities,
			ConstitutionalVersion: seed.ConstitutionalVersion,
		})
	}
	return out
}
