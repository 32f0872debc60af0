// Package gateway wires the execution substrate together and serves the
// HTTP/WS surface.
//
// server.go constructs the server: auth, stores, providers, tools,
// orchestrator, dispatcher, scheduler, channels, and the HTTP mux.
package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cratos-run/cratos/internal/agent"
	"github.com/cratos-run/cratos/internal/agent/providers"
	"github.com/cratos-run/cratos/internal/auth"
	"github.com/cratos-run/cratos/internal/channels"
	"github.com/cratos-run/cratos/internal/config"
	"github.com/cratos-run/cratos/internal/memory"
	"github.com/cratos-run/cratos/internal/multiagent"
	"github.com/cratos-run/cratos/internal/observability"
	"github.com/cratos-run/cratos/internal/sessions"
	"github.com/cratos-run/cratos/internal/tasks"
	"github.com/cratos-run/cratos/internal/tools"
	"github.com/cratos-run/cratos/internal/tools/policy"
	"github.com/cratos-run/cratos/pkg/models"
)

// Version is stamped by the build; the health endpoint reports it.
var Version = "dev"

// Server owns the wired execution substrate and its HTTP/WS surface.
type Server struct {
	config     *config.Config
	configPath string
	logger     *slog.Logger

	authService  *auth.Service
	store        sessions.Store
	orchestrator *agent.Orchestrator
	dispatcher   *multiagent.Dispatcher
	approvals    *agent.ApprovalManager
	runner       *tools.Runner
	bus          *EventBus
	channels     *channels.Registry
	taskStore    tasks.Store
	taskScheduler *tasks.Scheduler
	memoryIndex  *memory.Indexer
	metrics      *observability.Metrics

	laneMu sync.Mutex
	lanes  *sessions.LaneManager

	httpServer    *http.Server
	traceShutdown func(context.Context) error

	configMu  sync.Mutex
	configRaw []byte

	startTime time.Time
	cancelRun context.CancelFunc
}

// NewServer wires every component from cfg.
func NewServer(cfg *config.Config, configPath string, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("gateway: config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:     cfg,
		configPath: configPath,
		logger:     logger,
		channels:   channels.NewRegistry(),
		bus:        NewEventBus(),
		metrics:    observability.NewMetrics(nil),
	}
	if configPath != "" {
		if raw, err := os.ReadFile(configPath); err == nil {
			s.configRaw = raw
		}
	}

	// Auth.
	apiKeys := make([]auth.APIKeyConfig, 0, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		apiKeys = append(apiKeys, auth.APIKeyConfig{Key: k.Key, UserID: k.UserID, Name: k.Name, Scopes: k.Scopes})
	}
	s.authService = auth.NewService(auth.Config{
		JWTSecret:   cfg.Auth.JWTSecret,
		TokenExpiry: cfg.Auth.TokenExpiry,
		APIKeys:     apiKeys,
	})

	// Session store: relational when a database is configured,
	// in-memory otherwise (config.Validate gates production).
	if cfg.Database.URL != "" {
		store, err := sessions.OpenSQLStore(cfg.Database.URL, cfg.Database.MaxConnections, cfg.Database.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("gateway: session store: %w", err)
		}
		s.store = store
	} else {
		logger.Warn("using in-memory session store; sessions will not survive restarts")
		s.store = sessions.NewMemoryStore()
	}

	// Approvals, published on the event bus.
	s.approvals = agent.NewApprovalManager(cfg.Approval.Timeout, &busApprovalNotifier{bus: s.bus, metrics: s.metrics})

	// Tool registry + runner under the six-level policy table.
	rules, err := policyRulesFromConfig(cfg.Policy.Rules)
	if err != nil {
		return nil, err
	}
	var registered []tools.Tool
	if cfg.Tools.Exec.Enabled {
		registered = append(registered, tools.NewExecTool(tools.ExecConfig{
			Workspace:      cfg.Tools.Exec.Workspace,
			MaxTimeout:     time.Duration(cfg.Tools.Exec.MaxTimeoutSecs) * time.Second,
			SandboxBackend: cfg.Tools.Exec.Sandbox.Backend,
			SandboxImage:   cfg.Tools.Exec.Sandbox.Image,
		}))
	}
	registry, err := tools.NewRegistry(registered...)
	if err != nil {
		return nil, err
	}
	s.runner = tools.NewRunner(tools.RunnerConfig{
		Registry:  registry,
		Rules:     rules,
		Approvals: s.approvals,
	})

	// LLM providers: primary plus optional single-shot fallback.
	primary, err := buildProvider(cfg, cfg.LLM.DefaultProvider)
	if err != nil {
		return nil, err
	}
	var fallback agent.LLMProvider
	if cfg.LLM.FallbackProvider != "" {
		fallback, err = buildProvider(cfg, cfg.LLM.FallbackProvider)
		if err != nil {
			logger.Warn("fallback provider unavailable", "error", err)
			fallback = nil
		}
	}

	// Graph-RAG memory: entity graph always; vectors when configured.
	var memoryBridge agent.MemoryBridge
	if cfg.Memory.Enabled {
		var vectors *memory.Manager
		if provider := buildEmbeddings(cfg.Memory.Embeddings, logger); provider != nil {
			vectors, err = memory.NewManager(provider, cfg.Memory.IndexPath)
			if err != nil {
				return nil, fmt.Errorf("gateway: vector index: %w", err)
			}
		}
		s.memoryIndex = memory.NewIndexer(vectors, memory.NewInMemoryGraphStore())
		memoryBridge = &indexerBridge{indexer: s.memoryIndex}
	}

	// Personas from config.
	personas := agent.NewPersonaRegistry("cratos")
	for _, p := range cfg.Personas {
		personas.Register(agent.Persona{Name: p.Name, SystemPrompt: p.SystemPrompt, Model: p.Model})
	}
	if len(cfg.Personas) == 0 {
		personas = nil
	}

	s.orchestrator = agent.NewOrchestrator(agent.OrchestratorConfig{
		Provider:       primary,
		Fallback:       fallback,
		Runner:         s.runner,
		History:        s.store,
		Memory:         memoryBridge,
		Events:         &busEventSink{bus: s.bus, metrics: s.metrics},
		Personas:       personas,
		HistoryLimit:   cfg.Session.HistoryLimit,
		MemoryTopK:     cfg.Memory.TopK,
		SandboxBackend: cfg.Tools.Exec.Sandbox.Backend,
	})

	// Dispatcher: every configured persona routes to the orchestrator.
	agents := multiagent.NewOrchestrator()
	for _, p := range cfg.Personas {
		agents.Register(multiagent.Agent{ID: p.Name, SystemPrompt: p.SystemPrompt}, &personaRuntime{server: s, systemPrompt: p.SystemPrompt})
	}
	s.dispatcher = multiagent.NewDispatcher(agents,
		multiagent.WithMaxParallel(cfg.Dispatch.MaxParallel),
		multiagent.WithMaxDepth(cfg.Dispatch.MaxDepth),
		multiagent.WithTokenBudget(cfg.Dispatch.TokenBudget),
	)

	// Scheduler: durable store sharing the session database.
	if cfg.Scheduler.Enabled {
		if sqlStore, ok := s.store.(*sessions.SQLStore); ok {
			taskStore, err := tasks.NewSQLStore(sqlStore.DB(), isPostgres(cfg.Database.URL))
			if err != nil {
				return nil, fmt.Errorf("gateway: task store: %w", err)
			}
			s.taskStore = taskStore
		} else {
			s.taskStore = tasks.NewMemoryStore()
		}
		executor := &tasks.ActionExecutor{
			Prompts: &schedulerPromptRunner{server: s},
			Tools:   &schedulerToolInvoker{server: s},
			Notify:  &schedulerNotifier{server: s},
		}
		s.taskScheduler = tasks.NewScheduler(s.taskStore, executor, tasks.SchedulerConfig{
			CheckInterval: cfg.Scheduler.CheckInterval,
			MaxConcurrent: cfg.Scheduler.MaxConcurrent,
			RetryDelay:    cfg.Scheduler.RetryDelay,
			DrainTimeout:  cfg.Scheduler.DrainTimeout,
			OneShotGrace:  cfg.Scheduler.OneShotGraceSkew,
		}, logger)
	}

	registerChannels(s.channels, cfg, logger)
	return s, nil
}

// Start brings the server up and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.startTime = time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel

	if _, shutdown, err := observability.SetupTracing(runCtx, serviceName(s.config), s.config.Tracing.Endpoint, s.config.Tracing.Insecure); err != nil {
		s.logger.Warn("tracing disabled", "error", err)
	} else {
		s.traceShutdown = shutdown
	}

	if err := s.channels.StartAll(runCtx); err != nil {
		return fmt.Errorf("gateway: start channels: %w", err)
	}
	if s.taskScheduler != nil {
		go s.taskScheduler.Run(runCtx)
	}
	if s.configPath != "" {
		if err := config.Watch(runCtx, s.configPath, s.logger, s.applyReloadedConfig); err != nil {
			s.logger.Warn("config watch unavailable", "error", err)
		}
	}
	if err := s.startHTTP(); err != nil {
		return err
	}

	s.logger.Info("gateway started",
		"http_addr", fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.HTTPPort))
	<-runCtx.Done()
	return nil
}

// Stop shuts the server down, draining what it can inside ctx.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancelRun != nil {
		s.cancelRun()
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("http shutdown", "error", err)
		}
	}
	if err := s.channels.StopAll(ctx); err != nil {
		s.logger.Warn("channel shutdown", "error", err)
	}
	if s.traceShutdown != nil {
		if err := s.traceShutdown(ctx); err != nil {
			s.logger.Warn("trace flush", "error", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("store close", "error", err)
		}
	}
	s.logger.Info("gateway stopped")
	return nil
}

func (s *Server) startHTTP() error {
	mux := http.NewServeMux()
	wrap := httpAuthMiddleware(s.authService, s.logger)

	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.Handle("/api/v1/health/detailed", wrap(http.HandlerFunc(s.handleHealthDetailed)))
	mux.Handle("/metrics", wrap(promhttp.Handler()))
	mux.Handle("/ws", s.newWSHandler())

	s.mountSessionsAPI(mux)
	s.mountSchedulerAPI(mux)
	s.mountConfigAPI(mux)

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.HTTPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway: listen %s: %w", addr, err)
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	return nil
}

// ConfigSnapshot returns the raw config plus a content hash, used by
// PUT /api/v1/config for optimistic concurrency.
func (s *Server) ConfigSnapshot(ctx context.Context) (map[string]any, error) {
	s.configMu.Lock()
	defer s.configMu.Unlock()
	sum := sha256.Sum256(s.configRaw)
	return map[string]any{
		"raw":  string(s.configRaw),
		"hash": hex.EncodeToString(sum[:]),
	}, nil
}

// ApplyConfig validates and writes an edited config. The running
// process picks reloadable settings up through the file watcher; the
// rest apply on restart.
func (s *Server) ApplyConfig(ctx context.Context, raw, baseHash string) (map[string]any, error) {
	s.configMu.Lock()
	defer s.configMu.Unlock()

	if baseHash != "" {
		sum := sha256.Sum256(s.configRaw)
		if hex.EncodeToString(sum[:]) != baseHash {
			return nil, fmt.Errorf("gateway: config changed since base_hash was read")
		}
	}
	if _, err := config.Parse([]byte(raw)); err != nil {
		return nil, err
	}
	if s.configPath != "" {
		if err := os.WriteFile(s.configPath, []byte(raw), 0o644); err != nil {
			return nil, err
		}
	}
	s.configRaw = []byte(raw)
	sum := sha256.Sum256(s.configRaw)
	return map[string]any{
		"applied":          true,
		"hash":             hex.EncodeToString(sum[:]),
		"restart_required": true,
	}, nil
}

// applyReloadedConfig handles file-watcher reloads. Only policy rules
// swap live; structural changes (providers, stores, channels) require a
// restart and are logged as such.
func (s *Server) applyReloadedConfig(cfg *config.Config) {
	rules, err := policyRulesFromConfig(cfg.Policy.Rules)
	if err != nil {
		s.logger.Warn("reloaded policy rules rejected", "error", err)
		return
	}
	s.runner.ReplaceRules(rules)
	s.logger.Info("policy rules reloaded", "rules", len(rules))
}

func serviceName(cfg *config.Config) string {
	if cfg.Tracing.ServiceName != "" {
		return cfg.Tracing.ServiceName
	}
	return "cratos"
}

func isPostgres(url string) bool {
	return len(url) > 11 && (url[:11] == "postgres://" || (len(url) > 13 && url[:13] == "postgresql://"))
}

func policyRulesFromConfig(rules []config.PolicyRuleConfig) ([]policy.Rule, error) {
	out := make([]policy.Rule, 0, len(rules))
	for i, r := range rules {
		level := policy.Level(r.Level)
		switch level {
		case policy.LevelSandbox, policy.LevelAgent, policy.LevelGlobal, policy.LevelProvider, policy.LevelGroup, policy.LevelUser:
		default:
			return nil, fmt.Errorf("gateway: policy.rules[%d]: unknown level %q", i, r.Level)
		}
		out = append(out, policy.Rule{
			Level:       level,
			Scope:       r.Scope,
			ToolPattern: r.ToolPattern,
			Action:      policy.Action(r.Action),
		})
	}
	return out, nil
}

func buildProvider(cfg *config.Config, name string) (agent.LLMProvider, error) {
	pc := cfg.LLM.Providers[name]
	switch name {
	case "anthropic":
		return providers.NewAnthropic(providers.AnthropicConfig{APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: pc.Model})
	case "openai":
		return providers.NewOpenAI(providers.OpenAIConfig{APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: pc.Model})
	default:
		return nil, fmt.Errorf("gateway: unknown llm provider %q", name)
	}
}

func buildEmbeddings(cfg config.EmbeddingsConfig, logger *slog.Logger) memory.EmbeddingProvider {
	switch cfg.Provider {
	case "openai":
		provider, err := memory.NewOpenAIEmbeddings(cfg.APIKey, cfg.BaseURL, cfg.Model)
		if err != nil {
			logger.Warn("embeddings disabled", "error", err)
			return nil
		}
		return provider
	case "ollama":
		return memory.NewOllamaEmbeddings(cfg.BaseURL, cfg.Model)
	case "":
		return nil
	default:
		logger.Warn("unknown embeddings provider", "provider", cfg.Provider)
		return nil
	}
}

func registerChannels(registry *channels.Registry, cfg *config.Config, logger *slog.Logger) {
	register := func(name string, build func() (channels.Adapter, error)) {
		adapter, err := build()
		if err != nil {
			logger.Warn("channel adapter unavailable", "channel", name, "error", err)
			return
		}
		registry.Register(adapter)
	}
	if cfg.Channels.Telegram.Enabled {
		register("telegram", func() (channels.Adapter, error) {
			return channels.NewTelegramAdapter(channels.TelegramConfig{Token: cfg.Channels.Telegram.BotToken, Logger: logger})
		})
	}
	if cfg.Channels.Discord.Enabled {
		register("discord", func() (channels.Adapter, error) {
			return channels.NewDiscordAdapter(channels.DiscordConfig{Token: cfg.Channels.Discord.BotToken, Logger: logger})
		})
	}
	if cfg.Channels.Slack.Enabled {
		register("slack", func() (channels.Adapter, error) {
			return channels.NewSlackAdapter(channels.SlackConfig{
				BotToken: cfg.Channels.Slack.BotToken,
				AppToken: cfg.Channels.Slack.AppToken,
				Logger:   logger,
			})
		})
	}
	if cfg.Channels.WhatsApp.Enabled {
		register("whatsapp", func() (channels.Adapter, error) {
			return channels.NewWhatsAppAdapter(channels.WhatsAppConfig{SessionPath: cfg.Channels.WhatsApp.SessionPath, Logger: logger})
		})
	}
	if cfg.Channels.Matrix.Enabled {
		register("matrix", func() (channels.Adapter, error) {
			return channels.NewMatrixAdapter(channels.MatrixConfig{
				Homeserver:  cfg.Channels.Matrix.Homeserver,
				UserID:      cfg.Channels.Matrix.UserID,
				AccessToken: cfg.Channels.Matrix.AccessToken,
				DeviceID:    cfg.Channels.Matrix.DeviceID,
				Logger:      logger,
			})
		})
	}
	if cfg.Channels.Mattermost.Enabled {
		register("mattermost", func() (channels.Adapter, error) {
			return channels.NewMattermostAdapter(channels.MattermostConfig{
				ServerURL: cfg.Channels.Mattermost.ServerURL,
				Token:     cfg.Channels.Mattermost.Token,
				Logger:    logger,
			})
		})
	}
	if cfg.Channels.Nostr.Enabled {
		register("nostr", func() (channels.Adapter, error) {
			return channels.NewNostrAdapter(channels.NostrConfig{
				PrivateKey: cfg.Channels.Nostr.PrivateKey,
				Relays:     cfg.Channels.Nostr.Relays,
				Logger:     logger,
			})
		})
	}
}

// --- collaborator adapters -------------------------------------------------

// busEventSink forwards orchestrator events to the event bus.
type busEventSink struct {
	bus     *EventBus
	metrics *observability.Metrics
}

func (s *busEventSink) Emit(executionID, kind string, payload map[string]any) {
	s.bus.Publish(ExecutionEvent{ExecutionID: executionID, Kind: ExecutionEventKind(kind), Payload: payload})
	switch kind {
	case "ExecutionStarted":
		s.metrics.ExecutionsStarted.Inc()
	case "ExecutionCompleted", "ExecutionFailed", "ExecutionCancelled":
		s.metrics.ExecutionsFinished.WithLabelValues(kind).Inc()
		s.bus.ResetSequence(executionID)
	case "ToolCallCompleted":
		outcome := "success"
		if ok, _ := payload["success"].(bool); !ok {
			outcome = "error"
		}
		tool, _ := payload["tool"].(string)
		s.metrics.ToolCalls.WithLabelValues(tool, outcome).Inc()
	}
}

// busApprovalNotifier publishes approval lifecycle events.
type busApprovalNotifier struct {
	bus     *EventBus
	metrics *observability.Metrics
}

func (n *busApprovalNotifier) ApprovalRequested(req *agent.ApprovalRequest) {
	n.bus.Publish(ExecutionEvent{ExecutionID: req.ExecutionID, Kind: EventApprovalRequested, Payload: map[string]any{
		"request_id":       req.ID,
		"action":           req.Action,
		"risk_description": req.RiskDescription,
		"expires_at":       req.ExpiresAt,
	}})
}

func (n *busApprovalNotifier) ApprovalResolved(req *agent.ApprovalRequest) {
	n.metrics.ApprovalsResolved.WithLabelValues(string(req.Status)).Inc()
	n.bus.Publish(ExecutionEvent{ExecutionID: req.ExecutionID, Kind: EventApprovalResolved, Payload: map[string]any{
		"request_id": req.ID,
		"status":     string(req.Status),
	}})
}

// indexerBridge adapts the memory indexer to the orchestrator's seam.
type indexerBridge struct {
	indexer *memory.Indexer
}

func (b *indexerBridge) Retrieve(ctx context.Context, sessionID, query string, topK int) ([]string, error) {
	turns, err := b.indexer.Retrieve(ctx, sessionID, query, topK)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, t.Turn.Summary)
	}
	return lines, nil
}

func (b *indexerBridge) IndexSession(ctx context.Context, sessionID string, history []*models.Message) error {
	return b.indexer.IndexSession(ctx, sessionID, history)
}

// personaRuntime runs one persona's tasks through the shared
// orchestrator with that persona's system prompt.
type personaRuntime struct {
	server       *Server
	systemPrompt string
}

func (r *personaRuntime) Process(ctx context.Context, session *models.Session, msg *models.Message) (<-chan agent.ResponseChunk, error) {
	if r.systemPrompt != "" {
		ctx = agent.WithSystemPrompt(ctx, r.systemPrompt)
	}
	return r.server.orchestrator.Process(ctx, session, msg)
}

// schedulerPromptRunner routes scheduled prompts through the
// orchestrator as synthetic requests on the scheduler channel.
type schedulerPromptRunner struct {
	server *Server
}

func (r *schedulerPromptRunner) RunPrompt(ctx context.Context, agentID, taskID, prompt string) (string, error) {
	s := r.server
	key := sessions.SessionKey(agentID, models.ChannelScheduler, taskID)
	session, err := sessions.GetOrCreate(ctx, s.store, key, agentID, models.ChannelScheduler, taskID, func() *models.Session {
		now := time.Now()
		return &models.Session{
			ID:             taskID + "-" + key,
			Status:         models.SessionIdle,
			CreatedAt:      now,
			UpdatedAt:      now,
			LastAccessedAt: now,
		}
	})
	if err != nil {
		return "", err
	}

	msg := &models.Message{
		SessionID: session.ID,
		Channel:   models.ChannelScheduler,
		ChannelID: taskID,
		Direction: models.DirectionInbound,
		Role:      models.RoleUser,
		Content:   prompt,
		CreatedAt: time.Now(),
	}
	chunks, err := s.orchestrator.Process(ctx, session, msg)
	if err != nil {
		return "", err
	}
	var response string
	var firstErr error
	for chunk := range chunks {
		if chunk.Error != nil && firstErr == nil {
			firstErr = chunk.Error
		}
		response += chunk.Text
	}
	if firstErr != nil {
		return "", firstErr
	}
	return response, nil
}

// schedulerToolInvoker bypasses the planner for direct tool actions.
type schedulerToolInvoker struct {
	server *Server
}

func (r *schedulerToolInvoker) InvokeTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	outcome := r.server.runner.RunPlanned(ctx, agent.PlannedCall{ID: "scheduled", Name: name, Arguments: args}, agent.ExecutionInfo{
		ExecutionID: "scheduler",
		UserID:      "scheduler",
	})
	if outcome.IsError {
		return "", errors.New(outcome.Content)
	}
	return outcome.Content, nil
}

// schedulerNotifier delivers notification actions via channel adapters.
type schedulerNotifier struct {
	server *Server
}

func (n *schedulerNotifier) Notify(ctx context.Context, channel, channelID, text string) error {
	adapter, ok := n.server.channels.Get(models.ChannelType(channel))
	if !ok {
		return fmt.Errorf("gateway: channel %q not configured", channel)
	}
	return adapter.Send(ctx, &models.Message{
		Channel:   models.ChannelType(channel),
		ChannelID: channelID,
		Direction: models.DirectionOutbound,
		Role:      models.RoleAssistant,
		Content:   text,
		Metadata:  map[string]any{"channel_id": channelID},
		CreatedAt: time.Now(),
	})
}

// --- JSON helpers ----------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
