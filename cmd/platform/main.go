// Command platform runs the agentic context runtime: the HTTP/WS
// surface, the background JobEngine worker pool, and the InstancePoller,
// all wired against a single Store and EntityRepo family.
//
// Usage:
//
//	platform -config config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentctx/platform/internal/agentruntime"
	"github.com/agentctx/platform/internal/config"
	"github.com/agentctx/platform/internal/decider"
	"github.com/agentctx/platform/internal/embedding"
	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/instance"
	"github.com/agentctx/platform/internal/jobengine"
	"github.com/agentctx/platform/internal/jobengine/queue"
	"github.com/agentctx/platform/internal/llm"
	"github.com/agentctx/platform/internal/logger"
	"github.com/agentctx/platform/internal/mcp"
	"github.com/agentctx/platform/internal/memoryclient"
	"github.com/agentctx/platform/internal/moduleregistry"
	"github.com/agentctx/platform/internal/moduleservice"
	"github.com/agentctx/platform/internal/moduletools"
	"github.com/agentctx/platform/internal/observability"
	"github.com/agentctx/platform/internal/poller"
	"github.com/agentctx/platform/internal/resolver"
	"github.com/agentctx/platform/internal/store/sqlstore"
	"github.com/agentctx/platform/internal/sync"
	"github.com/agentctx/platform/internal/tokencount"
	"github.com/agentctx/platform/internal/transport"
	"github.com/agentctx/platform/internal/vectorstore"
	"github.com/agentctx/platform/internal/workspace"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional; env vars and defaults fill the rest)")
	logLevel := flag.String("log-level", "", "overrides config.log_level")
	logFormat := flag.String("log-format", "", "overrides config.log_format")
	flag.Parse()

	if err := run(*configPath, *logLevel, *logFormat); err != nil {
		fmt.Fprintln(os.Stderr, "platform:", err)
		os.Exit(1)
	}
}

func run(configPath, logLevelOverride, logFormatOverride string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevelOverride != "" {
		cfg.LogLevel = logLevelOverride
	}
	if logFormatOverride != "" {
		cfg.LogFormat = logFormatOverride
	}
	log := logger.New(logger.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	dbPool := config.NewDBPool()
	defer dbPool.Close()
	sqlDB, err := dbPool.Get(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	db := sqlstore.New(sqlDB, cfg.Database.Dialect())

	idx, err := vectorstore.New(vectorstore.Config{
		Backend: vectorstore.Backend(cfg.VectorStore.Backend),
		Qdrant: vectorstore.QdrantConfig{
			Host:   cfg.VectorStore.Qdrant.Host,
			Port:   cfg.VectorStore.Qdrant.Port,
			APIKey: cfg.VectorStore.Qdrant.APIKey,
			UseTLS: cfg.VectorStore.Qdrant.UseTLS,
		},
		Chromem: vectorstore.ChromemConfig{
			PersistPath: cfg.VectorStore.Chromem.PersistPath,
			Compress:    cfg.VectorStore.Chromem.Compress,
		},
	})
	if err != nil {
		return fmt.Errorf("build vector index: %w", err)
	}

	agents := entity.NewAgentRepo(db)
	users := entity.NewUserRepo(db)
	instances := entity.NewInstanceRepo(db).WithVectorIndex(idx)
	links := entity.NewLinkRepo(db)
	narratives := entity.NewNarrativeRepo(db)
	events := entity.NewEventRepo(db)
	jobs := entity.NewJobRepo(db).WithVectorIndex(idx)
	inbox := entity.NewInboxRepo(db)
	awareness := entity.NewAwarenessRepo(db)
	social := entity.NewSocialRepo(db).WithVectorIndex(idx)
	mcpUrls := entity.NewMCPUrlRepo(db)
	ragStores := entity.NewRAGStoreRepo(db)
	_ = entity.NewAgentMessageRepo(db) // constructed but unused: no HTTP route exposes agent-to-agent messages

	registry := moduleregistry.Default()
	factory := instance.NewFactory(db, instances, links, registry)

	llmModel := os.Getenv("ANTHROPIC_MODEL")
	if llmModel == "" {
		llmModel = "claude-sonnet-4-5-20250929"
	}
	llmClient, err := llm.New(llm.Config{APIKey: os.Getenv("ANTHROPIC_API_KEY"), Model: llmModel})
	if err != nil {
		return fmt.Errorf("build llm client: %w", err)
	}

	dec, err := decider.New(llm.NewDeciderProvider(llmClient))
	if err != nil {
		return fmt.Errorf("build decider: %w", err)
	}

	syncer := sync.New(sync.Deps{
		DB:         db,
		Instances:  instances,
		Jobs:       jobs,
		Links:      links,
		Social:     social,
		Narratives: narratives,
	}).WithEmbedder(embedding.NewHashing())

	modules := moduleservice.New(factory, dec, syncer, registry, instances, jobs)

	chatLocal := mcp.NewLocalServer(entity.ModuleChat, moduletools.Chat(instances), log)
	jobLocal := mcp.NewLocalServer(entity.ModuleJob, moduletools.Job(moduletools.JobDeps{
		Instances: instances,
		Jobs:      jobs,
		Embedder:  embedding.NewHashing(),
	}), log)
	ragLocal := mcp.NewLocalServer(entity.ModuleGeminiRAG, moduletools.RAG(ragStores), log)
	for _, local := range []*mcp.LocalServer{chatLocal, jobLocal, ragLocal} {
		if err := local.Start(ctx); err != nil {
			return fmt.Errorf("start local mcp server: %w", err)
		}
	}
	dispatcher := mcp.NewDispatcher(agents, mcpUrls, log, chatLocal, jobLocal, ragLocal)

	memClient := memoryclient.New(cfg.Memory)
	tokens, err := tokencount.New(llmModel)
	if err != nil {
		log.Warn("tokencount: falling back to byte-length truncation", "error", err)
		tokens = nil
	}
	chatHook := agentruntime.NewChatHook(instances, memClient)
	if tokens != nil {
		chatHook = chatHook.WithTokenCounter(tokens)
	}
	jobHook := agentruntime.NewJobHook(jobs, llmClient)

	runtime := agentruntime.New(narratives, events, instances, modules, llmClient, dispatcher, chatHook, jobHook, log)

	interp := llm.NewJobInterpreter(llmClient)
	engine := jobengine.New(jobengine.Config{
		PollInterval:      cfg.JobEngine.PollInterval,
		JobTimeoutMinutes: cfg.JobEngine.JobTimeoutMinutes,
		MaxWorkers:        cfg.JobEngine.MaxWorkers,
	}, jobengine.Deps{
		Jobs:       jobs,
		Instances:  instances,
		Inbox:      inbox,
		Users:      users,
		Social:     social,
		Narratives: narratives,
		Events:     events,
	}, runtime, interp, log)
	if tokens != nil {
		engine = engine.WithTokenCounter(tokens)
	}
	if cfg.Queue.Enabled {
		mirror, err := queue.New(ctx, queue.Config{Addr: cfg.Queue.Addr, Password: cfg.Queue.Password, DB: cfg.Queue.DB}, time.Duration(cfg.JobEngine.JobTimeoutMinutes)*time.Minute)
		if err != nil {
			return fmt.Errorf("build job claim mirror: %w", err)
		}
		engine = engine.WithClaimMirror(mirror)
	}

	res := resolver.New(instances, jobs)
	pollerSvc := poller.New(poller.Config{
		PollInterval: cfg.Poller.PollInterval,
		MaxWorkers:   cfg.Poller.MaxWorkers,
	}, db, instances, links, res, log)

	obs, err := observability.New(ctx, observability.Config{
		ServiceName: cfg.Observability.ServiceName,
		MetricsAddr: cfg.Observability.MetricsAddr,
		TraceDebug:  cfg.LogLevel == "debug",
	})
	if err != nil {
		return fmt.Errorf("build observability provider: %w", err)
	}
	engine = engine.WithMetrics(obs)
	pollerSvc = pollerSvc.WithMetrics(obs)

	ws := workspace.New(cfg.Server.BaseWorkingPath)
	srv := transport.New(cfg.Server, transport.Deps{
		DB:         db,
		Agents:     agents,
		Users:      users,
		Instances:  instances,
		Narratives: narratives,
		Events:     events,
		Jobs:       jobs,
		Inbox:      inbox,
		Awareness:  awareness,
		Social:     social,
		MCPUrls:    mcpUrls,
		RAGStores:  ragStores,
		Workspace:  ws,
		Runtime:    runtime,
		Syncer:     syncer,
	}, log)

	go func() {
		if err := obs.Serve(cfg.Observability.MetricsAddr); err != nil {
			log.Warn("observability: metrics server stopped", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { engine.Run(gctx); return nil })
	g.Go(func() error { pollerSvc.Run(gctx); return nil })
	g.Go(func() error { return srv.Run(gctx) })

	log.Info("platform started", "addr", cfg.Server.Addr, "metrics_addr", cfg.Observability.MetricsAddr)
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return obs.Shutdown(context.Background())
}
