package svc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "atlas-api/internal/cache"
	"atlas-api/internal/config"
	"atlas-api/internal/model"
	"atlas-api/internal/persistence/marketcache"
	"atlas-api/internal/persistence/orders"
	"atlas-api/internal/persistence/trace"
	agentpkg "atlas-api/pkg/agent"
	"atlas-api/pkg/approval"
	"atlas-api/pkg/journal"
	llmpkg "atlas-api/pkg/llm"
	marketpkg "atlas-api/pkg/market"
	_ "atlas-api/pkg/market/yahoo"
)

const (
	schemaTimeout     = 30 * time.Second
	testGeminiModel   = "gemini-2.0-flash-lite"
	defaultMarketYAML = `
default: yahoo
providers:
  yahoo:
    type: yahoo
`
)

// ErrNoDatabase is returned by operations that need durable order storage.
var ErrNoDatabase = errors.New("svc: postgres is not configured")

// TraceStore records runs and reads them back.
type TraceStore interface {
	agentpkg.Recorder
	FindByRunID(ctx context.Context, runID string) (*agentpkg.Run, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*agentpkg.Run, error)
	LatestByUser(ctx context.Context, userID string) (*agentpkg.Run, error)
	Stats(ctx context.Context, since time.Time) (agentpkg.Stats, error)
}

type ServiceContext struct {
	Config config.Config
	TTL    cachekeys.TTLSet

	LLMConfig    *llmpkg.Config
	MarketConfig *marketpkg.Config
	AgentConfig  *agentpkg.Config

	// Optional stores, present only when Postgres or Redis are configured.
	DBConn               sqlx.SqlConn
	Redis                *redis.Redis
	AgentRunsModel       model.AgentRunsModel
	MarketDataCacheModel model.MarketDataCacheModel
	OrdersModel          model.OrdersModel
	AuditLogsModel       model.AuditLogsModel
	MarketCache          *marketcache.Service

	MarketProviders map[string]marketpkg.Provider
	DefaultMarket   marketpkg.Provider
	Fetcher         *marketpkg.Fetcher
	Backend         llmpkg.Backend
	Traces          TraceStore
	Orchestrator    *agentpkg.Orchestrator
	Approvals       *approval.Service
}

// Option overrides a collaborator, mostly for tests and tooling.
type Option func(*options)

type options struct {
	backend  llmpkg.Backend
	provider marketpkg.Provider
}

// WithBackend uses backend instead of building one from the LLM section.
func WithBackend(backend llmpkg.Backend) Option {
	return func(o *options) { o.backend = backend }
}

// WithMarketProvider uses provider instead of the configured default.
func WithMarketProvider(provider marketpkg.Provider) Option {
	return func(o *options) { o.provider = provider }
}

func MustNewServiceContext(c config.Config, opts ...Option) *ServiceContext {
	svc, err := NewServiceContext(context.Background(), c, opts...)
	if err != nil {
		logx.Must(err)
	}
	return svc
}

func NewServiceContext(ctx context.Context, c config.Config, opts ...Option) (*ServiceContext, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	svc := &ServiceContext{
		Config:       c,
		TTL:          cachekeys.NewTTLSet(c.TTL),
		LLMConfig:    c.LLM.Value,
		MarketConfig: c.Market.Value,
		AgentConfig:  c.Agent.Value,
	}
	if svc.AgentConfig == nil {
		svc.AgentConfig = agentpkg.DefaultConfig()
	}
	if svc.MarketConfig == nil {
		mcfg, err := marketpkg.LoadConfigFromReader(strings.NewReader(defaultMarketYAML))
		if err != nil {
			return nil, fmt.Errorf("default market config: %w", err)
		}
		svc.MarketConfig = mcfg
	}

	if err := svc.initStores(ctx); err != nil {
		return nil, err
	}
	if err := svc.initMarket(o.provider); err != nil {
		return nil, err
	}
	if err := svc.initBackend(ctx, o.backend); err != nil {
		return nil, err
	}
	if err := svc.initAgent(); err != nil {
		return nil, err
	}
	if err := svc.initApprovals(); err != nil {
		return nil, err
	}
	return svc, nil
}

// Durable reports whether runs and orders outlive the process in Postgres.
func (s *ServiceContext) Durable() bool {
	return s.DBConn != nil
}

// Close releases clients that hold connections.
func (s *ServiceContext) Close() error {
	if closer, ok := s.Backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (s *ServiceContext) initStores(ctx context.Context) error {
	c := s.Config
	if c.HasRedis() {
		rds, err := redis.NewRedis(c.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		s.Redis = rds
	}

	// Only inject DB models when DSN provided.
	if c.HasPostgres() {
		db, err := sql.Open("pgx", c.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		if c.Postgres.MaxOpen > 0 {
			db.SetMaxOpenConns(c.Postgres.MaxOpen)
		}
		if c.Postgres.MaxIdle > 0 {
			db.SetMaxIdleConns(c.Postgres.MaxIdle)
		}
		conn := sqlx.NewSqlConnFromDB(db)

		schemaCtx, cancel := context.WithTimeout(ctx, schemaTimeout)
		defer cancel()
		if err := model.EnsureSchema(schemaCtx, conn); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}

		cacheConf := c.ModelCache()
		s.DBConn = conn
		s.AgentRunsModel = model.NewAgentRunsModel(conn, cacheConf)
		s.OrdersModel = model.NewOrdersModel(conn, cacheConf)
		s.MarketDataCacheModel = model.NewMarketDataCacheModel(conn)
		s.AuditLogsModel = model.NewAuditLogsModel(conn)
	}

	cfg := marketcache.Config{
		Redis:     s.Redis,
		TTL:       s.TTL,
		Freshness: s.MarketConfig.Freshness,
	}
	if s.MarketDataCacheModel != nil {
		cfg.Rows = s.MarketDataCacheModel
	}
	s.MarketCache = marketcache.NewService(cfg)
	return nil
}

func (s *ServiceContext) initMarket(override marketpkg.Provider) error {
	mcfg := s.MarketConfig
	if override != nil {
		s.DefaultMarket = override
	} else {
		providers, err := mcfg.BuildProviders()
		if err != nil {
			return fmt.Errorf("build market providers: %w", err)
		}
		s.MarketProviders = providers
		def, err := mcfg.DefaultProvider()
		if err != nil {
			return err
		}
		s.DefaultMarket = def
	}

	var store marketpkg.CacheStore
	if s.MarketCache != nil {
		store = s.MarketCache
	} else {
		mem, err := marketpkg.NewMemoryStore(mcfg.Freshness)
		if err != nil {
			return fmt.Errorf("market memory store: %w", err)
		}
		store = mem
	}
	gateway := marketpkg.NewCacheGateway(store,
		marketpkg.WithFreshness(mcfg.Freshness),
		marketpkg.WithSource(mcfg.Source),
	)

	fetcherOpts := []marketpkg.FetcherOption{
		marketpkg.WithCache(gateway),
		marketpkg.WithHistoryDays(mcfg.HistoryDays),
		marketpkg.WithBatchConcurrency(mcfg.BatchConcurrency),
	}
	if timeout := mcfg.ProviderTimeout(); timeout > 0 {
		fetcherOpts = append(fetcherOpts, marketpkg.WithProviderTimeout(timeout))
	}
	fetcher, err := marketpkg.NewFetcher(s.DefaultMarket, fetcherOpts...)
	if err != nil {
		return err
	}
	s.Fetcher = fetcher
	return nil
}

func (s *ServiceContext) initBackend(ctx context.Context, override llmpkg.Backend) error {
	if override != nil {
		s.Backend = override
		return nil
	}
	if s.LLMConfig == nil {
		return errors.New("llm config is required")
	}
	llmCfg := s.LLMConfig.Clone()
	// Test environment prefers the low-cost model.
	if s.Config.IsTestEnv() && llmCfg.Provider == llmpkg.ProviderGemini {
		llmCfg.DefaultModel = testGeminiModel
	}
	backend, err := llmpkg.NewBackend(ctx, llmCfg, llmpkg.WithLogger(llmpkg.NewLogger(llmCfg.LogLevel)))
	if err != nil {
		return fmt.Errorf("build llm backend: %w", err)
	}
	s.Backend = backend
	return nil
}

func (s *ServiceContext) initAgent() error {
	if s.AgentRunsModel != nil {
		s.Traces = trace.NewService(trace.Config{Runs: s.AgentRunsModel, Redis: s.Redis, TTL: s.TTL})
	} else {
		store, err := journal.NewStore(s.Config.ResolveJournalDir())
		if err != nil {
			return err
		}
		s.Traces = store
	}
	orch, err := agentpkg.NewOrchestrator(s.AgentConfig, s.Fetcher, s.Backend, agentpkg.WithRecorder(s.Traces))
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}
	s.Orchestrator = orch
	return nil
}

func (s *ServiceContext) initApprovals() error {
	env := approval.Environment(s.Config.Environment)
	if env == "" {
		env = approval.EnvironmentPaper
	}
	var (
		store approval.OrderStore
		audit approval.AuditLog
	)
	if s.OrdersModel != nil {
		pg := orders.NewService(orders.Config{Orders: s.OrdersModel, Audit: s.AuditLogsModel})
		store, audit = pg, pg
	} else {
		mem := approval.NewMemoryStore()
		store, audit = mem, mem
	}
	svc, err := approval.NewService(store, audit, approval.WithEnvironment(env))
	if err != nil {
		return fmt.Errorf("build approval service: %w", err)
	}
	s.Approvals = svc
	return nil
}
