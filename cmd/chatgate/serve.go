package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/chatgate/internal/bots"
	"github.com/memohai/chatgate/internal/cache"
	"github.com/memohai/chatgate/internal/channel"
	"github.com/memohai/chatgate/internal/channel/adapters/common"
	"github.com/memohai/chatgate/internal/channel/adapters/discord"
	"github.com/memohai/chatgate/internal/channel/adapters/messenger"
	"github.com/memohai/chatgate/internal/channel/adapters/telegram"
	"github.com/memohai/chatgate/internal/channel/adapters/web"
	"github.com/memohai/chatgate/internal/channel/adapters/whatsapp"
	"github.com/memohai/chatgate/internal/channel/adapters/zalo"
	"github.com/memohai/chatgate/internal/chat"
	"github.com/memohai/chatgate/internal/config"
	"github.com/memohai/chatgate/internal/db"
	"github.com/memohai/chatgate/internal/dispatch"
	"github.com/memohai/chatgate/internal/gateway"
	"github.com/memohai/chatgate/internal/handlers"
	"github.com/memohai/chatgate/internal/healthcheck"
	channelchecker "github.com/memohai/chatgate/internal/healthcheck/checkers/channel"
	gatewaychecker "github.com/memohai/chatgate/internal/healthcheck/checkers/gateway"
	"github.com/memohai/chatgate/internal/knowledge"
	"github.com/memohai/chatgate/internal/logger"
	"github.com/memohai/chatgate/internal/metrics"
	"github.com/memohai/chatgate/internal/server"
	"github.com/memohai/chatgate/internal/tracking"
	"github.com/memohai/chatgate/internal/version"
)

type serveOptions struct {
	ConfigPath string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			runServe(cfg)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "config file (default $CONFIG_PATH or config.toml)")
	return cmd
}

func runServe(cfg config.Config) {
	fx.New(
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			metrics.New,
			provideDBConn,
			provideBotStore,
			provideRedisClient,
			provideStringStore,
			provideSettingsCache,
			provideTokenCache,
			provideContextCache,
			provideCompleter,
			provideChatEngine,
			provideTelegramAdapter,
			provideDiscordAdapter,
			provideMessengerAdapter,
			provideWhatsAppAdapter,
			provideZaloAdapter,
			provideChannelRegistry,
			provideResolver,
			provideDispatcher,
			provideTracker,
			provideGateway,
			provideRateLimiter,
			provideReadiness,
			provideSweeper,
			provideServerHandler(providePingHandler),
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(provideWorkerHandler),
			provideServerHandler(providePublicChatHandler),
			provideServerHandler(provideAdminHandler),
			provideServer,
		),
		fx.Invoke(
			startSweeper,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

// provideDBConn returns a nil pool when postgres is disabled.
func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.Postgres.Disabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			pool.Close()
			return nil
		},
	})
	return pool, nil
}

// provideBotStore reads bots from postgres, or from memory when postgres is
// disabled. The seed file is loaded into whichever store is active.
func provideBotStore(log *slog.Logger, cfg config.Config, pool *pgxpool.Pool) (bots.Store, error) {
	var seed []bots.BotConfig
	if path := cfg.Store.SeedFile; path != "" {
		items, err := bots.LoadSeedFile(path)
		if err != nil {
			return nil, err
		}
		seed = items
	}
	if pool == nil {
		log.Warn("postgres disabled, bots are served from memory", slog.Int("seeded", len(seed)))
		return bots.NewMemoryStore(seed...), nil
	}
	svc := bots.NewService(log, pool)
	if len(seed) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, item := range seed {
			if err := svc.Upsert(ctx, item); err != nil {
				return nil, fmt.Errorf("seed bots: %w", err)
			}
		}
		log.Info("bots seeded", slog.Int("count", len(seed)))
	}
	return svc, nil
}

// provideRedisClient returns nil when no redis address is configured.
func provideRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	client := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if client == nil {
		return nil
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}

func provideStringStore(log *slog.Logger, cfg config.Config, client *redis.Client) cache.StringStore {
	ttl := cfg.Cache.KnowledgeTTL.Or(config.DefaultKnowledgeTTL)
	if client != nil {
		return cache.NewRedisStringStore(log, client, cfg.Redis.Prefix+"knowledge:", ttl)
	}
	return cache.NewMemoryStringStore(ttl)
}

func provideSettingsCache(cfg config.Config) *cache.Settings {
	return cache.NewSettings(cfg.Cache.SettingsTTL.Or(config.DefaultSettingsTTL), cfg.Cache.ChannelTTLs())
}

func provideTokenCache(cfg config.Config) *cache.Tokens {
	return cache.NewTokens(cfg.Cache.TokenRefreshMargin.Or(config.DefaultTokenMargin))
}

func provideContextCache(log *slog.Logger, cfg config.Config, store cache.StringStore) *knowledge.ContextCache {
	limits := knowledge.DefaultLimits()
	if cfg.Knowledge.MaxDocuments > 0 {
		limits.Documents = cfg.Knowledge.MaxDocuments
	}
	if cfg.Knowledge.MaxURLs > 0 {
		limits.URLs = cfg.Knowledge.MaxURLs
	}
	if cfg.Knowledge.MaxStructured > 0 {
		limits.Structured = cfg.Knowledge.MaxStructured
	}
	return knowledge.NewContextCache(log, store, cfg.Knowledge.MaxLength, limits)
}

func provideCompleter(cfg config.Config) chat.Completer {
	return chat.NewOpenAICompleter(cfg.Chat.BaseURL)
}

func provideChatEngine(log *slog.Logger, completer chat.Completer, contexts *knowledge.ContextCache, cfg config.Config, m *metrics.Metrics) *chat.Engine {
	if cfg.Chat.APIKey == "" {
		log.Warn("no system completion api key, only bots with their own key can answer")
	}
	return chat.NewEngine(log, completer, contexts, cfg.Chat, m)
}

func provideTelegramAdapter(log *slog.Logger) *telegram.TelegramAdapter {
	return telegram.NewTelegramAdapter(log)
}

func provideDiscordAdapter(log *slog.Logger) *discord.DiscordAdapter {
	return discord.NewDiscordAdapter(log, discord.WithHTTPClient(common.NewHTTPClient()))
}

func provideMessengerAdapter(log *slog.Logger, cfg config.Config) *messenger.MessengerAdapter {
	return messenger.NewMessengerAdapter(log, nil, cfg.Graph.MessengerBaseURL)
}

func provideWhatsAppAdapter(log *slog.Logger, cfg config.Config) *whatsapp.WhatsAppAdapter {
	return whatsapp.NewWhatsAppAdapter(log, nil, cfg.Graph.WhatsAppBaseURL)
}

func provideZaloAdapter(log *slog.Logger, cfg config.Config, tokens *cache.Tokens) *zalo.ZaloAdapter {
	return zalo.NewZaloAdapter(log, zalo.Options{
		Tokens:     tokens,
		APIBaseURL: cfg.Graph.ZaloAPIBaseURL,
		OAuthURL:   cfg.Graph.ZaloOAuthURL,
	})
}

func provideChannelRegistry(
	tg *telegram.TelegramAdapter,
	dc *discord.DiscordAdapter,
	fb *messenger.MessengerAdapter,
	wa *whatsapp.WhatsAppAdapter,
	zl *zalo.ZaloAdapter,
) (*channel.Registry, error) {
	return channel.NewRegistry(tg, dc, fb, wa, zl, web.NewWebAdapter())
}

func provideResolver(log *slog.Logger, store bots.Store, settings *cache.Settings, registry *channel.Registry, m *metrics.Metrics) *channel.Resolver {
	for _, adapter := range registry.List() {
		settings.Register(adapter.Type().String())
	}
	return channel.NewResolver(log, store, settings, registry, m)
}

func provideDispatcher(log *slog.Logger, cfg config.Config, m *metrics.Metrics) *dispatch.Dispatcher {
	queue := dispatch.NewQueueBackend(cfg.Queue, cfg.Server.PublicBaseURL, common.NewHTTPClient())
	if len(cfg.Queue.Channels) > 0 && !queue.Healthy() {
		log.Warn("queue not configured, queued channels run inline",
			slog.Any("channels", cfg.Queue.Channels),
		)
	}
	inline := dispatch.NewInlineBackend(log, cfg.Inline.Timeout.Or(config.DefaultInlineTimeout))
	return dispatch.NewDispatcher(log, queue, inline, m)
}

func provideTracker(log *slog.Logger, cfg config.Config, pool *pgxpool.Pool, m *metrics.Metrics) *tracking.Tracker {
	var store tracking.Store = tracking.NewMemoryStore()
	if pool != nil {
		store = tracking.NewPGStore(pool)
	}
	return tracking.NewTracker(log, store, cfg.Tracking.Timeout.Or(config.DefaultTrackingTimeout), m)
}

func provideGateway(
	log *slog.Logger,
	cfg config.Config,
	registry *channel.Registry,
	resolver *channel.Resolver,
	engine *chat.Engine,
	dispatcher *dispatch.Dispatcher,
	tracker *tracking.Tracker,
	m *metrics.Metrics,
) *gateway.Gateway {
	return gateway.New(log, registry, resolver, engine, dispatcher, tracker, m, gateway.Options{
		StrictSignatures: cfg.Security.StrictSignatures,
		Queue:            cfg.Queue,
	})
}

// provideRateLimiter keeps counters in redis when available and falls back
// to process memory.
func provideRateLimiter(log *slog.Logger, cfg config.Config, client *redis.Client) (*limiter.Limiter, error) {
	formatted := cfg.RateLimit.PublicChat
	if formatted == "" {
		formatted = config.DefaultPublicChatRate
	}
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("public chat rate %q: %w", formatted, err)
	}
	var store limiter.Store
	if client != nil {
		store, err = sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: cfg.Redis.Prefix + "ratelimit"})
		if err != nil {
			log.Warn("redis rate limit store unavailable, falling back to memory", slog.Any("error", err))
			store = nil
		}
	}
	if store == nil {
		store = memory.NewStore()
	}
	return limiter.New(store, rate), nil
}

func provideReadiness(log *slog.Logger, cfg config.Config, store bots.Store, dispatcher *dispatch.Dispatcher, client *redis.Client) *gatewaychecker.Checker {
	probes := []gatewaychecker.Probe{{
		Name:     "bot_store",
		TitleKey: "gateway.dependency.bot_store",
		Check: func(ctx context.Context) error {
			_, err := store.List(ctx)
			return err
		},
	}}
	if len(cfg.Queue.Channels) > 0 {
		probes = append(probes, gatewaychecker.Probe{
			Name:     "queue",
			TitleKey: "gateway.dependency.queue",
			Optional: true,
			Check: func(context.Context) error {
				if !dispatcher.QueueHealthy() {
					return errors.New("queue token or public base url missing, processing inline")
				}
				return nil
			},
		})
	}
	if client != nil {
		probes = append(probes, gatewaychecker.Probe{
			Name:     "redis",
			TitleKey: "gateway.dependency.redis",
			Optional: true,
			Check: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
		})
	}
	return gatewaychecker.NewChecker(log, probes...)
}

func provideSweeper(log *slog.Logger, cfg config.Config, settings *cache.Settings, tokens *cache.Tokens, store cache.StringStore) *cache.Sweeper {
	spec := cfg.Cache.SweepSpec
	if spec == "" {
		spec = config.DefaultSweepSpec
	}
	sweeper := cache.NewSweeper(log, spec)
	sweeper.Add("settings", settings)
	sweeper.Add("tokens", tokens)
	if mem, ok := store.(*cache.MemoryStringStore); ok {
		sweeper.Add("knowledge", mem)
	}
	return sweeper
}

func providePingHandler(log *slog.Logger, readiness *gatewaychecker.Checker, m *metrics.Metrics) *handlers.PingHandler {
	return handlers.NewPingHandler(log, readiness, m)
}

func provideWebhookHandler(log *slog.Logger, cfg config.Config, gw *gateway.Gateway, registry *channel.Registry, resolver *channel.Resolver, store bots.Store) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, gw, registry, resolver, store, cfg.Server.BodyLimitBytes)
}

func provideWorkerHandler(log *slog.Logger, cfg config.Config, gw *gateway.Gateway, registry *channel.Registry) *handlers.WorkerHandler {
	verifier := dispatch.NewSignatureVerifier(cfg.Queue.CurrentSigningKey, cfg.Queue.NextSigningKey)
	if !verifier.Enabled() {
		log.Warn("queue signing keys not set, worker callbacks are not verified")
	}
	return handlers.NewWorkerHandler(log, gw, registry, verifier, cfg.Server.BodyLimitBytes)
}

func providePublicChatHandler(log *slog.Logger, cfg config.Config, gw *gateway.Gateway, rateLimiter *limiter.Limiter) *handlers.PublicChatHandler {
	return handlers.NewPublicChatHandler(log, gw, rateLimiter, cfg.Server.BodyLimitBytes)
}

type adminParams struct {
	fx.In

	Logger    *slog.Logger
	Config    config.Config
	Settings  *cache.Settings
	Contexts  *knowledge.ContextCache
	Tokens    *cache.Tokens
	Resolver  *channel.Resolver
	Store     bots.Store
	Registry  *channel.Registry
	Telegram  *telegram.TelegramAdapter
	Zalo      *zalo.ZaloAdapter
	Messenger *messenger.MessengerAdapter
}

func provideAdminHandler(p adminParams) *handlers.AdminHandler {
	expiresIn, err := parseExpiresIn(p.Config.Admin.JWTExpiresIn)
	if err != nil {
		p.Logger.Warn("invalid jwt expires_in, using default", slog.Any("error", err))
		expiresIn, _ = parseExpiresIn("")
	}
	return handlers.NewAdminHandler(p.Logger, handlers.AdminOptions{
		Settings:      p.Settings,
		Knowledge:     p.Contexts,
		Tokens:        p.Tokens,
		Resolver:      p.Resolver,
		Checker:       healthcheck.NewMulti(channelchecker.NewChecker(p.Logger, p.Store, p.Registry)),
		Telegram:      p.Telegram,
		Zalo:          p.Zalo,
		Messenger:     p.Messenger,
		PublicBaseURL: p.Config.Server.PublicBaseURL,
		JWTSecret:     p.Config.Admin.JWTSecret,
		JWTExpiresIn:  expiresIn,
	})
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Admin.JWTSecret, params.ServerHandlers...)
}

func startSweeper(lc fx.Lifecycle, sweeper *cache.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sweeper.Start()
		},
		OnStop: func(ctx context.Context) error {
			return sweeper.Stop(ctx)
		},
	})
}

func startServer(
	lc fx.Lifecycle,
	logger *slog.Logger,
	srv *server.Server,
	shutdowner fx.Shutdowner,
	cfg config.Config,
	dispatcher *dispatch.Dispatcher,
	tracker *tracking.Tracker,
) {
	fmt.Printf("Starting chatgate %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			logger.Info("server listening", slog.String("addr", cfg.Server.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				return fmt.Errorf("server stop: %w", err)
			}
			// Inline work and tracking writes started by the last requests.
			if err := dispatcher.Wait(ctx); err != nil {
				logger.Warn("inline work still running at shutdown", slog.Any("error", err))
			}
			if err := tracker.Wait(ctx); err != nil {
				logger.Warn("tracking writes still running at shutdown", slog.Any("error", err))
			}
			return nil
		},
	})
}
