package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/2beens/gymsync/internal/config"
	"github.com/2beens/gymsync/internal/db"
	"github.com/2beens/gymsync/internal/gymstats"
	"github.com/2beens/gymsync/internal/gymstats/alerts"
	"github.com/2beens/gymsync/internal/gymstats/analytics"
	"github.com/2beens/gymsync/internal/gymstats/definitions"
	"github.com/2beens/gymsync/internal/gymstats/kvstore"
	"github.com/2beens/gymsync/internal/gymstats/mutations"
	"github.com/2beens/gymsync/internal/gymstats/remote"
	"github.com/2beens/gymsync/internal/gymstats/remote/pgremote"
	"github.com/2beens/gymsync/internal/gymstats/remote/redisremote"
	"github.com/2beens/gymsync/internal/gymstats/syncqueue"
	"github.com/2beens/gymsync/internal/gymstats/workouts"
	"github.com/2beens/gymsync/internal/middleware"
	"github.com/2beens/gymsync/internal/telemetry/metrics"
	"github.com/2beens/gymsync/internal/telemetry/tracing"
	"github.com/2beens/gymsync/pkg"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

const alertsKept = 100

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config      *config.Config
	dbPool      *pgxpool.Pool
	redisClient *redis.Client
	sqlite      *kvstore.SQLite

	engine     *mutations.Engine
	reconciler *syncqueue.Reconciler
	analyzer   *analytics.Analyzer
	alerts     *alerts.Recorder

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()

	backgroundWg sync.WaitGroup
}

type NewServerParams struct {
	Config                  *config.Config
	VersionInfo             string
	RedisPassword           string
	DBPassword              string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	cfg := params.Config
	s := &Server{
		config:      cfg,
		versionInfo: params.VersionInfo,
	}

	var collectors []prometheus.Collector
	if cfg.RemoteBackend == config.BackendPostgres {
		dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
			DBHost:         cfg.PostgresHost,
			DBPort:         cfg.PostgresPort,
			DBName:         cfg.PostgresDBName,
			DBUser:         cfg.PostgresUser,
			DBPassword:     params.DBPassword,
			MaxConns:       cfg.PostgresConns,
			TracingEnabled: params.HoneycombTracingEnabled,
		})
		if err != nil {
			return nil, fmt.Errorf("new db pool: %w", err)
		}
		if err := dbPool.Ping(ctx); err != nil {
			log.Warnf("failed to ping db: %s", err)
		}
		s.dbPool = dbPool
		collectors = append(collectors, pgxpoolprometheus.NewCollector(
			dbPool,
			map[string]string{"db_name": cfg.PostgresDBName},
		))
	}

	s.promRegistry = metrics.SetupPrometheus(collectors...)
	s.metricsManager = metrics.NewManager("gymsync", "service", s.promRegistry)
	s.metricsManager.GaugeLifeSignal.Set(0)

	if needsRedis(cfg) {
		s.redisClient = redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
			Password: params.RedisPassword,
			DB:       0, // use default DB
		})
		rdbStatus := s.redisClient.Ping(ctx)
		if err := rdbStatus.Err(); err != nil {
			log.Errorf("--> failed to ping redis: %s", err)
		} else {
			log.Debugf("redis ping: %s", rdbStatus.Val())
		}
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "gymsync", s.redisClient)
	if err != nil {
		return nil, err
	}
	s.otelShutdown = otelShutdown

	remoteService, err := s.remoteService(ctx)
	if err != nil {
		return nil, err
	}
	strategy, err := remote.NewStrategy(cfg.SyncStrategy, remoteService)
	if err != nil {
		return nil, err
	}

	localStorage, err := s.localStorage()
	if err != nil {
		return nil, err
	}

	defs := definitions.Default()
	if cfg.DefinitionsPath != "" {
		if defs, err = definitions.LoadFile(cfg.DefinitionsPath); err != nil {
			return nil, err
		}
	}
	log.Debugf("exercise definitions loaded: %d", defs.Len())

	queue, err := syncqueue.NewQueue(ctx, localStorage, cfg.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load pending sync queue: %w", err)
	}

	s.alerts = alerts.NewRecorder(alerts.LogAlerter{}, alertsKept)
	s.engine, err = mutations.NewEngine(ctx, mutations.EngineParams{
		OwnerID:        cfg.OwnerID,
		Store:          workouts.NewStore(),
		Definitions:    defs,
		Queue:          queue,
		Strategy:       strategy,
		LocalStorage:   localStorage,
		Alerter:        s.alerts,
		MetricsManager: s.metricsManager,
		RemoteTimeout:  cfg.RemoteTimeout(),
		Location:       cfg.Location(),
	})
	if err != nil {
		return nil, fmt.Errorf("new mutation engine: %w", err)
	}

	if cfg.HydrateOnStart {
		if merged, err := s.engine.Hydrate(ctx); err != nil {
			// offline start, the persisted snapshot is all we have
			log.Warnf("hydrate from remote [%s]: %s", strategy.Name(), err)
		} else {
			log.Infof("hydrated %d records from remote [%s]", merged, strategy.Name())
		}
	}

	s.reconciler = syncqueue.NewReconciler(syncqueue.ReconcilerParams{
		Queue:          queue,
		Replayer:       s.engine,
		Alerter:        s.alerts,
		MetricsManager: s.metricsManager,
		Interval:       cfg.ReconcileInterval(),
		MaxPendingAge:  cfg.MaxPendingAge(),
	})

	s.analyzer = analytics.NewAnalyzer(analytics.AnalyzerParams{
		Source:       s.engine.Store(),
		Definitions:  defs,
		TimesPerWeek: cfg.TimesPerWeek,
		DailyBudget:  cfg.DailyBudget,
	})

	return s, nil
}

func (s *Server) Engine() *mutations.Engine {
	return s.engine
}

func (s *Server) Analyzer() *analytics.Analyzer {
	return s.analyzer
}

func (s *Server) Reconciler() *syncqueue.Reconciler {
	return s.reconciler
}

func needsRedis(cfg *config.Config) bool {
	return cfg.RemoteBackend == config.BackendRedis ||
		cfg.LocalStorage == config.BackendRedis ||
		cfg.MutationsRateLimitPerMin > 0
}

func (s *Server) remoteService(ctx context.Context) (remote.Service, error) {
	switch s.config.RemoteBackend {
	case config.BackendPostgres:
		svc := pgremote.NewService(s.dbPool)
		if err := svc.Migrate(ctx); err != nil {
			log.Warnf("remote documents migration: %s", err)
		}
		return svc, nil
	case config.BackendRedis:
		return redisremote.NewService(s.redisClient), nil
	case config.BackendMemory:
		log.Warnln("using in-memory remote, nothing survives a restart")
		return remote.NewMemoryService(), nil
	default:
		return nil, fmt.Errorf("unknown remote backend: %s", s.config.RemoteBackend)
	}
}

func (s *Server) localStorage() (kvstore.Store, error) {
	switch s.config.LocalStorage {
	case config.StorageSQLite:
		store, err := kvstore.NewSQLite(s.config.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open local storage: %w", err)
		}
		s.sqlite = store
		return store, nil
	case config.BackendRedis:
		return kvstore.NewRedis(s.redisClient), nil
	case config.BackendMemory:
		return kvstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown local storage: %s", s.config.LocalStorage)
	}
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("gymsync-router"))

	r.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		pkg.WriteResponseBytes(w, pkg.ContentType.Text, []byte("I'm OK, thanks ;)"), http.StatusOK)
	}).Methods("GET").Name("root")
	r.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		pkg.WriteResponseBytes(w, pkg.ContentType.Text, []byte(s.versionInfo), http.StatusOK)
	}).Methods("GET").Name("version")

	var rateLimiter middleware.RequestRateLimiter
	if s.redisClient != nil {
		rateLimiter = redis_rate.NewLimiter(s.redisClient)
	}
	gymstatsHandler := gymstats.NewHandler(s.engine, s.analyzer, s.alerts)
	gymstatsHandler.SetupRoutes(r, rateLimiter, s.metricsManager, s.config.MutationsRateLimitPerMin)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors(s.config.AllowedOrigins))
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

// Serve starts the API and metrics servers and the background reconciler,
// which runs until ctx is done.
func (s *Server) Serve(ctx context.Context, host string, port int) {
	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      s.routerSetup(),
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.backgroundWg.Add(1)
	go func() {
		defer s.backgroundWg.Done()
		s.reconciler.Run(ctx)
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

// GracefulShutdown expects the context given to Serve to be done already.
func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")
	s.metricsManager.GaugeLifeSignal.Set(0)

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown http server")
		}
		log.Warnln("server shut down")
	}

	s.backgroundWg.Wait()
	// in flight remote attempts are bounded by the remote timeout
	s.engine.Wait()
	log.Debugf("pending sync entries left: %d", s.engine.Queue().Len())

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown metrics http server")
		}
		log.Warnln("metrics server shut down")
	}

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.sqlite != nil {
		if err := s.sqlite.Close(); err != nil {
			log.Errorf("failed to close local storage: %s", err)
		}
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
