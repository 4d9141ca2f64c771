package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"irpf/internal/admin"
	adminAdapters "irpf/internal/admin/adapters"
	"irpf/internal/aggregate"
	declarationHandler "irpf/internal/declaration/handler"
	"irpf/internal/declaration/lock"
	declarationMetrics "irpf/internal/declaration/metrics"
	declarationService "irpf/internal/declaration/service"
	declarationStore "irpf/internal/declaration/store"
	identityHandler "irpf/internal/identity/handler"
	identityMetrics "irpf/internal/identity/metrics"
	identityService "irpf/internal/identity/service"
	identityStore "irpf/internal/identity/store"
	"irpf/internal/identity/token"
	"irpf/internal/platform/config"
	platformMetrics "irpf/internal/platform/metrics"
	"irpf/internal/platform/postgres"
	platformRedis "irpf/internal/platform/redis"
	recordsHandler "irpf/internal/records/handler"
	recordsMetrics "irpf/internal/records/metrics"
	recordsService "irpf/internal/records/service"
	recordsStore "irpf/internal/records/store"
	"irpf/pkg/money"
	audit "irpf/pkg/platform/audit"
	"irpf/pkg/platform/audit/publisher"
	auditmemory "irpf/pkg/platform/audit/store/memory"
	auditpostgres "irpf/pkg/platform/audit/store/postgres"
	"irpf/pkg/platform/audit/worker"
	"irpf/pkg/platform/circuit"
	"irpf/pkg/platform/httputil"
	adminmw "irpf/pkg/platform/middleware/admin"
	authmw "irpf/pkg/platform/middleware/auth"
	"irpf/pkg/platform/middleware/metadata"
	"irpf/pkg/platform/middleware/request"
	"irpf/pkg/platform/middleware/requesttime"
	txcontext "irpf/pkg/platform/tx"
	"irpf/pkg/requestcontext"
)

const (
	tokenIssuer   = "irpf"
	tokenAudience = "irpf-api"
	auditBuffer   = 1024
)

type app struct {
	cfg    config.Server
	log    *slog.Logger
	db     *sql.DB
	redis  *platformRedis.Client
	kafka  *kgo.Client
	outbox *auditpostgres.Store
	audit  *publisher.Publisher
	wg     sync.WaitGroup

	httpMetrics  *platformMetrics.Metrics
	tokens       *token.JWTService
	identity     *identityService.Service
	records      *recordsService.Service
	declarations *declarationService.Service
	admin        *admin.Service
}

// build opens the configured infrastructure and assembles the services. An
// unset DATABASE_URL runs everything on in-memory stores.
func build(ctx context.Context, cfg config.Server, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, httpMetrics: platformMetrics.New()}

	var auditStore audit.Store = auditmemory.NewInMemoryStore()
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.db = db
		if err := postgres.Migrate(ctx, db); err != nil {
			a.close()
			return nil, err
		}
		a.outbox = auditpostgres.New(db)
		auditStore = a.outbox
	}
	a.audit = publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(auditBuffer),
		publisher.WithLogger(log),
	)

	locker, err := a.buildLocker(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	if err := a.buildKafka(ctx); err != nil {
		a.close()
		return nil, err
	}

	a.buildServices(locker)
	return a, nil
}

func (a *app) buildLocker(ctx context.Context) (lock.Locker, error) {
	client, err := platformRedis.New(ctx, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		a.log.Info("REDIS_URL not set, using in-process declaration locks")
		return lock.NewShardedLocker(), nil
	}
	a.redis = client
	if err := client.RegisterPoolMetrics(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}
	return lock.NewRedisLocker(client.Client, lock.WithLogger(a.log)), nil
}

func (a *app) buildKafka(ctx context.Context) error {
	if len(a.cfg.Kafka.Brokers) == 0 || a.outbox == nil {
		a.log.Info("audit relay disabled", "brokers", len(a.cfg.Kafka.Brokers), "outbox", a.outbox != nil)
		return nil
	}
	client, err := kgo.NewClient(kgo.SeedBrokers(a.cfg.Kafka.Brokers...))
	if err != nil {
		return fmt.Errorf("kafka client: %w", err)
	}
	a.kafka = client
	if err := worker.EnsureTopic(ctx, kadm.NewClient(client), a.cfg.Kafka.AuditTopic, 3, 1); err != nil {
		return err
	}
	return nil
}

func (a *app) buildServices(locker lock.Locker) {
	var (
		records      recordsService.Store
		declarations declarationService.Store
		users        identityService.Store
	)
	if a.db != nil {
		records = recordsStore.NewPostgres(a.db)
		declarations = declarationStore.NewPostgres(a.db)
		users = identityStore.NewPostgres(a.db)
	} else {
		records = recordsStore.NewInMemory()
		declarations = declarationStore.NewInMemory()
		users = identityStore.NewInMemory()
	}

	declMetrics := declarationMetrics.New()
	builder := aggregate.NewBuilder(records,
		aggregate.WithLogger(a.log),
		aggregate.WithLatencyObserver(declMetrics.ObserveAggregateBuild),
	)
	declOpts := []declarationService.Option{
		declarationService.WithLogger(a.log),
		declarationService.WithAuditPublisher(a.audit),
		declarationService.WithMetrics(declMetrics),
		declarationService.WithLocker(locker),
		declarationService.WithJumpThreshold(money.New(a.cfg.NetWorthJumpThreshold)),
	}
	if a.db != nil {
		db := a.db
		declOpts = append(declOpts, declarationService.WithTxRunner(func(ctx context.Context, fn func(ctx context.Context) error) error {
			return txcontext.Run(ctx, db, fn)
		}))
	}
	a.declarations = declarationService.New(declarations, builder, declOpts...)
	a.records = recordsService.New(records,
		recordsService.WithLogger(a.log),
		recordsService.WithAuditPublisher(a.audit),
		recordsService.WithMetrics(recordsMetrics.New()),
		recordsService.WithLockGate(a.declarations),
	)

	a.tokens = token.NewJWTService(a.cfg.JWTSigningKey, tokenIssuer, tokenAudience)
	a.identity = identityService.New(users, a.tokens,
		identityService.WithLogger(a.log),
		identityService.WithAuditPublisher(a.audit),
		identityService.WithMetrics(identityMetrics.New()),
		identityService.WithTokenTTL(a.cfg.JWTTTL),
		identityService.WithAdminEmails(a.cfg.AdminEmails),
	)

	a.admin = admin.NewService(
		adminAdapters.NewUserStoreAdapter(a.identity),
		adminAdapters.NewDeclarationStoreAdapter(a.declarations),
		admin.WithLogger(a.log),
		admin.WithAuditPublisher(a.audit),
	)
}

func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(a.log))
	r.Use(request.Logger(a.log))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(a.httpMetrics.Instrument)

	r.Get("/healthz", healthHandler(a.log, a.backendChecks()))
	r.Handle("/metrics", promhttp.Handler())

	identityHandler.New(a.identity, a.log).Register(r)

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(token.NewMiddlewareAdapter(a.tokens), a.identity, a.log))
		recordsHandler.New(a.records, a.log).Register(r)
		declarationHandler.New(a.declarations, a.log).Register(r)

		r.Group(func(r chi.Router) {
			r.Use(adminmw.RequireAdmin(a.log))
			admin.NewHandler(a.admin, a.log).Register(r)
		})
	})
	return r
}

type healthResponse struct {
	Status   string            `json:"status"`
	Backends map[string]string `json:"backends"`
}

type backendCheck struct {
	name string
	ping func(ctx context.Context) error
}

func (a *app) backendChecks() []backendCheck {
	var checks []backendCheck
	if a.db != nil {
		checks = append(checks, backendCheck{"postgres", a.db.PingContext})
	}
	if a.redis != nil {
		checks = append(checks, backendCheck{"redis", a.redis.Health})
	}
	if a.kafka != nil {
		checks = append(checks, backendCheck{"kafka", a.kafka.Ping})
	}
	return checks
}

// healthHandler reports each backend as ok or unavailable. Failure details
// go to the log only.
func healthHandler(log *slog.Logger, checks []backendCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		res := healthResponse{Status: "ok", Backends: map[string]string{}}
		for _, c := range checks {
			if err := c.ping(ctx); err != nil {
				log.WarnContext(ctx, "health check failed",
					"request_id", requestcontext.RequestID(ctx),
					"backend", c.name,
					"error", err,
				)
				res.Status = "degraded"
				res.Backends[c.name] = "unavailable"
				continue
			}
			res.Backends[c.name] = "ok"
		}

		status := http.StatusOK
		if res.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, res)
	}
}

// startBackground runs the outbox relay until ctx is cancelled.
func (a *app) startBackground(ctx context.Context) {
	if a.kafka == nil {
		return
	}
	relay := worker.NewRelay(a.outbox, a.kafka, a.cfg.Kafka.AuditTopic,
		worker.WithLogger(a.log),
		worker.WithBreaker(circuit.New("audit-relay")),
	)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("audit relay stopped", "error", err)
		}
	}()
}

// close waits for background work and releases connections in reverse order.
func (a *app) close() {
	a.wg.Wait()
	if a.audit != nil {
		a.audit.Close()
	}
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
