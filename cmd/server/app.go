package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"

	actmodels "gigsafe/internal/activity/models"
	actstore "gigsafe/internal/activity/store"
	"gigsafe/internal/alert/gate"
	alerthandler "gigsafe/internal/alert/handler"
	alertmetrics "gigsafe/internal/alert/metrics"
	alertmodels "gigsafe/internal/alert/models"
	"gigsafe/internal/alert/publisher"
	alertservice "gigsafe/internal/alert/service"
	alertstore "gigsafe/internal/alert/store"
	credhandler "gigsafe/internal/credential/handler"
	credmetrics "gigsafe/internal/credential/metrics"
	credservice "gigsafe/internal/credential/service"
	credstore "gigsafe/internal/credential/store"
	"gigsafe/internal/oracle"
	"gigsafe/internal/platform/config"
	"gigsafe/internal/platform/jwt"
	"gigsafe/internal/platform/kafka"
	httpmetrics "gigsafe/internal/platform/metrics"
	"gigsafe/internal/platform/postgres"
	"gigsafe/internal/platform/redis"
	"gigsafe/internal/regional/feed"
	reghandler "gigsafe/internal/regional/handler"
	regmetrics "gigsafe/internal/regional/metrics"
	regservice "gigsafe/internal/regional/service"
	regstore "gigsafe/internal/regional/store"
	"gigsafe/internal/scoring/engine"
	scorehandler "gigsafe/internal/scoring/handler"
	scoremetrics "gigsafe/internal/scoring/metrics"
	scoreservice "gigsafe/internal/scoring/service"
	scorestore "gigsafe/internal/scoring/store"
	"gigsafe/internal/verification"
	verifyhandler "gigsafe/internal/verification/handler"
	"gigsafe/migrations"
	id "gigsafe/pkg/domain"
	"gigsafe/pkg/platform/audit"
	"gigsafe/pkg/platform/audit/publishers/compliance"
	auditmemory "gigsafe/pkg/platform/audit/store/memory"
	auditpostgres "gigsafe/pkg/platform/audit/store/postgres"
	"gigsafe/pkg/platform/httputil"
	"gigsafe/pkg/platform/middleware/admin"
	"gigsafe/pkg/platform/middleware/auth"
	"gigsafe/pkg/platform/middleware/metadata"
	"gigsafe/pkg/platform/middleware/requesttime"
	txcontext "gigsafe/pkg/platform/tx"
)

// activityStore is what scoring and verification need from the activity log.
type activityStore interface {
	scoreservice.ActivityStore
	LatestWithLocation(ctx context.Context, workerID id.WorkerID) (actmodels.Activity, error)
}

type app struct {
	db    *sql.DB
	redis *goredis.Client
	kafka *kgo.Client

	credentials  *credservice.Service
	scoring      *scoreservice.Service
	alerts       *alertservice.Service
	regional     *regservice.Service
	verification *verification.Service
	tokens       *jwt.Service
	adminHash    []byte
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{}
	var err error

	if a.db, err = postgres.Open(ctx, cfg.Database); err != nil {
		return nil, err
	}
	if a.db != nil {
		if err := migrations.Apply(ctx, a.db); err != nil {
			a.close()
			return nil, err
		}
	}
	if a.redis, err = redis.Open(ctx, cfg.Redis); err != nil {
		a.close()
		return nil, err
	}
	if a.kafka, err = kafka.NewClient(cfg.Kafka); err != nil {
		a.close()
		return nil, err
	}
	if a.kafka != nil {
		if err := kafka.EnsureTopic(ctx, a.kafka, cfg.Kafka.AlertTopic, cfg.Kafka.Partitions); err != nil {
			// The publisher is best-effort; a missing topic only costs deliveries.
			log.Warn("failed to provision alert topic", "topic", cfg.Kafka.AlertTopic, "error", err)
		}
	}

	if a.adminHash, err = admin.HashToken(cfg.Auth.AdminToken); err != nil {
		a.close()
		return nil, fmt.Errorf("hash admin token: %w", err)
	}
	a.tokens = jwt.NewService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)

	var (
		workers    credservice.Store       = credstore.NewInMemoryStore()
		activities activityStore           = actstore.NewInMemory()
		stats      scoreservice.StatsStore = scorestore.NewInMemory()
		alertLog   alertservice.Store      = alertstore.NewInMemory()
		auditLog   audit.Store             = auditmemory.NewInMemoryStore()
		tx         credservice.TxRunner    = txcontext.NoopRunner{}
	)
	if a.db != nil {
		workers = credstore.NewPostgres(a.db)
		activities = actstore.NewPostgres(a.db)
		stats = scorestore.NewPostgres(a.db)
		alertLog = alertstore.NewPostgres(a.db)
		auditLog = auditpostgres.New(a.db)
		tx = txcontext.NewSQLRunner(a.db)
	}
	auditor := compliance.New(auditLog,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics()),
	)

	a.credentials = credservice.New(workers, cfg.Credential.Secret,
		credservice.WithLogger(log),
		credservice.WithAuditPublisher(auditor),
		credservice.WithMetrics(credmetrics.New()),
		credservice.WithTxRunner(tx),
	)

	regOpts := []regservice.Option{
		regservice.WithLogger(log),
		regservice.WithMetrics(regmetrics.New()),
		regservice.WithRefreshTimeout(cfg.Regional.RefreshTimeout),
	}
	if a.redis != nil {
		regOpts = append(regOpts, regservice.WithStore(regstore.NewRedis(a.redis)))
	} else {
		regOpts = append(regOpts, regservice.WithStore(regstore.NewInMemory()))
	}
	var source regservice.Feed = feed.Static{}
	if cfg.Regional.FeedURL != "" {
		source = feed.NewDataGovClient(cfg.Regional.FeedURL, cfg.Regional.APIKey)
	}
	if a.regional, err = regservice.New(source, regOpts...); err != nil {
		a.close()
		return nil, fmt.Errorf("regional context: %w", err)
	}

	alertOpts := []alertservice.Option{
		alertservice.WithLogger(log),
		alertservice.WithMetrics(alertmetrics.New()),
		alertservice.WithAuditPublisher(auditor),
		alertservice.WithCooldown(cfg.Alert.Cooldown),
		alertservice.WithThresholds(alertmodels.Thresholds{
			MaxSpeedKmh:    cfg.Scoring.RashSpeedKmh,
			RouteDeviation: cfg.Scoring.RouteDeviationThreshold,
		}),
	}
	if a.redis != nil {
		alertOpts = append(alertOpts, alertservice.WithGate(gate.NewRedis(a.redis)))
	}
	if a.kafka != nil {
		alertOpts = append(alertOpts, alertservice.WithPublisher(publisher.NewKafka(a.kafka, cfg.Kafka.AlertTopic)))
	}
	a.alerts = alertservice.New(alertLog, alertOpts...)

	eng, err := newEngine(cfg.Scoring)
	if err != nil {
		a.close()
		return nil, err
	}
	var classifier oracle.Oracle = oracle.NewRuleOracle()
	if cfg.Oracle.URL != "" {
		classifier = oracle.NewHTTP(cfg.Oracle.URL, cfg.Oracle.Timeout)
	}
	a.scoring = scoreservice.New(activities, stats, a.credentials,
		oracle.NewGuarded(classifier, cfg.Oracle.Timeout, oracle.WithGuardLogger(log)),
		a.regional, eng,
		scoreservice.WithLogger(log),
		scoreservice.WithMetrics(scoremetrics.New()),
		scoreservice.WithDispatcher(a.alerts),
		scoreservice.WithTxRunner(tx),
	)

	a.verification = verification.New(a.credentials, a.scoring, activities, a.alerts, a.regional,
		verification.WithLogger(log),
	)
	return a, nil
}

func newEngine(cfg config.ScoringConfig) (*engine.Engine, error) {
	scheme, err := engine.SchemeByName(cfg.Scheme)
	if cfg.Weights != "" {
		scheme, err = engine.ParseWeights(cfg.Weights)
	}
	if err != nil {
		return nil, fmt.Errorf("scoring weights: %w", err)
	}
	// The speed and route factors ramp on the same thresholds the alert rules fire on.
	if cfg.RashSpeedKmh > 0 {
		scheme.Params.SpeedThreshold = cfg.RashSpeedKmh
	}
	if cfg.RouteDeviationThreshold > 0 {
		scheme.Params.RouteThreshold = cfg.RouteDeviationThreshold
	}
	aggregation, err := engine.ParseAggregation(cfg.Aggregation, cfg.RollingWindow)
	if err != nil {
		return nil, fmt.Errorf("score aggregation: %w", err)
	}
	return engine.New(scheme, aggregation)
}

func (a *app) router(log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(httpmetrics.New().Middleware)

	credentials := credhandler.New(a.credentials, log)
	scoring := scorehandler.New(a.scoring, log)

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(a.adminHash, log))
		credentials.RegisterAdmin(r)
		scoring.RegisterAdmin(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(a.tokens, log))
		credentials.RegisterAuthenticated(r)
	})

	credentials.Register(r)
	scoring.Register(r)
	alerthandler.New(a.alerts, log).Register(r)
	verifyhandler.New(a.verification, log).Register(r)
	reghandler.New(a.regional, log).Register(r)
	return r
}

func (a *app) storage() string {
	if a.db != nil {
		return "postgres"
	}
	return "memory"
}

type healthResponse struct {
	Status        string            `json:"status"`
	Storage       string            `json:"storage"`
	Checks        map[string]string `json:"checks"`
	RegionalStale bool              `json:"regional_data_stale"`
}

// handleHealth reports degraded when a configured backend does not answer.
// Stale regional data is reported but does not degrade the service.
func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Storage: a.storage(), Checks: map[string]string{}}
	check := func(name string, err error) {
		if err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			return
		}
		resp.Checks[name] = "ok"
	}
	if a.db != nil {
		check("postgres", a.db.PingContext(ctx))
	}
	if a.redis != nil {
		check("redis", a.redis.Ping(ctx).Err())
	}
	if a.kafka != nil {
		check("kafka", a.kafka.Ping(ctx))
	}
	resp.RegionalStale = a.regional.Stale()

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}

func (a *app) close() {
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
