package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduling/internal/appointments"
	appconfig "github.com/wolfman30/clinic-scheduling/internal/config"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

const pingTimeout = 5 * time.Second

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildLedger picks the idempotency backend. A redis backend without a
// reachable client falls back to memory so the API still starts.
func BuildLedger(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) appointments.Ledger {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg != nil && cfg.IdempotencyBackend == "redis" {
		if redisClient != nil {
			logger.Info("idempotency ledger backed by redis", "ttl", cfg.IdempotencyTTL.String())
			return appointments.NewRedisLedger(redisClient, cfg.IdempotencyTTL)
		}
		logger.Warn("redis idempotency backend requested but redis is unavailable; using memory")
	}
	return appointments.NewMemoryLedger()
}

// BuildPostgresPool connects to Postgres, returning nil when the URL is empty
// or the database cannot be reached.
func BuildPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Warn("postgres not available", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// BuildAuditDB opens a database/sql handle through the pgx stdlib driver
// when auditing is enabled and a database is configured.
func BuildAuditDB(cfg *appconfig.Config, logger *logging.Logger) *sql.DB {
	if cfg == nil || !cfg.AuditEnabled || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open audit database", "error", err)
		return nil
	}
	return db
}

// StoreOptions translates engine settings into store options.
func StoreOptions(cfg *appconfig.Config) []appointments.StoreOption {
	if cfg == nil {
		return nil
	}
	return []appointments.StoreOption{
		appointments.WithIDAttempts(cfg.IDMaxAttempts),
		appointments.WithClusterMode(appointments.ParseClusterMode(cfg.OverlapClusterMode)),
		appointments.WithMaxPerSlot(cfg.MaxAppointmentsPerSlot),
	}
}

// EngineMiddleware returns the interceptor chain, outermost first. Fault
// injection sits innermost so retries can absorb the faults it raises.
func EngineMiddleware(cfg *appconfig.Config, logger *logging.Logger) []appointments.Middleware {
	if logger == nil {
		logger = logging.Default()
	}
	mws := []appointments.Middleware{appointments.WithLogging(logger)}
	if cfg == nil {
		return mws
	}
	policy := appointments.DefaultRetryPolicy()
	if cfg.RetryMaxAttempts > 0 {
		policy.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryBaseDelay > 0 {
		policy.BaseDelay = cfg.RetryBaseDelay
	}
	mws = append(mws, appointments.WithRetry(policy))
	if cfg.FaultInjectionRate > 0 {
		logger.Warn("fault injection enabled", "rate", cfg.FaultInjectionRate)
		mws = append(mws, appointments.WithFaultInjection(cfg.FaultInjectionRate, nil))
	}
	return mws
}
