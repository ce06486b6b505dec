package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const redisLedgerPrefix = "idempotency:appointments:"

// RedisLedger shares idempotency results between processes. Keys are bound
// with SETNX so a key never maps to a second result, even when two
// processes race on it.
type RedisLedger struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisLedger creates a ledger on client. ttl <= 0 keeps keys forever.
func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	if client == nil {
		panic("appointments: redis client cannot be nil")
	}
	return &RedisLedger{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("clinic.internal.appointments.ledger"),
	}
}

func (l *RedisLedger) Lookup(ctx context.Context, op Operation, key string) (Appointment, bool, error) {
	ctx, span := l.tracer.Start(ctx, "appointments.ledger.lookup")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.idempotency_op", string(op)))

	data, err := l.redis.Get(ctx, ledgerRedisKey(op, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Appointment{}, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return Appointment{}, false, fmt.Errorf("appointments: ledger lookup: %w", err)
	}

	var rec Appointment
	if err := json.Unmarshal(data, &rec); err != nil {
		span.RecordError(err)
		return Appointment{}, false, fmt.Errorf("appointments: decode ledger entry: %w", err)
	}
	return rec, true, nil
}

func (l *RedisLedger) Record(ctx context.Context, op Operation, key string, result Appointment) error {
	ctx, span := l.tracer.Start(ctx, "appointments.ledger.record")
	defer span.End()

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("appointments: encode ledger entry: %w", err)
	}
	ttl := l.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := l.redis.SetNX(ctx, ledgerRedisKey(op, key), data, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("appointments: ledger record: %w", err)
	}
	return nil
}

func (l *RedisLedger) Len(ctx context.Context) (int, error) {
	keys, err := l.keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (l *RedisLedger) Reset(ctx context.Context) error {
	keys, err := l.keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("appointments: ledger reset: %w", err)
	}
	return nil
}

func (l *RedisLedger) keys(ctx context.Context) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := l.redis.Scan(ctx, cursor, redisLedgerPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("appointments: ledger scan: %w", err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func ledgerRedisKey(op Operation, key string) string {
	return fmt.Sprintf("%s%s:%s", redisLedgerPrefix, op, key)
}
