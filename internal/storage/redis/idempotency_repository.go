package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

const (
	keyPrefix = "lessonbook:idempotency:"
	opTimeout = 2 * time.Second
)

// record - JSON-представление IdempotencyRecord в Redis.
type record struct {
	Key          string    `json:"key"`
	RequestHash  string    `json:"request_hash"`
	ResponseBody []byte    `json:"response_body,omitempty"`
	HTTPStatus   int       `json:"http_status,omitempty"`
	Status       string    `json:"status"`
	TTLAt        time.Time `json:"ttl_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type idempotencyRepository struct {
	client *redis.Client
}

// NewIdempotencyRepository создаёт реализацию IdempotencyRepository поверх Redis.
// Срок жизни ключа задаётся TTL самого Redis-ключа.
func NewIdempotencyRepository(client *redis.Client) domain.IdempotencyRepository {
	return &idempotencyRepository{client: client}
}

func (r *idempotencyRepository) CreateProcessing(key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	now := time.Now().UTC()
	rec, err := domain.NewIdempotencyRecord(key, requestHash, ttlAt, now)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	ttl := rec.TTLAt.Sub(now)
	if ttl <= 0 {
		// Уже просроченный ключ хранить незачем.
		ttl = time.Millisecond
	}

	payload, err := encode(rec)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	ok, err := r.client.SetNX(ctx, keyPrefix+rec.Key, payload, ttl).Result()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("create idempotency record: %w", err)
	}
	if !ok {
		existing, getErr := r.Get(rec.Key)
		if getErr != nil {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
		}
		return existing, existing.Conflict(rec.RequestHash)
	}

	return rec, nil
}

func (r *idempotencyRepository) Get(key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	raw, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}
	return decode(raw)
}

func (r *idempotencyRepository) MarkDone(key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *idempotencyRepository) MarkFailed(key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// DeleteExpired ничего не делает: Redis удаляет просроченные ключи сам.
func (r *idempotencyRepository) DeleteExpired(time.Time, int) (int, error) {
	return 0, nil
}

// markStatus обновляет запись под WATCH, сохраняя оставшийся TTL ключа.
func (r *idempotencyRepository) markStatus(key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	redisKey := keyPrefix + key
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrIdempotencyKeyNotFound
		}
		if err != nil {
			return err
		}

		rec, err := decode(raw)
		if err != nil {
			return err
		}
		rec.Status = status
		rec.ResponseBody = append([]byte(nil), responseBody...)
		rec.HTTPStatus = httpStatus
		rec.UpdatedAt = time.Now().UTC()

		payload, err := encode(rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, payload, redis.KeepTTL)
			return nil
		})
		return err
	}, redisKey)
	if errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("mark idempotency key status: %w", err)
	}
	return nil
}

func encode(rec domain.IdempotencyRecord) ([]byte, error) {
	payload, err := json.Marshal(record{
		Key:          rec.Key,
		RequestHash:  rec.RequestHash,
		ResponseBody: rec.ResponseBody,
		HTTPStatus:   rec.HTTPStatus,
		Status:       string(rec.Status),
		TTLAt:        rec.TTLAt,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode idempotency record: %w", err)
	}
	return payload, nil
}

func decode(raw []byte) (domain.IdempotencyRecord, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("decode idempotency record: %w", err)
	}
	status, err := domain.ParseIdempotencyStatus(rec.Status)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("key %s: %w", rec.Key, err)
	}
	return domain.IdempotencyRecord{
		Key:          rec.Key,
		RequestHash:  rec.RequestHash,
		ResponseBody: rec.ResponseBody,
		HTTPStatus:   rec.HTTPStatus,
		Status:       status,
		TTLAt:        rec.TTLAt.UTC(),
		CreatedAt:    rec.CreatedAt.UTC(),
		UpdatedAt:    rec.UpdatedAt.UTC(),
	}, nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
