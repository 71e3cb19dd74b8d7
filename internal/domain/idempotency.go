package domain

import (
	"fmt"
	"strings"
	"time"
)

// IdempotencyTTL - срок жизни ключа Idempotency-Key, если вызывающий не задал свой.
const IdempotencyTTL = 24 * time.Hour

// IdempotencyStatus - стадия обработки POST /orders с ключом идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing: бронирование по ключу ещё выполняется.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone: ответ (201 или 4xx) сохранён и отдаётся повторно.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed: запрос завершился 5xx или паникой; ответ тоже воспроизводится.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// ParseIdempotencyStatus читает статус из хранилища.
func ParseIdempotencyStatus(raw string) (IdempotencyStatus, error) {
	status := IdempotencyStatus(raw)
	switch status {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return status, nil
	default:
		return "", fmt.Errorf("invalid idempotency status %q", raw)
	}
}

// IdempotencyRecord - запись о запросе бронирования с ключом: хеш тела
// и сохранённый ответ для повтора.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewIdempotencyRecord создаёт запись в статусе processing.
// Пустой ttlAt заменяется на now + IdempotencyTTL.
func NewIdempotencyRecord(key, requestHash string, ttlAt, now time.Time) (IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)
	if key == "" {
		return IdempotencyRecord{}, ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return IdempotencyRecord{}, ErrIdempotencyRequestHashRequired
	}
	if ttlAt.IsZero() {
		ttlAt = now.Add(IdempotencyTTL)
	}
	return IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Expired сообщает, что ключ можно использовать заново.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.After(now)
}

// Conflict - ошибка для повторного CreateProcessing по уже занятому ключу.
func (r IdempotencyRecord) Conflict(requestHash string) error {
	if r.RequestHash != strings.TrimSpace(requestHash) {
		return ErrIdempotencyHashMismatch
	}
	return ErrIdempotencyKeyAlreadyExists
}

// Replayable сообщает, что у записи есть завершённый ответ.
func (r IdempotencyRecord) Replayable() bool {
	if r.Status != IdempotencyStatusDone && r.Status != IdempotencyStatusFailed {
		return false
	}
	return r.HTTPStatus != 0 && len(r.ResponseBody) > 0
}
