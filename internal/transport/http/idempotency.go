package http

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

const (
	// IdempotencyKeyHeader - заголовок, делающий POST /orders безопасным для повтора.
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader выставляется в ответах, восстановленных из кэша.
	ReplayedHeader = "Idempotent-Replayed"
)

// idempotencyGuard сохраняет ответ на запрос с Idempotency-Key и отдаёт
// его повторно на тот же ключ с тем же телом.
type idempotencyGuard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	now    func() time.Time
	logger *log.Entry
}

// Do выполняет run или воспроизводит сохранённый ответ.
// Без заголовка или без репозитория run выполняется как обычно.
func (g *idempotencyGuard) Do(c *gin.Context, body []byte, run func() (int, any)) {
	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if g == nil || g.repo == nil || key == "" {
		code, resp := run()
		c.JSON(code, resp)
		return
	}

	logger := g.logger.WithField("idempotency_key", key)
	hash := requestHash(c.Request.Method, c.FullPath(), body)

	record, err := g.repo.CreateProcessing(key, hash, g.now().Add(g.ttl))
	if err != nil {
		g.replay(c, logger, record, err)
		return
	}

	// Паника в run не должна оставить ключ в processing до истечения TTL.
	finished := false
	defer func() {
		if finished {
			return
		}
		data, _ := json.Marshal(errorResponse{Error: msgInternal})
		if err := g.repo.MarkFailed(key, data, http.StatusInternalServerError); err != nil {
			logger.WithError(err).Warn("failed to release idempotency key")
		}
	}()

	code, resp := run()
	finished = true
	data, err := json.Marshal(resp)
	if err != nil {
		logger.WithError(err).Error("failed to encode response")
		code = http.StatusInternalServerError
		data, _ = json.Marshal(errorResponse{Error: msgInternal})
	}

	mark := g.repo.MarkDone
	if code >= http.StatusInternalServerError {
		mark = g.repo.MarkFailed
	}
	if err := mark(key, data, code); err != nil {
		logger.WithError(err).Warn("failed to store idempotent response")
	}

	c.Data(code, "application/json; charset=utf-8", data)
}

func (g *idempotencyGuard) replay(c *gin.Context, logger *log.Entry, record domain.IdempotencyRecord, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		abortWithError(c, http.StatusConflict, "Idempotency-Key is already used with a different request")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch {
		case record.Replayable():
			c.Header(ReplayedHeader, "true")
			c.Data(record.HTTPStatus, "application/json; charset=utf-8", record.ResponseBody)
		case record.Status == domain.IdempotencyStatusProcessing:
			abortWithError(c, http.StatusConflict, "A request with this Idempotency-Key is still being processed")
		default:
			logger.WithField("status", record.Status).Warn("idempotency record has no stored response")
			abortWithError(c, http.StatusInternalServerError, msgInternal)
		}
	case errors.Is(createErr, domain.ErrIdempotencyKeyRequired), errors.Is(createErr, domain.ErrIdempotencyRequestHashRequired):
		abortWithError(c, http.StatusBadRequest, "Invalid Idempotency-Key")
	default:
		logger.WithError(createErr).Error("failed to create idempotency record")
		abortWithError(c, http.StatusInternalServerError, msgInternal)
	}
}

func requestHash(method, route string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{' '})
	h.Write([]byte(route))
	h.Write([]byte{':'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
