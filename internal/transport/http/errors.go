package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

const msgInternal = "Internal Server Error"

// errorResponse - единый формат ошибок API.
type errorResponse struct {
	Error string `json:"error"`
}

// statusFor сопоставляет ошибку сервиса с HTTP-статусом.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrLessonNotFound):
		return http.StatusNotFound
	case domain.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorBody возвращает статус и тело ответа. Сообщения внутренних ошибок
// клиенту не отдаются.
func errorBody(err error) (int, errorResponse) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		return code, errorResponse{Error: msgInternal}
	}

	var classified *domain.ClassifiedError
	if errors.As(err, &classified) {
		return code, errorResponse{Error: classified.Msg}
	}
	return code, errorResponse{Error: err.Error()}
}

func writeError(c *gin.Context, logger *log.Entry, err error) {
	code, body := errorBody(err)
	if code == http.StatusInternalServerError {
		logger.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}).Error("request failed")
	}
	c.JSON(code, body)
}

func abortWithError(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, errorResponse{Error: msg})
}
