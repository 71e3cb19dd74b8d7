package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
	"github.com/vladislavdragonenkov/lessonbook/internal/service/booking"
)

// Catalog - операции с уроками, нужные HTTP-слою.
type Catalog interface {
	List(ctx context.Context) ([]domain.Lesson, error)
	Search(ctx context.Context, q string) ([]domain.Lesson, error)
	Update(ctx context.Context, id string, patch domain.LessonPatch) (domain.Lesson, error)
}

// Booker размещает заказы.
type Booker interface {
	PlaceOrder(ctx context.Context, req booking.OrderRequest) (domain.Order, error)
}

// Handler содержит обработчики API.
type Handler struct {
	catalog   Catalog
	booker    Booker
	replay    *idempotencyGuard
	publicDir string
	logger    *log.Entry
}

func (h *Handler) listLessons(c *gin.Context) {
	lessons, err := h.catalog.List(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, lessons)
}

func (h *Handler) searchLessons(c *gin.Context) {
	lessons, err := h.catalog.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, lessons)
}

func (h *Handler) updateLesson(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}

	var patch domain.LessonPatch
	if len(body) > 0 {
		if err := json.Unmarshal(body, &patch); err != nil {
			abortWithError(c, http.StatusBadRequest, "Malformed JSON body")
			return
		}
	}

	lesson, err := h.catalog.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, lesson)
}

func (h *Handler) placeOrder(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}

	h.replay.Do(c, body, func() (int, any) {
		req, err := booking.DecodeOrderRequest(body)
		if err != nil {
			return errorBody(err)
		}

		order, err := h.booker.PlaceOrder(c.Request.Context(), req)
		if err != nil {
			code, resp := errorBody(err)
			if code == http.StatusInternalServerError {
				h.logger.WithError(err).Error("place order failed")
			}
			return code, resp
		}
		return http.StatusCreated, order
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// image отдаёт файл из PUBLIC_DIR/images или JSON 404.
func (h *Handler) image(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Cross-Origin-Resource-Policy", "cross-origin")

	name := filepath.Base(c.Param("filename"))
	path := filepath.Join(h.publicDir, "images", name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		c.JSON(http.StatusNotFound, errorResponse{Error: "Image not found"})
		return
	}
	c.File(path)
}

func (h *Handler) notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, errorResponse{Error: "Not found"})
}

func (h *Handler) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err == nil {
		return body, true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		abortWithError(c, http.StatusRequestEntityTooLarge, "Request body too large")
		return nil, false
	}
	abortWithError(c, http.StatusBadRequest, "Failed to read request body")
	return nil, false
}
