package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
	"github.com/vladislavdragonenkov/lessonbook/internal/metrics"
	"github.com/vladislavdragonenkov/lessonbook/internal/service/booking"
	"github.com/vladislavdragonenkov/lessonbook/internal/service/catalog"
	"github.com/vladislavdragonenkov/lessonbook/internal/storage/memory"
)

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

type routerSuite struct {
	suite.Suite

	store     *memory.Store
	lessons   []domain.Lesson
	publicDir string
	router    *gin.Engine
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(routerSuite))
}

func (s *routerSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
}

func (s *routerSuite) SetupTest() {
	s.store = memory.NewStore()
	repo := memory.NewLessonRepository(s.store)
	_, err := repo.ReplaceAll(context.Background(), []domain.Lesson{
		{Subject: "Math", Location: "London", Price: 100, Spaces: 4},
		{Subject: "Art", Location: "Manchester", Price: 75, Spaces: 2},
	})
	s.Require().NoError(err)
	s.lessons, err = repo.List(context.Background())
	s.Require().NoError(err)

	s.publicDir = s.T().TempDir()
	s.Require().NoError(os.MkdirAll(filepath.Join(s.publicDir, "images"), 0o755))
	s.Require().NoError(os.WriteFile(filepath.Join(s.publicDir, "images", "math.png"), []byte("png"), 0o644))

	s.router = s.newRouter(Config{
		CORSOrigins: []string{"https://app.example.com"},
		PublicDir:   s.publicDir,
	})
}

func (s *routerSuite) newRouter(cfg Config) *gin.Engine {
	logger := quietLogger()
	reg := prometheus.NewRegistry()
	router, err := NewRouter(cfg, Deps{
		Catalog: catalog.NewService(memory.NewLessonRepository(s.store), logger),
		Booker: booking.NewService(memory.NewUnitOfWork(s.store),
			booking.WithLogger(logger),
			booking.WithMetrics(metrics.NewBookingMetrics(reg)),
		),
		Idempotency: memory.NewIdempotencyRepository(),
		Metrics:     metrics.NewHTTPMetrics(reg),
		Logger:      logger,
	})
	s.Require().NoError(err)
	return router
}

func (s *routerSuite) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *routerSuite) errorOf(w *httptest.ResponseRecorder) string {
	var body errorResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Error
}

func (s *routerSuite) currentSpaces() []int {
	lessons, err := memory.NewLessonRepository(s.store).List(context.Background())
	s.Require().NoError(err)
	out := make([]int, len(lessons))
	for i, l := range lessons {
		out[i] = l.Spaces
	}
	return out
}

func (s *routerSuite) TestListLessons() {
	w := s.do(http.MethodGet, "/lessons", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var raw []map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &raw))
	s.Require().Len(raw, 2)
	s.Require().Equal(s.lessons[0].ID, raw[0]["id"])
	s.Require().NotContains(raw[0], "_id")
	s.Require().Equal("nosniff", w.Header().Get("X-Content-Type-Options"))
}

func (s *routerSuite) TestSearchRoutes() {
	for _, path := range []string{"/lessons/search?q=lon", "/search?q=LON"} {
		w := s.do(http.MethodGet, path, "", nil)
		s.Require().Equal(http.StatusOK, w.Code)

		var lessons []domain.Lesson
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &lessons))
		s.Require().Len(lessons, 1, path)
		s.Require().Equal("Math", lessons[0].Subject)
	}

	w := s.do(http.MethodGet, "/search", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Require().JSONEq(`[]`, w.Body.String())
}

func (s *routerSuite) TestUpdateLesson() {
	w := s.do(http.MethodPut, "/lessons/"+s.lessons[1].ID, `{"spaces":7,"unknown":"x"}`, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var lesson domain.Lesson
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &lesson))
	s.Require().Equal(7, lesson.Spaces)
	s.Require().Equal("Art", lesson.Subject)
}

func (s *routerSuite) TestUpdateLessonErrors() {
	cases := []struct {
		path, body string
		code       int
		msg        string
	}{
		{"/lessons/not-an-id", `{"spaces":1}`, http.StatusBadRequest, "Invalid lesson id"},
		{"/lessons/" + s.lessons[0].ID, `{"unknown":1}`, http.StatusBadRequest, "No valid fields provided for update"},
		{"/lessons/" + s.lessons[0].ID, `{"spaces":`, http.StatusBadRequest, "Malformed JSON body"},
		{"/lessons/" + domain.NewID(), `{"spaces":1}`, http.StatusNotFound, "Lesson not found"},
	}
	for _, tc := range cases {
		w := s.do(http.MethodPut, tc.path, tc.body, nil)
		s.Require().Equal(tc.code, w.Code, tc.path)
		s.Require().Equal(tc.msg, s.errorOf(w))
	}
}

func (s *routerSuite) TestPlaceOrderShapeA() {
	body := `{"name":"Al","phone":"123","lessonIDs":["` + s.lessons[0].ID + `"],"spaces":[2]}`
	w := s.do(http.MethodPost, "/orders", body, nil)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var order domain.Order
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &order))
	s.Require().True(domain.ValidID(order.ID))
	s.Require().Equal([]int{2}, order.Spaces)
	s.Require().Equal([]int{2, 2}, s.currentSpaces())
}

func (s *routerSuite) TestPlaceOrderShapeB() {
	body := `{"name":"Al","phone":"123","lessons":[{"_id":"` + s.lessons[1].ID + `","quantity":2}]}`
	w := s.do(http.MethodPost, "/orders", body, nil)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	s.Require().Equal([]int{4, 0}, s.currentSpaces())
}

func (s *routerSuite) TestPlaceOrderErrors() {
	cases := []struct {
		name, body string
		code       int
		msg        string
	}{
		{"missing phone", `{"name":"Al","lessonIDs":["` + s.lessons[0].ID + `"]}`, http.StatusBadRequest, "Missing name or phone"},
		{"no items", `{"name":"Al","phone":"1"}`, http.StatusBadRequest, "lessonIDs or lessons array is required"},
		{"bad id", `{"name":"Al","phone":"1","lessonIDs":["nope"]}`, http.StatusBadRequest, "Invalid ObjectId in lessonIDs/lessons"},
		{"unknown lesson", `{"name":"Al","phone":"1","lessonIDs":["` + domain.NewID() + `"]}`, http.StatusNotFound, "One or more lessons not found"},
		{"capacity", `{"name":"Al","phone":"1","lessonIDs":["` + s.lessons[1].ID + `"],"spaces":3}`, http.StatusConflict, "Not enough spaces for lesson " + s.lessons[1].ID},
	}
	for _, tc := range cases {
		w := s.do(http.MethodPost, "/orders", tc.body, nil)
		s.Require().Equal(tc.code, w.Code, tc.name)
		s.Require().Equal(tc.msg, s.errorOf(w), tc.name)
	}
	s.Require().Equal([]int{4, 2}, s.currentSpaces())
}

func (s *routerSuite) TestPlaceOrderIdempotentReplay() {
	body := `{"name":"Al","phone":"1","lessonIDs":["` + s.lessons[0].ID + `"],"spaces":1}`
	headers := map[string]string{IdempotencyKeyHeader: "order-key-1"}

	first := s.do(http.MethodPost, "/orders", body, headers)
	s.Require().Equal(http.StatusCreated, first.Code)

	second := s.do(http.MethodPost, "/orders", body, headers)
	s.Require().Equal(http.StatusCreated, second.Code)
	s.Require().Equal("true", second.Header().Get(ReplayedHeader))
	s.Require().JSONEq(first.Body.String(), second.Body.String())
	s.Require().Equal([]int{3, 2}, s.currentSpaces())

	other := `{"name":"Al","phone":"1","lessonIDs":["` + s.lessons[0].ID + `"],"spaces":2}`
	conflict := s.do(http.MethodPost, "/orders", other, headers)
	s.Require().Equal(http.StatusConflict, conflict.Code)
	s.Require().Equal([]int{3, 2}, s.currentSpaces())
}

func (s *routerSuite) TestBodyLimit() {
	router := s.newRouter(Config{BodyLimit: 64, PublicDir: s.publicDir})
	body := `{"name":"` + strings.Repeat("a", 100) + `","phone":"1","lessonIDs":[]}`

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	s.Require().Equal(http.StatusRequestEntityTooLarge, w.Code)
}

func (s *routerSuite) TestCORS() {
	allowed := s.do(http.MethodGet, "/lessons", "", map[string]string{"Origin": "https://app.example.com"})
	s.Require().Equal(http.StatusOK, allowed.Code)
	s.Require().Equal("https://app.example.com", allowed.Header().Get("Access-Control-Allow-Origin"))
	s.Require().Equal("true", allowed.Header().Get("Access-Control-Allow-Credentials"))

	denied := s.do(http.MethodGet, "/lessons", "", map[string]string{"Origin": "https://evil.example.com"})
	s.Require().Equal(http.StatusForbidden, denied.Code)

	preflight := s.do(http.MethodOptions, "/orders", "", map[string]string{
		"Origin":                         "https://app.example.com",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "content-type,idempotency-key",
	})
	s.Require().Equal(http.StatusNoContent, preflight.Code)
	s.Require().Equal("content-type,idempotency-key", preflight.Header().Get("Access-Control-Allow-Headers"))
}

func (s *routerSuite) TestRateLimit() {
	router := s.newRouter(Config{RateLimitMax: 2, RateLimitWindow: time.Hour, PublicDir: s.publicDir})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	s.Require().Equal([]int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	s.Require().Equal(http.StatusOK, w.Code)
}

func (s *routerSuite) TestImagesAndStatic() {
	w := s.do(http.MethodGet, "/images/math.png", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Require().Equal("*", w.Header().Get("Access-Control-Allow-Origin"))
	s.Require().Equal("png", w.Body.String())

	missing := s.do(http.MethodGet, "/images/none.png", "", nil)
	s.Require().Equal(http.StatusNotFound, missing.Code)
	s.Require().Equal("Image not found", s.errorOf(missing))

	static := s.do(http.MethodGet, "/public/images/math.png", "", nil)
	s.Require().Equal(http.StatusOK, static.Code)
}

func (s *routerSuite) TestHealthAndUnknownRoute() {
	w := s.do(http.MethodGet, "/health", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Require().JSONEq(`{"status":"ok"}`, w.Body.String())

	missing := s.do(http.MethodGet, "/nope", "", nil)
	s.Require().Equal(http.StatusNotFound, missing.Code)
	s.Require().Equal("Not found", s.errorOf(missing))
}

func (s *routerSuite) TestConcurrentOrdersNeverOversell() {
	body := `{"name":"Al","phone":"1","lessonIDs":["` + s.lessons[0].ID + `"],"spaces":1}`

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)
			if w.Code == http.StatusCreated {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Require().Equal(4, created)
	s.Require().Equal(0, s.currentSpaces()[0])
}

type failingCatalog struct{}

func (failingCatalog) List(context.Context) ([]domain.Lesson, error) {
	return nil, errors.New("dial tcp 10.0.0.5:27017: connection refused")
}

func (failingCatalog) Search(context.Context, string) ([]domain.Lesson, error) {
	panic("search exploded")
}

func (failingCatalog) Update(context.Context, string, domain.LessonPatch) (domain.Lesson, error) {
	return domain.Lesson{}, nil
}

func TestRouter_InternalErrorsAreHidden(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, err := NewRouter(Config{}, Deps{Catalog: failingCatalog{}, Logger: quietLogger()})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/lessons", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.JSONEq(t, `{"error":"Internal Server Error"}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/search?q=x", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.JSONEq(t, `{"error":"Internal Server Error"}`, w.Body.String())
}

type panickingBooker struct{ calls int }

func (b *panickingBooker) PlaceOrder(context.Context, booking.OrderRequest) (domain.Order, error) {
	b.calls++
	panic("booking exploded")
}

func TestRouter_PanicReleasesIdempotencyKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	booker := &panickingBooker{}
	router, err := NewRouter(Config{}, Deps{
		Booker:      booker,
		Idempotency: memory.NewIdempotencyRepository(),
		Logger:      quietLogger(),
	})
	require.NoError(t, err)

	body := `{"name":"Al","phone":"1","lessonIDs":["` + domain.NewID() + `"]}`
	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(IdempotencyKeyHeader, "k1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	first := post()
	require.Equal(t, http.StatusInternalServerError, first.Code)

	retry := post()
	require.Equal(t, http.StatusInternalServerError, retry.Code)
	require.JSONEq(t, `{"error":"Internal Server Error"}`, retry.Body.String())
	require.Equal(t, "true", retry.Header().Get(ReplayedHeader))
	require.Equal(t, 1, booker.calls)
}

// lostRaceTx: условное списание не находит документ, как при гонке с другим заказом.
type lostRaceTx struct {
	lessons  []domain.Lesson
	inserted bool
}

func (tx *lostRaceTx) FindLessons(context.Context, []string) ([]domain.Lesson, error) {
	return tx.lessons, nil
}

func (tx *lostRaceTx) DecrementSpaces(context.Context, string, int) (bool, error) {
	return false, nil
}

func (tx *lostRaceTx) InsertOrder(context.Context, domain.Order) error {
	tx.inserted = true
	return nil
}

func (tx *lostRaceTx) EnqueueOutbox(context.Context, domain.OutboxMessage) error {
	return nil
}

type lostRaceUnitOfWork struct{ tx *lostRaceTx }

func (u lostRaceUnitOfWork) WithinBooking(ctx context.Context, fn func(context.Context, domain.BookingTx) error) error {
	return fn(ctx, u.tx)
}

func TestRouter_LostDecrementIsConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)

	id := domain.NewID()
	tx := &lostRaceTx{lessons: []domain.Lesson{{ID: id, Spaces: 3}}}
	router, err := NewRouter(Config{}, Deps{
		Booker: booking.NewService(lostRaceUnitOfWork{tx: tx}, booking.WithLogger(quietLogger())),
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	body := `{"name":"Al","phone":"1","lessonIDs":["` + id + `"]}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
	require.JSONEq(t, `{"error":"Concurrent update detected; please try again"}`, w.Body.String())
	require.False(t, tx.inserted)
}
