package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

// Service отдаёт список уроков, ищет по ним и применяет административные правки.
type Service struct {
	lessons domain.LessonRepository
	logger  *log.Entry
}

// NewService создаёт сервис каталога. logger может быть nil.
func NewService(lessons domain.LessonRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{lessons: lessons, logger: logger}
}

// List возвращает все уроки.
func (s *Service) List(ctx context.Context) ([]domain.Lesson, error) {
	lessons, err := s.lessons.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return nonNil(lessons), nil
}

// Search ищет подстроку в subject/location без учёта регистра.
// Если запрос - конечное число, дополнительно совпадают price или spaces.
func (s *Service) Search(ctx context.Context, q string) ([]domain.Lesson, error) {
	query, ok := ParseQuery(q)
	if !ok {
		return []domain.Lesson{}, nil
	}

	lessons, err := s.lessons.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search lessons: %w", err)
	}
	return nonNil(lessons), nil
}

// Update применяет распознанные поля патча к уроку id.
func (s *Service) Update(ctx context.Context, id string, patch domain.LessonPatch) (domain.Lesson, error) {
	if !domain.ValidID(id) {
		return domain.Lesson{}, domain.Errorf(domain.ErrValidation, "Invalid lesson id")
	}
	if err := patch.Validate(); err != nil {
		return domain.Lesson{}, err
	}

	lesson, err := s.lessons.Update(ctx, id, patch)
	if errors.Is(err, domain.ErrLessonNotFound) {
		return domain.Lesson{}, domain.Errorf(domain.ErrLessonNotFound, "Lesson not found")
	}
	if err != nil {
		return domain.Lesson{}, fmt.Errorf("update lesson: %w", err)
	}

	s.logger.WithField("lesson_id", id).Info("lesson updated")
	return lesson, nil
}

// ParseQuery разбирает строку поиска. ok=false для пустого запроса.
func ParseQuery(q string) (domain.SearchQuery, bool) {
	text := strings.TrimSpace(q)
	if text == "" {
		return domain.SearchQuery{}, false
	}

	query := domain.SearchQuery{Text: text}
	if n, err := strconv.ParseFloat(text, 64); err == nil && !math.IsInf(n, 0) && !math.IsNaN(n) {
		query.Number = &n
	}
	return query, true
}

func nonNil(lessons []domain.Lesson) []domain.Lesson {
	if lessons == nil {
		return []domain.Lesson{}
	}
	return lessons
}
