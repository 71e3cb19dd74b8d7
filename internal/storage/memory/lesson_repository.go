package memory

import (
	"context"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

type lessonRepositoryInMemory struct {
	store *Store
}

// NewLessonRepository возвращает репозиторий уроков поверх общего Store.
func NewLessonRepository(store *Store) domain.LessonRepository {
	return &lessonRepositoryInMemory{store: store}
}

// List возвращает уроки в порядке добавления.
func (r *lessonRepositoryInMemory) List(ctx context.Context) ([]domain.Lesson, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.Lesson, 0, len(r.store.order))
	for _, id := range r.store.order {
		result = append(result, r.store.lessons[id])
	}
	return result, nil
}

func (r *lessonRepositoryInMemory) Search(ctx context.Context, query domain.SearchQuery) ([]domain.Lesson, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]domain.Lesson, 0, len(all))
	for _, lesson := range all {
		if query.Matches(lesson) {
			result = append(result, lesson)
		}
	}
	return result, nil
}

func (r *lessonRepositoryInMemory) Update(ctx context.Context, id string, patch domain.LessonPatch) (domain.Lesson, error) {
	if err := ctx.Err(); err != nil {
		return domain.Lesson{}, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, ok := r.store.lessonLocked(id)
	if !ok {
		return domain.Lesson{}, domain.ErrLessonNotFound
	}

	updated := patch.Apply(current)
	r.store.putLessonLocked(updated)
	return updated, nil
}

// ReplaceAll заменяет каталог целиком. Урокам без валидного id выдаётся новый.
func (r *lessonRepositoryInMemory) ReplaceAll(ctx context.Context, lessons []domain.Lesson) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.lessons = make(map[string]domain.Lesson, len(lessons))
	r.store.order = r.store.order[:0]
	for _, lesson := range lessons {
		if !domain.ValidID(lesson.ID) {
			lesson.ID = domain.NewID()
		}
		r.store.putLessonLocked(lesson)
	}
	return len(lessons), nil
}

var _ domain.LessonRepository = (*lessonRepositoryInMemory)(nil)
