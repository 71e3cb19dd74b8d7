package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

const lessonColumns = `id, subject, location, price, spaces, image_filename, icon_class`

type lessonRepository struct {
	db *sql.DB
}

// NewLessonRepository создаёт PostgreSQL-реализацию LessonRepository.
func NewLessonRepository(store *Store) domain.LessonRepository {
	return &lessonRepository{db: store.DB()}
}

func (r *lessonRepository) List(ctx context.Context) ([]domain.Lesson, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+lessonColumns+` FROM lessons ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return scanLessons(rows)
}

// Search ищет подстроку через strpos по lower(), поэтому спецсимволы LIKE не интерпретируются.
func (r *lessonRepository) Search(ctx context.Context, query domain.SearchQuery) ([]domain.Lesson, error) {
	if query.Text == "" && query.Number == nil {
		return []domain.Lesson{}, nil
	}

	var number sql.NullFloat64
	if query.Number != nil {
		number = sql.NullFloat64{Float64: *query.Number, Valid: true}
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+lessonColumns+`
		FROM lessons
		WHERE ($1 <> '' AND (strpos(lower(subject), lower($1)) > 0 OR strpos(lower(location), lower($1)) > 0))
		   OR ($2::double precision IS NOT NULL AND (price = $2 OR spaces = $2))
		ORDER BY position
	`, query.Text, number)
	if err != nil {
		return nil, fmt.Errorf("search lessons: %w", err)
	}
	return scanLessons(rows)
}

func (r *lessonRepository) Update(ctx context.Context, id string, patch domain.LessonPatch) (domain.Lesson, error) {
	sets, args := patchAssignments(patch)
	if len(sets) == 0 {
		return domain.Lesson{}, domain.Errorf(domain.ErrValidation, "No valid fields provided for update")
	}
	args = append(args, id)

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(opCtx, fmt.Sprintf(`
		UPDATE lessons SET %s
		WHERE id = $%d
		RETURNING `+lessonColumns, strings.Join(sets, ", "), len(args)), args...)

	lesson, err := scanLesson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Lesson{}, domain.ErrLessonNotFound
	}
	if err != nil {
		return domain.Lesson{}, fmt.Errorf("update lesson: %w", err)
	}
	return lesson, nil
}

func patchAssignments(p domain.LessonPatch) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if p.Subject != nil {
		add("subject", *p.Subject)
	}
	if p.Location != nil {
		add("location", *p.Location)
	}
	if p.Price != nil {
		add("price", *p.Price)
	}
	if p.Spaces != nil {
		add("spaces", int(*p.Spaces))
	}
	if p.ImageFilename != nil {
		add("image_filename", *p.ImageFilename)
	}
	if p.IconClass != nil {
		add("icon_class", *p.IconClass)
	}
	return sets, args
}

func (r *lessonRepository) ReplaceAll(ctx context.Context, lessons []domain.Lesson) (n int, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM lessons`); err != nil {
		return 0, fmt.Errorf("clear lessons: %w", err)
	}
	for _, lesson := range lessons {
		if !domain.ValidID(lesson.ID) {
			lesson.ID = domain.NewID()
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO lessons (`+lessonColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, lesson.ID, lesson.Subject, lesson.Location, lesson.Price, lesson.Spaces, lesson.ImageFilename, lesson.IconClass); err != nil {
			return 0, fmt.Errorf("insert lesson: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed lessons: %w", err)
	}
	return len(lessons), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLesson(row rowScanner) (domain.Lesson, error) {
	var l domain.Lesson
	err := row.Scan(&l.ID, &l.Subject, &l.Location, &l.Price, &l.Spaces, &l.ImageFilename, &l.IconClass)
	return l, err
}

func scanLessons(rows *sql.Rows) ([]domain.Lesson, error) {
	defer rows.Close()

	result := make([]domain.Lesson, 0)
	for rows.Next() {
		lesson, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		result = append(result, lesson)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lessons: %w", err)
	}
	return result, nil
}

var _ domain.LessonRepository = (*lessonRepository)(nil)
