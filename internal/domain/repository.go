package domain

import "context"

// LessonRepository описывает требования к хранилищу уроков.
type LessonRepository interface {
	// List возвращает все уроки.
	List(ctx context.Context) ([]Lesson, error)
	// Search возвращает уроки, подходящие под запрос.
	Search(ctx context.Context, query SearchQuery) ([]Lesson, error)
	// Update применяет переданные поля и возвращает урок после изменения
	// или ErrLessonNotFound, если урока нет.
	Update(ctx context.Context, id string, patch LessonPatch) (Lesson, error)
	// ReplaceAll удаляет все уроки и вставляет переданные (используется при сидировании).
	ReplaceAll(ctx context.Context, lessons []Lesson) (int, error)
}

// OrderRepository даёт доступ на чтение к созданным заказам.
type OrderRepository interface {
	// List возвращает все заказы в порядке создания.
	List(ctx context.Context) ([]Order, error)
}

// BookingTx - операции, доступные внутри транзакции бронирования.
// Все вызовы выполняются в одной транзакции хранилища.
type BookingTx interface {
	// FindLessons читает уроки по идентификаторам одним запросом.
	// Отсутствующие идентификаторы не попадают в результат, повторные дают один урок.
	FindLessons(ctx context.Context, ids []string) ([]Lesson, error)
	// DecrementSpaces уменьшает spaces на qty, только если spaces >= qty в момент записи.
	// Возвращает false, если условие не выполнилось и ни один документ не изменён.
	DecrementSpaces(ctx context.Context, lessonID string, qty int) (bool, error)
	// InsertOrder сохраняет заказ.
	InsertOrder(ctx context.Context, order Order) error
	// EnqueueOutbox сохраняет событие для последующей публикации.
	EnqueueOutbox(ctx context.Context, msg OutboxMessage) error
}

// UnitOfWork задаёт транзакционную границу бронирования.
type UnitOfWork interface {
	// WithinBooking выполняет fn в транзакции. Если fn вернула ошибку,
	// все изменения откатываются и ошибка возвращается вызывающему без изменений.
	WithinBooking(ctx context.Context, fn func(ctx context.Context, tx BookingTx) error) error
}

// Pinger проверяет доступность хранилища (используется health-проверками).
type Pinger interface {
	Ping(ctx context.Context) error
}
