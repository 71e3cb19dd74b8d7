package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration - не заданы обязательные параметры подключения или запуска.
	ErrConfiguration = errors.New("configuration error")
	// ErrConnection - хранилище недоступно при старте.
	ErrConnection = errors.New("storage connection error")
	// ErrNotInitialized - обращение к хранилищу до вызова Connect (ошибка программиста).
	ErrNotInitialized = errors.New("storage is not initialized")

	// ErrValidation - запрос клиента некорректен и должен быть исправлен.
	ErrValidation = errors.New("validation error")
	// ErrLessonNotFound - хотя бы один урок с указанным идентификатором не существует.
	ErrLessonNotFound = errors.New("lesson not found")
	// ErrCapacity - у урока недостаточно свободных мест для запрошенного количества.
	ErrCapacity = errors.New("not enough spaces")
	// ErrConcurrency - условное списание мест не сработало: места заняли параллельно.
	// Клиент может повторить запрос, перечитав актуальную вместимость.
	ErrConcurrency = errors.New("concurrent update detected; please try again")

	// Ошибка отсутствующего имени клиента.
	ErrNameRequired = errors.New("name is required")
	// Ошибка отсутствующего телефона клиента.
	ErrPhoneRequired = errors.New("phone is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one lesson")
	// Ошибка несовпадения длин lessonIDs и spaces.
	ErrItemsLengthMismatch = errors.New("lessonIDs and spaces must have the same length")
	// Ошибка при некорректном количестве мест (<= 0).
	ErrItemQtyInvalid = errors.New("spaces values must be positive numbers")

	// ErrIdempotencyKeyRequired возвращается, если ключ идемпотентности пустой.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired возвращается, если не передан хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists - ключ уже использовался.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch - ключ уже использовался с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound - запись по ключу не найдена.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")

	// ErrOutboxPublish - ошибка при публикации или пометке сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ClassifiedError - ошибка с сообщением для клиента, относящаяся к одной из
// sentinel-категорий выше. errors.Is(err, Kind) возвращает true.
type ClassifiedError struct {
	Kind error
	Msg  string
}

func (e *ClassifiedError) Error() string { return e.Msg }

func (e *ClassifiedError) Unwrap() error { return e.Kind }

// Errorf создаёт ClassifiedError категории kind с форматированным сообщением.
func Errorf(kind error, format string, args ...any) error {
	return &ClassifiedError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// IsConflict сообщает, относится ли ошибка к конфликтам вместимости,
// после которых клиент может повторить бронирование.
func IsConflict(err error) bool {
	return errors.Is(err, ErrCapacity) || errors.Is(err, ErrConcurrency)
}
