package booking

import (
	"bytes"
	"encoding/json"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

// OrderRequest - запрос на бронирование в одной из двух допустимых форм.
type OrderRequest struct {
	Name  string
	Phone string
	// Shape равен nil, если в запросе нет ни lessonIDs, ни lessons.
	Shape Shape
}

// Shape - закрытый вариант формы запроса: IDListShape или LessonListShape.
type Shape interface {
	isShape()
}

// IDListShape - форма A: {lessonIDs: [...], spaces: n | [...]}.
type IDListShape struct {
	LessonIDs []json.RawMessage
	// Spaces - число, числовая строка, массив или отсутствует.
	Spaces json.RawMessage
}

// LessonListShape - форма B: {lessons: [{id | _id, quantity?}, ...]}.
type LessonListShape struct {
	Lessons []LessonRef
}

// LessonRef - элемент формы B.
type LessonRef struct {
	ID       json.RawMessage `json:"id"`
	AltID    json.RawMessage `json:"_id"`
	Quantity json.RawMessage `json:"quantity"`
}

func (IDListShape) isShape()     {}
func (LessonListShape) isShape() {}

type wireOrderRequest struct {
	Name      json.RawMessage `json:"name"`
	Phone     json.RawMessage `json:"phone"`
	LessonIDs json.RawMessage `json:"lessonIDs"`
	Spaces    json.RawMessage `json:"spaces"`
	Lessons   json.RawMessage `json:"lessons"`
}

// DecodeOrderRequest разбирает тело POST /orders и выбирает форму:
// A, если lessonIDs - массив; иначе B, если lessons - массив.
func DecodeOrderRequest(body []byte) (OrderRequest, error) {
	if !isJSON(body, '{') {
		return OrderRequest{}, domain.Errorf(domain.ErrValidation, "Request body must be a JSON object")
	}

	var wire wireOrderRequest
	if err := json.Unmarshal(body, &wire); err != nil {
		return OrderRequest{}, domain.Errorf(domain.ErrValidation, "Malformed JSON body")
	}

	name, okName := optionalString(wire.Name)
	phone, okPhone := optionalString(wire.Phone)
	if !okName || !okPhone {
		return OrderRequest{}, domain.Errorf(domain.ErrValidation, "name and phone must be strings")
	}
	req := OrderRequest{Name: name, Phone: phone}

	switch {
	case isJSON(wire.LessonIDs, '['):
		var ids []json.RawMessage
		if err := json.Unmarshal(wire.LessonIDs, &ids); err != nil {
			return OrderRequest{}, domain.Errorf(domain.ErrValidation, "Malformed lessonIDs array")
		}
		req.Shape = IDListShape{LessonIDs: ids, Spaces: wire.Spaces}
	case isJSON(wire.Lessons, '['):
		var items []json.RawMessage
		if err := json.Unmarshal(wire.Lessons, &items); err != nil {
			return OrderRequest{}, domain.Errorf(domain.ErrValidation, "Malformed lessons array")
		}
		refs := make([]LessonRef, len(items))
		for i, item := range items {
			// Не-объекты дают пустую ссылку и отклоняются при нормализации.
			if isJSON(item, '{') {
				_ = json.Unmarshal(item, &refs[i])
			}
		}
		req.Shape = LessonListShape{Lessons: refs}
	}

	return req, nil
}

// optionalString возвращает значение JSON-строки; null и отсутствие дают "".
func optionalString(raw json.RawMessage) (string, bool) {
	if isAbsent(raw) {
		return "", true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func isJSON(raw []byte, first byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == first
}
