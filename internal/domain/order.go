package domain

import "time"

// LineItem - одна позиция заказа: урок и количество мест.
type LineItem struct {
	LessonID string
	Quantity int
}

// Order - бронирование одного или нескольких уроков клиентом.
// После создания заказ не изменяется.
type Order struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	LessonIDs []string  `json:"lessonIDs"`
	Spaces    []int     `json:"spaces"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewOrder собирает заказ из нормализованных позиций.
func NewOrder(name, phone string, items []LineItem, now time.Time) Order {
	order := Order{
		ID:        NewID(),
		Name:      name,
		Phone:     phone,
		LessonIDs: make([]string, 0, len(items)),
		Spaces:    make([]int, 0, len(items)),
		CreatedAt: now.UTC(),
	}
	for _, item := range items {
		order.LessonIDs = append(order.LessonIDs, item.LessonID)
		order.Spaces = append(order.Spaces, item.Quantity)
	}
	return order
}

// Items возвращает позиции заказа в исходном порядке.
func (o Order) Items() []LineItem {
	items := make([]LineItem, 0, len(o.LessonIDs))
	for i, id := range o.LessonIDs {
		qty := 0
		if i < len(o.Spaces) {
			qty = o.Spaces[i]
		}
		items = append(items, LineItem{LessonID: id, Quantity: qty})
	}
	return items
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.Name == "" {
		errs = append(errs, ErrNameRequired)
	}
	if o.Phone == "" {
		errs = append(errs, ErrPhoneRequired)
	}
	if len(o.LessonIDs) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if len(o.LessonIDs) != len(o.Spaces) {
		errs = append(errs, ErrItemsLengthMismatch)
	}
	for _, qty := range o.Spaces {
		if qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
			break
		}
	}

	return errs
}
