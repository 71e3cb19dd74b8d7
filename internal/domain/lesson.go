package domain

import (
	"math"
	"strings"
)

// Lesson - урок, который можно забронировать.
type Lesson struct {
	ID            string  `json:"id"`
	Subject       string  `json:"subject"`
	Location      string  `json:"location"`
	Price         float64 `json:"price"`
	Spaces        int     `json:"spaces"`
	ImageFilename string  `json:"imageFilename,omitempty"`
	IconClass     string  `json:"iconClass,omitempty"`
}

// LessonPatch - частичное обновление урока. nil означает «поле не передано».
type LessonPatch struct {
	Subject       *string  `json:"subject"`
	Location      *string  `json:"location"`
	Price         *float64 `json:"price"`
	Spaces        *float64 `json:"spaces"`
	ImageFilename *string  `json:"imageFilename"`
	IconClass     *string  `json:"iconClass"`
}

// Empty сообщает, что ни одно из распознаваемых полей не передано.
func (p LessonPatch) Empty() bool {
	return p.Subject == nil && p.Location == nil && p.Price == nil &&
		p.Spaces == nil && p.ImageFilename == nil && p.IconClass == nil
}

// Validate проверяет инварианты урока для переданных полей.
func (p LessonPatch) Validate() error {
	if p.Empty() {
		return Errorf(ErrValidation, "No valid fields provided for update")
	}
	if p.Price != nil && (math.IsNaN(*p.Price) || math.IsInf(*p.Price, 0) || *p.Price < 0) {
		return Errorf(ErrValidation, "price must be a non-negative number")
	}
	if p.Spaces != nil {
		s := *p.Spaces
		if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 || s != math.Trunc(s) || s > math.MaxInt32 {
			return Errorf(ErrValidation, "spaces must be a non-negative integer")
		}
	}
	return nil
}

// Apply возвращает копию урока с применёнными полями патча.
func (p LessonPatch) Apply(l Lesson) Lesson {
	if p.Subject != nil {
		l.Subject = *p.Subject
	}
	if p.Location != nil {
		l.Location = *p.Location
	}
	if p.Price != nil {
		l.Price = *p.Price
	}
	if p.Spaces != nil {
		l.Spaces = int(*p.Spaces)
	}
	if p.ImageFilename != nil {
		l.ImageFilename = *p.ImageFilename
	}
	if p.IconClass != nil {
		l.IconClass = *p.IconClass
	}
	return l
}

// SearchQuery - разобранный поисковый запрос.
type SearchQuery struct {
	// Text ищется как подстрока без учёта регистра в subject и location.
	Text string
	// Number задан, если запрос является числом: тогда совпадают price или spaces.
	Number *float64
}

// Matches проверяет урок на соответствие запросу (используется in-memory хранилищем).
func (q SearchQuery) Matches(l Lesson) bool {
	if q.Text != "" && (containsFold(l.Subject, q.Text) || containsFold(l.Location, q.Text)) {
		return true
	}
	if q.Number != nil {
		n := *q.Number
		return l.Price == n || float64(l.Spaces) == n
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
