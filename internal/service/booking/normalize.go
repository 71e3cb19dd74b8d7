package booking

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

const (
	msgMissingContact = "Missing name or phone"
	msgItemsRequired  = "lessonIDs or lessons array is required"
	msgInvalidID      = "Invalid ObjectId in lessonIDs/lessons"
	msgSpacesShape    = "spaces must be a number or an array matching lessonIDs/lessons length"
	msgSpacesValue    = "spaces values must be positive whole numbers"
)

// Draft - нормализованный запрос: контакт клиента и непустой список позиций.
type Draft struct {
	Name  string
	Phone string
	Items []domain.LineItem
}

// TotalSpaces возвращает суммарное число мест по всем позициям.
func (d Draft) TotalSpaces() int {
	total := 0
	for _, item := range d.Items {
		total += item.Quantity
	}
	return total
}

// Normalize проверяет запрос и приводит обе формы к одному списку позиций.
// Любая ошибка относится к категории domain.ErrValidation.
func Normalize(req OrderRequest) (Draft, error) {
	name := strings.TrimSpace(req.Name)
	phone := strings.TrimSpace(req.Phone)
	if name == "" || phone == "" {
		return Draft{}, domain.Errorf(domain.ErrValidation, msgMissingContact)
	}

	var (
		ids        []string
		quantities []int
		err        error
	)
	switch shape := req.Shape.(type) {
	case IDListShape:
		if ids, err = parseIDs(shape.LessonIDs); err != nil {
			return Draft{}, err
		}
		if quantities, err = parseSpaces(shape.Spaces, len(ids)); err != nil {
			return Draft{}, err
		}
	case LessonListShape:
		if ids, quantities, err = parseLessonRefs(shape.Lessons); err != nil {
			return Draft{}, err
		}
	default:
		return Draft{}, domain.Errorf(domain.ErrValidation, msgItemsRequired)
	}

	items := make([]domain.LineItem, len(ids))
	for i := range ids {
		items[i] = domain.LineItem{LessonID: ids[i], Quantity: quantities[i]}
	}
	return Draft{Name: name, Phone: phone, Items: items}, nil
}

func parseIDs(raw []json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, domain.Errorf(domain.ErrValidation, msgItemsRequired)
	}
	ids := make([]string, len(raw))
	for i, r := range raw {
		id, ok := lessonID(r)
		if !ok {
			return nil, domain.Errorf(domain.ErrValidation, msgInvalidID)
		}
		ids[i] = id
	}
	return ids, nil
}

func lessonID(raw json.RawMessage) (string, bool) {
	var id string
	if err := json.Unmarshal(raw, &id); err != nil || !domain.ValidID(id) {
		return "", false
	}
	return id, true
}

// parseSpaces разворачивает spaces формы A в количество для каждой из n позиций.
func parseSpaces(raw json.RawMessage, n int) ([]int, error) {
	var values []float64

	switch {
	case isAbsent(raw):
	case isJSON(raw, '['):
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil, domain.Errorf(domain.ErrValidation, msgSpacesShape)
		}
		for _, elem := range elems {
			v, ok := numeric(elem)
			if !ok {
				return nil, domain.Errorf(domain.ErrValidation, msgSpacesValue)
			}
			values = append(values, v)
		}
	default:
		v, ok := numeric(raw)
		if !ok {
			return nil, domain.Errorf(domain.ErrValidation, msgSpacesShape)
		}
		values = []float64{v}
	}

	quantities := make([]int, n)
	switch len(values) {
	case 0:
		for i := range quantities {
			quantities[i] = 1
		}
		return quantities, nil
	case 1, n:
	default:
		return nil, domain.Errorf(domain.ErrValidation, msgSpacesShape)
	}

	for i := range quantities {
		v := values[0]
		if len(values) == n {
			v = values[i]
		}
		q, ok := quantity(v)
		if !ok {
			return nil, domain.Errorf(domain.ErrValidation, msgSpacesValue)
		}
		quantities[i] = q
	}
	return quantities, nil
}

func parseLessonRefs(refs []LessonRef) ([]string, []int, error) {
	if len(refs) == 0 {
		return nil, nil, domain.Errorf(domain.ErrValidation, msgItemsRequired)
	}

	ids := make([]string, len(refs))
	quantities := make([]int, len(refs))
	for i, ref := range refs {
		raw := ref.ID
		if isAbsent(raw) || isEmptyString(raw) {
			raw = ref.AltID
		}
		id, ok := lessonID(raw)
		if !ok {
			return nil, nil, domain.Errorf(domain.ErrValidation, msgInvalidID)
		}
		ids[i] = id

		quantities[i] = 1
		var v float64
		if isJSONNumber(ref.Quantity) && json.Unmarshal(ref.Quantity, &v) == nil && v > 0 {
			q, ok := quantity(v)
			if !ok {
				return nil, nil, domain.Errorf(domain.ErrValidation, msgSpacesValue)
			}
			quantities[i] = q
		}
	}
	return ids, quantities, nil
}

// numeric принимает JSON-число или строку с числом.
func numeric(raw json.RawMessage) (float64, bool) {
	var v float64
	if isJSONNumber(raw) {
		if err := json.Unmarshal(raw, &v); err != nil {
			return 0, false
		}
		return v, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// quantity проверяет, что v - конечное положительное целое в пределах int32.
func quantity(v float64) (int, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v != math.Trunc(v) || v > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}

func isJSONNumber(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return false
	}
	c := trimmed[0]
	return c == '-' || (c >= '0' && c <= '9')
}

func isEmptyString(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == `""`
}
