package domain

import "go.mongodb.org/mongo-driver/bson/primitive"

// NewID генерирует идентификатор в формате ObjectID (24 hex-символа).
// Формат общий для всех драйверов хранилища, поэтому HTTP-контракт от драйвера не зависит.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// ValidID проверяет, что строка является корректным идентификатором хранилища.
func ValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}
