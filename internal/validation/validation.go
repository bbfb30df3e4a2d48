// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"
	"unicode/utf8"
)

// Границы длины описания операции в символах.
const (
	MinDescriptionLen = 5
	MaxDescriptionLen = 50
)

// IsValidDescription проверяет описание операции. Пустое описание допустимо, если оно необязательно.
func IsValidDescription(description string, required bool) bool {
	description = strings.TrimSpace(description)
	if description == "" {
		return !required
	}

	n := utf8.RuneCountInString(description)
	return n >= MinDescriptionLen && n <= MaxDescriptionLen
}

// IsValidReference проверяет формат референса: 12 заглавных латинских букв или цифр.
func IsValidReference(ref string) bool {
	if len(ref) != 12 {
		return false
	}

	for _, ch := range ref {
		if (ch < '0' || ch > '9') && (ch < 'A' || ch > 'Z') {
			return false
		}
	}

	return true
}

// IsValidQuantity проверяет, что количество находится в пределах [min, max].
func IsValidQuantity(quantity, min, max int) bool {
	return quantity >= min && quantity <= max
}
