package validation

import (
	"errors"
	"strings"
	"unicode"
)

const maxCardNameLen = 64

// ErrCardNameEmpty is returned when a card name is empty or whitespace-only after trim.
var ErrCardNameEmpty = errors.New("card name is required")

// ErrCardNameTooLong is returned when a card name exceeds maxCardNameLen runes.
var ErrCardNameTooLong = errors.New("card name too long")

// ErrCardNameInvalidChars is returned when a card name contains disallowed characters.
var ErrCardNameInvalidChars = errors.New("card name contains invalid characters")

// ValidateCardName trims the input and restricts it to letters, digits, hyphen and underscore.
// Returns the trimmed string or an error suitable for 400 INVALID_CARD responses.
func ValidateCardName(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrCardNameEmpty
	}
	if len(r) > maxCardNameLen {
		return "", ErrCardNameTooLong
	}
	for _, c := range r {
		if !isAllowedCardRune(c) {
			return "", ErrCardNameInvalidChars
		}
	}
	return s, nil
}

func isAllowedCardRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	return r == '-' || r == '_'
}
