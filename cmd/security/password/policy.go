package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// commonPasswords are rejected outright when RejectVeryWeak is set.
var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {},
	"12345678": {}, "123456789": {}, "1234567890": {},
	"qwerty123": {}, "qwertyuiop": {}, "iloveyou": {},
	"11111111": {}, "letmein1": {}, "heirloom": {},
}

// Check applies the length bounds (in runes) and, when enabled, the
// very-weak screen. It never inspects more than MaxLength+1 runes.
func (p Policy) Check(pw string) error {
	n := utf8.RuneCountInString(pw)
	switch {
	case n < p.MinLength:
		return ErrPasswordTooShort
	case n > p.MaxLength:
		return ErrPasswordTooLong
	}
	if p.RejectVeryWeak && veryWeak(pw) {
		return ErrWeakPassword
	}
	return nil
}

// veryWeak flags single-character repeats, short digit-only PINs and a
// small list of well-known passwords. It is not a strength estimator.
func veryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}
	if _, ok := commonPasswords[strings.ToLower(s)]; ok {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	repeated, digits := true, true
	for _, r := range s {
		repeated = repeated && r == first
		digits = digits && unicode.IsDigit(r)
	}
	return repeated || (digits && utf8.RuneCountInString(s) < 12)
}
