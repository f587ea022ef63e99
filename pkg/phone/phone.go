// Package phone normalizes phone numbers into a single E.164-ish canonical
// form. It is a pure-function collaborator shared by the OTP engine and
// principal lookup so the same subscriber always resolves to the same key.
package phone

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	minDigits = 8
	maxDigits = 15 // E.164 upper bound
)

// Normalize canonicalizes a raw phone number to "+<digits>". Accepted input
// may carry spaces, dashes, dots, parentheses, or an international "00"
// prefix. Numbers without any international prefix are rejected rather than
// guessed at; callers own default-region decisions.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("phone number is empty")
	}

	plus := strings.HasPrefix(trimmed, "+")

	var digits strings.Builder
	for _, r := range trimmed {
		switch {
		case unicode.IsDigit(r):
			digits.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
			// separators and the leading plus are dropped
		default:
			return "", fmt.Errorf("phone number contains invalid character %q", r)
		}
	}

	number := digits.String()

	// "00" international dialing prefix is equivalent to "+"
	if !plus && strings.HasPrefix(number, "00") {
		plus = true
		number = number[2:]
	}

	if !plus {
		return "", fmt.Errorf("phone number must carry an international prefix")
	}

	number = strings.TrimLeft(number, "0")
	if len(number) < minDigits || len(number) > maxDigits {
		return "", fmt.Errorf("phone number must have between %d and %d digits, got %d", minDigits, maxDigits, len(number))
	}

	return "+" + number, nil
}
