package users

import (
	"strings"
	"unicode"
)

// Password policy for the change-password page.
const (
	PasswordMinLength    = 8
	PasswordMaxBytes     = 72
	NewUserPasswordMin   = 6
	passwordSpecialChars = `!@#$%^&*(),.?":{}|<>`
)

// Requirement is one line of the password checklist.
type Requirement struct {
	Text string
	Met  bool
}

// PasswordRequirements evaluates password against the policy in display
// order.
func PasswordRequirements(password string) []Requirement {
	return []Requirement{
		{Text: "At least 8 characters", Met: len([]rune(password)) >= PasswordMinLength},
		{Text: "At least one uppercase letter", Met: hasUpper(password)},
		{Text: "At least one number", Met: hasDigit(password)},
		{Text: "At least one special character", Met: hasSpecial(password)},
	}
}

// PasswordMeetsPolicy reports whether every requirement is met.
func PasswordMeetsPolicy(password string) bool {
	for _, req := range PasswordRequirements(password) {
		if !req.Met {
			return false
		}
	}
	return true
}

func hasUpper(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r >= 'A' && r <= 'Z' }) >= 0
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r < unicode.MaxASCII && unicode.IsDigit(r) }) >= 0
}

func hasSpecial(s string) bool {
	return strings.ContainsAny(s, passwordSpecialChars)
}
