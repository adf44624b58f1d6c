package users

import (
	"strings"

	"golang.org/x/text/cases"
)

// Filter returns the users whose name or email contains every
// whitespace-separated term of query, ignoring case. An empty query
// matches everyone. Order is preserved.
func Filter(list []User, query string) []User {
	terms := strings.Fields(fold(query))
	out := make([]User, 0, len(list))
	for _, u := range list {
		if matchesAll(u, terms) {
			out = append(out, u)
		}
	}
	return out
}

func matchesAll(u User, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	name := fold(u.Name)
	email := fold(u.Email)
	for _, term := range terms {
		if !strings.Contains(name, term) && !strings.Contains(email, term) {
			return false
		}
	}
	return true
}

// cases.Caser is stateful, so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}
