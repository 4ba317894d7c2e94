package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenID returns a fresh random id (uuid v4) used for users, messages, groups
// and connections.
func GenID() string {
	return uuid.NewString()
}

// NormalizeEmail lowercases and trims an email so it can be used as identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps the digits of a phone number and a leading '+', so
// "+84 912-345 678" and "+84912345678" compare equal.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SplitPath splits a path string into its non-empty segments, separated by '/'.
// For example, "/foo/bar/" becomes []string{"foo", "bar"}.
func SplitPath(p string) []string {
	out := make([]string, 0)
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// Contains reports whether s holds v.
func Contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// AddUnique appends v unless already present. The second result reports
// whether s changed.
func AddUnique(s []string, v string) ([]string, bool) {
	if Contains(s, v) {
		return s, false
	}
	return append(s, v), true
}

// Remove drops every occurrence of v, preserving order.
func Remove(s []string, v string) ([]string, bool) {
	out := s[:0:0]
	changed := false
	for _, x := range s {
		if x == v {
			changed = true
			continue
		}
		out = append(out, x)
	}
	if !changed {
		return s, false
	}
	return out, true
}

// Dedupe returns the distinct values of s in first-seen order, skipping blanks.
func Dedupe(s []string) []string {
	seen := make(map[string]struct{}, len(s))
	out := make([]string, 0, len(s))
	for _, x := range s {
		if x == "" {
			continue
		}
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	return out
}
