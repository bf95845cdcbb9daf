package pkg

import "strings"

// Contains check source have target
func Contains(slice []string, val string) bool {
	for _, v := range slice {
		if v == val {
			return true
		}
	}
	return false
}

// HasAnyPrefix check s starts with one of prefixes, case-insensitive
func HasAnyPrefix(s string, prefixes []string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
