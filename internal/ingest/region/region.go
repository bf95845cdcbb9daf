// Package region decides whether a viewer country may watch an asset.
package region

import (
	"strings"

	"video_ingest_service/pkg"
	"video_ingest_service/pkg/logger"

	"go.uber.org/zap"
)

// Policy injected region configuration
type Policy struct {
	// FailOpenOnMissingGeoSignal allow viewers whose country is unknown
	FailOpenOnMissingGeoSignal bool
	// CountryNames country name -> ISO 3166-1 alpha-2, keys matched case-insensitively
	CountryNames map[string]string
}

// Decision result of one evaluation
type Decision struct {
	CountryCode      string
	HasCountry       bool
	BlockedCountries []string
	Allowed          bool
}

// Evaluator pure region policy evaluator
type Evaluator struct {
	failOpen bool
	names    map[string]string
}

// NewEvaluator build an evaluator, the name table is copied
func NewEvaluator(p Policy) *Evaluator {
	names := make(map[string]string, len(p.CountryNames))
	for name, code := range p.CountryNames {
		names[strings.ToLower(strings.TrimSpace(name))] = strings.ToUpper(strings.TrimSpace(code))
	}
	return &Evaluator{failOpen: p.FailOpenOnMissingGeoSignal, names: names}
}

// Evaluate viewer country against the blocked list (ISO codes or names).
// Only an absent country follows the fail-open setting; a malformed one is denied.
func (e *Evaluator) Evaluate(countryCode string, blocked []string) Decision {
	d := Decision{BlockedCountries: e.Normalize(blocked)}

	raw := strings.TrimSpace(countryCode)
	if raw == "" {
		d.Allowed = e.failOpen
		return d
	}
	code, ok := isoCode(raw)
	if !ok {
		logger.Log.Warn("malformed viewer country denied", zap.String("country", raw))
		return d
	}
	d.CountryCode = code
	d.HasCountry = true
	d.Allowed = !pkg.Contains(d.BlockedCountries, code)
	return d
}

// Normalize map names to ISO codes and uppercase codes, unknown names are kept as given
func (e *Evaluator) Normalize(blocked []string) []string {
	out := make([]string, 0, len(blocked))
	for _, b := range blocked {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		if code, ok := isoCode(b); ok {
			out = append(out, code)
			continue
		}
		if code, ok := e.names[strings.ToLower(b)]; ok {
			out = append(out, code)
			continue
		}
		out = append(out, b)
	}
	return out
}

// isoCode two ASCII letters, uppercased
func isoCode(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) != 2 {
		return "", false
	}
	for i := 0; i < 2; i++ {
		c := s[i] | 0x20
		if c < 'a' || c > 'z' {
			return "", false
		}
	}
	return strings.ToUpper(s), true
}
