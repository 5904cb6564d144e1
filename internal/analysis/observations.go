package analysis

import (
	"fmt"
	"strings"

	"timelens/internal/services/vision"
	"timelens/internal/store"
)

// Observation is one model-reported activity interval, in seconds relative to
// the batch span start.
type Observation struct {
	StartSeconds      float64             `json:"start_seconds"`
	EndSeconds        float64             `json:"end_seconds"`
	Category          string              `json:"category"`
	Title             string              `json:"title"`
	Summary           string              `json:"summary"`
	AppSites          []store.AppSite     `json:"app_sites"`
	Distractions      []store.Distraction `json:"distractions"`
	ProductivityScore int                 `json:"productivity_score"`
}

// SchemaViolationError reports a payload that failed strict validation. The
// raw payload travels with the error so it can be preserved on the failed
// batch row for diagnosis.
type SchemaViolationError struct {
	Detail string
	Raw    string
}

func (e *SchemaViolationError) Error() string {
	return "schema violation: " + e.Detail
}

func violation(raw, format string, args ...any) error {
	return &SchemaViolationError{Detail: fmt.Sprintf(format, args...), Raw: raw}
}

// parseObservations decodes and strictly validates a model payload against
// the batch span. Any violation rejects the whole payload; there is no
// partial acceptance.
func parseObservations(raw string, spanSeconds float64) ([]Observation, error) {
	var observations []Observation
	if err := vision.DecodeModelJSON(raw, &observations); err != nil {
		return nil, violation(raw, "decode payload: %v", err)
	}
	if len(observations) == 0 {
		return nil, violation(raw, "payload contains no observations")
	}

	prevStart := -1.0
	for i := range observations {
		obs := &observations[i]
		obs.Category = strings.ToLower(strings.TrimSpace(obs.Category))
		obs.Title = strings.TrimSpace(obs.Title)
		obs.Summary = strings.TrimSpace(obs.Summary)

		if obs.Title == "" {
			return nil, violation(raw, "observation %d: title is required", i)
		}
		if !store.ValidCategory(obs.Category) {
			return nil, violation(raw, "observation %d: category %q not in fixed set", i, obs.Category)
		}
		if obs.ProductivityScore < 0 || obs.ProductivityScore > 100 {
			return nil, violation(raw, "observation %d: productivity_score %d outside [0,100]", i, obs.ProductivityScore)
		}
		if obs.StartSeconds < 0 {
			return nil, violation(raw, "observation %d: start_seconds %.1f before span start", i, obs.StartSeconds)
		}
		if obs.EndSeconds <= obs.StartSeconds {
			return nil, violation(raw, "observation %d: end_seconds %.1f not after start_seconds %.1f", i, obs.EndSeconds, obs.StartSeconds)
		}
		if obs.EndSeconds > spanSeconds {
			return nil, violation(raw, "observation %d: end_seconds %.1f beyond span of %.1fs", i, obs.EndSeconds, spanSeconds)
		}
		if obs.StartSeconds < prevStart {
			return nil, violation(raw, "observation %d: start_seconds %.1f out of order", i, obs.StartSeconds)
		}
		prevStart = obs.StartSeconds
	}
	return observations, nil
}
