package analysis

import (
	"math"
	"time"

	"timelens/internal/store"
)

// buildCards turns validated observations into timeline cards that tile the
// batch span exactly: clip to the span, merge near-adjacent observations of
// the same category, then normalize so cards are disjoint, the first card
// starts at the span start, each interior gap is absorbed by the preceding
// card, and the last card ends at the span end. Merging never crosses a batch
// boundary because observations are already confined to one batch.
func buildCards(observations []Observation, batch *store.Batch, mergeGap time.Duration) []store.TimelineCard {
	spanSeconds := batch.SpanEnd.Sub(batch.SpanStart).Seconds()

	clipped := make([]Observation, 0, len(observations))
	for _, obs := range observations {
		if obs.StartSeconds < 0 {
			obs.StartSeconds = 0
		}
		if obs.EndSeconds > spanSeconds {
			obs.EndSeconds = spanSeconds
		}
		if obs.EndSeconds <= obs.StartSeconds {
			continue
		}
		clipped = append(clipped, obs)
	}
	if len(clipped) == 0 {
		return nil
	}

	merged := mergeObservations(clipped, mergeGap.Seconds())

	// Normalize to a disjoint tiling of the span.
	merged[0].StartSeconds = 0
	for i := 1; i < len(merged); i++ {
		prev := &merged[i-1]
		cur := &merged[i]
		if cur.StartSeconds < prev.EndSeconds {
			cur.StartSeconds = prev.EndSeconds
		}
		prev.EndSeconds = cur.StartSeconds
	}
	merged[len(merged)-1].EndSeconds = spanSeconds

	cards := make([]store.TimelineCard, 0, len(merged))
	for _, obs := range merged {
		if obs.EndSeconds <= obs.StartSeconds {
			continue
		}
		cards = append(cards, store.TimelineCard{
			BatchID:           batch.ID,
			Category:          obs.Category,
			Title:             obs.Title,
			Summary:           obs.Summary,
			StartTime:         batch.SpanStart.Add(secondsToDuration(obs.StartSeconds)),
			EndTime:           batch.SpanStart.Add(secondsToDuration(obs.EndSeconds)),
			AppSites:          obs.AppSites,
			Distractions:      obs.Distractions,
			ProductivityScore: obs.ProductivityScore,
		})
	}
	return cards
}

func mergeObservations(observations []Observation, gapSeconds float64) []Observation {
	merged := make([]Observation, 0, len(observations))
	for _, obs := range observations {
		if len(merged) > 0 {
			prev := &merged[len(merged)-1]
			if prev.Category == obs.Category && obs.StartSeconds-prev.EndSeconds <= gapSeconds {
				mergeInto(prev, obs)
				continue
			}
		}
		merged = append(merged, obs)
	}
	return merged
}

func mergeInto(dst *Observation, src Observation) {
	dstLen := dst.EndSeconds - dst.StartSeconds
	srcLen := src.EndSeconds - src.StartSeconds

	// Duration-weighted score keeps a long focused stretch from being
	// dragged around by a short tail.
	total := dstLen + srcLen
	if total > 0 {
		weighted := float64(dst.ProductivityScore)*dstLen + float64(src.ProductivityScore)*srcLen
		dst.ProductivityScore = int(math.Round(weighted / total))
	}
	if src.EndSeconds > dst.EndSeconds {
		dst.EndSeconds = src.EndSeconds
	}
	if dst.Summary == "" {
		dst.Summary = src.Summary
	}
	dst.AppSites = mergeAppSites(dst.AppSites, src.AppSites)
	dst.Distractions = append(dst.Distractions, src.Distractions...)
}

func mergeAppSites(existing, incoming []store.AppSite) []store.AppSite {
	index := make(map[string]int, len(existing))
	for i, site := range existing {
		index[site.Name] = i
	}
	for _, site := range incoming {
		if i, ok := index[site.Name]; ok {
			existing[i].Seconds += site.Seconds
			continue
		}
		index[site.Name] = len(existing)
		existing = append(existing, site)
	}
	return existing
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
