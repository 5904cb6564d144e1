package analysis

import (
	"fmt"
	"strings"
	"time"

	"timelens/internal/store"
)

const transcriptionSystemPrompt = `You transcribe desktop screen recordings into an activity timeline.

You receive keyframes sampled from a recording span, each labeled with its
offset in seconds from the start of the span. Respond with a JSON array of
observations and nothing else. Each observation is:

{
  "start_seconds": <number, offset from span start>,
  "end_seconds": <number, offset from span start>,
  "category": <one of: coding, work, research, browsing, communication, meeting, entertainment, social, break, other>,
  "title": <short activity title>,
  "summary": <one or two sentences>,
  "app_sites": [{"name": <app or site>, "seconds": <approximate>}],
  "distractions": [{"title": <brief off-task moment>, "seconds": <approximate>}],
  "productivity_score": <integer 0-100>
}

Rules:
- Observations must be ordered by start_seconds and stay within the span.
- Cover the whole span; do not leave unexplained gaps.
- Use the foreground window hints only as context; describe what the frames
  actually show.`

// buildUserPrompt describes the batch being transcribed: span, frame labels,
// foreground hints, and recent timeline context.
func buildUserPrompt(batch *store.Batch, keyframes []keyframe, hints []string, recent []*store.TimelineCard) string {
	var b strings.Builder

	spanSeconds := batch.SpanEnd.Sub(batch.SpanStart).Seconds()
	fmt.Fprintf(&b, "Recording span: %s to %s (%.0f seconds).\n",
		batch.SpanStart.Format(time.RFC3339), batch.SpanEnd.Format(time.RFC3339), spanSeconds)

	b.WriteString("Frames, in order, with offsets from span start:\n")
	for i, kf := range keyframes {
		fmt.Fprintf(&b, "- frame %d: %.0fs\n", i+1, kf.OffsetSeconds)
	}

	if len(hints) > 0 {
		b.WriteString("Foreground windows observed during the span (most recent first): ")
		b.WriteString(strings.Join(hints, "; "))
		b.WriteString(".\n")
	}

	if len(recent) > 0 {
		b.WriteString("Immediately preceding timeline for continuity:\n")
		for _, card := range recent {
			fmt.Fprintf(&b, "- %s to %s: [%s] %s\n",
				card.StartTime.Format("15:04"), card.EndTime.Format("15:04"), card.Category, card.Title)
		}
	}

	b.WriteString("Transcribe the span into the JSON observation array.")
	return b.String()
}
