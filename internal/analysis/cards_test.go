package analysis

import (
	"testing"
	"time"

	"timelens/internal/store"
)

func spanBatch(t *testing.T, spanSeconds float64) *store.Batch {
	t.Helper()
	start := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	return &store.Batch{
		ID:        7,
		SpanStart: start,
		SpanEnd:   start.Add(secondsToDuration(spanSeconds)),
	}
}

func obs(start, end float64, category string, score int) Observation {
	return Observation{
		StartSeconds:      start,
		EndSeconds:        end,
		Category:          category,
		Title:             category + " block",
		ProductivityScore: score,
	}
}

func TestBuildCardsTilesSpan(t *testing.T) {
	batch := spanBatch(t, 600)
	cards := buildCards([]Observation{
		obs(30, 200, "coding", 80),
		obs(260, 550, "browsing", 50),
	}, batch, 90*time.Second)

	if len(cards) != 2 {
		t.Fatalf("cards = %d, want 2", len(cards))
	}
	if !cards[0].StartTime.Equal(batch.SpanStart) {
		t.Errorf("first card starts %v, want span start", cards[0].StartTime)
	}
	if !cards[len(cards)-1].EndTime.Equal(batch.SpanEnd) {
		t.Errorf("last card ends %v, want span end", cards[len(cards)-1].EndTime)
	}
	// The 200..260 gap belongs to the preceding card.
	if !cards[0].EndTime.Equal(cards[1].StartTime) {
		t.Errorf("interior gap not absorbed: %v to %v", cards[0].EndTime, cards[1].StartTime)
	}
	if !cards[0].EndTime.Equal(batch.SpanStart.Add(260 * time.Second)) {
		t.Errorf("gap absorbed by the wrong side: first card ends %v", cards[0].EndTime)
	}
}

func TestBuildCardsMergesSameCategoryWithinGap(t *testing.T) {
	batch := spanBatch(t, 600)
	a := obs(0, 200, "coding", 90)
	a.AppSites = []store.AppSite{{Name: "VS Code", Seconds: 180}}
	b := obs(260, 460, "coding", 60) // 60s gap, within the 90s merge window
	b.AppSites = []store.AppSite{{Name: "VS Code", Seconds: 150}, {Name: "Terminal", Seconds: 50}}
	b.Distractions = []store.Distraction{{Title: "Checked chat", Seconds: 30}}

	cards := buildCards([]Observation{a, b}, batch, 90*time.Second)
	if len(cards) != 1 {
		t.Fatalf("cards = %d, want 1 merged card", len(cards))
	}
	card := cards[0]
	if card.Category != "coding" {
		t.Errorf("category = %q", card.Category)
	}
	// Equal durations, so the weighted score is the midpoint.
	if card.ProductivityScore != 75 {
		t.Errorf("productivity score = %d, want 75", card.ProductivityScore)
	}
	if len(card.AppSites) != 2 {
		t.Fatalf("app sites = %d, want 2", len(card.AppSites))
	}
	if card.AppSites[0].Name != "VS Code" || card.AppSites[0].Seconds != 330 {
		t.Errorf("merged app site = %+v", card.AppSites[0])
	}
	if len(card.Distractions) != 1 {
		t.Errorf("distractions = %d, want 1", len(card.Distractions))
	}
}

func TestBuildCardsDoesNotMergeAcrossCategories(t *testing.T) {
	batch := spanBatch(t, 600)
	cards := buildCards([]Observation{
		obs(0, 200, "coding", 80),
		obs(210, 600, "browsing", 40),
	}, batch, 90*time.Second)
	if len(cards) != 2 {
		t.Fatalf("cards = %d, want 2", len(cards))
	}
}

func TestBuildCardsDoesNotMergeBeyondGap(t *testing.T) {
	batch := spanBatch(t, 600)
	cards := buildCards([]Observation{
		obs(0, 200, "coding", 80),
		obs(300, 600, "coding", 40), // 100s gap exceeds the 90s window
	}, batch, 90*time.Second)
	if len(cards) != 2 {
		t.Fatalf("cards = %d, want 2", len(cards))
	}
}

func TestBuildCardsClipsToSpan(t *testing.T) {
	batch := spanBatch(t, 300)
	cards := buildCards([]Observation{
		obs(-20, 150, "coding", 80),
		obs(150, 400, "browsing", 50),
	}, batch, 90*time.Second)
	if len(cards) != 2 {
		t.Fatalf("cards = %d, want 2", len(cards))
	}
	if !cards[0].StartTime.Equal(batch.SpanStart) || !cards[1].EndTime.Equal(batch.SpanEnd) {
		t.Errorf("cards not clipped to span: %v..%v and %v..%v",
			cards[0].StartTime, cards[0].EndTime, cards[1].StartTime, cards[1].EndTime)
	}
}

func TestBuildCardsDropsEmptyAfterClip(t *testing.T) {
	batch := spanBatch(t, 300)
	cards := buildCards([]Observation{
		obs(0, 300, "coding", 80),
		obs(300, 360, "browsing", 50), // entirely beyond the span
	}, batch, 90*time.Second)
	if len(cards) != 1 {
		t.Fatalf("cards = %d, want 1", len(cards))
	}
	if cards[0].Category != "coding" {
		t.Errorf("surviving card category = %q", cards[0].Category)
	}
}

func TestBuildCardsResolvesOverlap(t *testing.T) {
	batch := spanBatch(t, 300)
	cards := buildCards([]Observation{
		obs(0, 200, "coding", 80),
		obs(150, 300, "meeting", 70),
	}, batch, 90*time.Second)
	if len(cards) != 2 {
		t.Fatalf("cards = %d, want 2", len(cards))
	}
	if !cards[0].EndTime.Equal(cards[1].StartTime) {
		t.Errorf("overlap not resolved: first ends %v, second starts %v", cards[0].EndTime, cards[1].StartTime)
	}
}

func TestMergeWeightedScoreFavorsLongerStretch(t *testing.T) {
	dst := obs(0, 540, "coding", 90)
	mergeInto(&dst, obs(540, 600, "coding", 0))
	// 540s at 90 and 60s at 0 rounds to 81.
	if dst.ProductivityScore != 81 {
		t.Errorf("weighted score = %d, want 81", dst.ProductivityScore)
	}
	if dst.EndSeconds != 600 {
		t.Errorf("merged end = %.0f, want 600", dst.EndSeconds)
	}
}
