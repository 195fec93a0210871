// backend/src/processors/entity_resolver_test.go
package processors

import (
	"testing"

	"github.com/hmseok/Self-Disruption-sub000/src/models"
)

func testRegistry() []models.Card {
	return []models.Card{
		{ID: 1, Issuer: "신한", Number: "1234-5678-9012-3456"},
		{ID: 2, Issuer: "국민", Number: "9876-5432-1098-7654",
			PreviousNumbers: []string{"1111-2222-3333-5678"}},
		{ID: 3, Issuer: "현대", Number: "5555-6666-7777-8888"},
	}
}

func TestMatchCardLastFour(t *testing.T) {
	card := MatchCard("3456", testRegistry())
	if card == nil || card.ID != 1 {
		t.Fatalf("MatchCard(3456) = %+v, want card 1", card)
	}
}

func TestMatchCardHistoricalIdentifier(t *testing.T) {
	// Card 2's current number ends in 7654, but a retired number ends in
	// 5678; statements from before the replacement still say 5678.
	card := MatchCard("5678", testRegistry())
	if card == nil || card.ID != 2 {
		t.Fatalf("MatchCard(5678) = %+v, want card 2 via historical number", card)
	}
}

func TestMatchCardFormattedFragment(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		wantID   int64
	}{
		{"masked statement form", "1234-56**-****-3456", 1},
		{"issuer prefix text", "법인카드 8888", 3},
		{"spaces and stars", "**** 7654", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := MatchCard(tt.fragment, testRegistry())
			if card == nil || card.ID != tt.wantID {
				t.Errorf("MatchCard(%q) = %+v, want card %d", tt.fragment, card, tt.wantID)
			}
		})
	}
}

func TestMatchCardFirstFourFallback(t *testing.T) {
	// 9876 matches no tail but matches the head of card 2's current number.
	card := MatchCard("9876", testRegistry())
	if card == nil || card.ID != 2 {
		t.Fatalf("MatchCard(9876) = %+v, want card 2 via leading digits", card)
	}
}

func TestMatchCardShortFragment(t *testing.T) {
	if card := MatchCard("56", testRegistry()); card != nil {
		t.Errorf("MatchCard with <3 digits matched card %d, want nil", card.ID)
	}
	if card := MatchCard("법인카드", testRegistry()); card != nil {
		t.Errorf("MatchCard with no digits matched card %d, want nil", card.ID)
	}
}

func TestMatchCardThreeDigitContainment(t *testing.T) {
	// Three digits skip the four-digit rules and fall through to loose
	// containment against each identifier's last four.
	card := MatchCard("456", testRegistry())
	if card == nil || card.ID != 1 {
		t.Fatalf("MatchCard(456) = %+v, want card 1 via containment", card)
	}
}

func TestMatchCardNoMatch(t *testing.T) {
	if card := MatchCard("0000", testRegistry()); card != nil {
		t.Errorf("MatchCard(0000) = card %d, want nil", card.ID)
	}
}

func TestMatchCardRegistryOrderTieBreak(t *testing.T) {
	registry := []models.Card{
		{ID: 10, Number: "1111-0000-0000-9999"},
		{ID: 11, Number: "2222-0000-0000-9999"},
	}
	card := MatchCard("9999", registry)
	if card == nil || card.ID != 10 {
		t.Fatalf("MatchCard(9999) = %+v, want first registered card 10", card)
	}
}
