// backend/src/processors/entity_resolver.go
package processors

import (
	"strings"

	"github.com/hmseok/Self-Disruption-sub000/src/models"
)

// Statement documents rarely carry a full card number: models hand back
// fragments like "5678", "1234-56**-****-5678" or "법인 5678". MatchCard maps
// such a fragment onto the registered card registry, considering every
// identifier a card has ever had, because older statements keep referencing
// replaced cards by their retired numbers.

const minFragmentDigits = 3

// normalizeDigits strips every non-digit character.
func normalizeDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// identifiers returns the card's current number followed by its historical
// numbers, in registry order.
func identifiers(card *models.Card) []string {
	ids := make([]string, 0, 1+len(card.PreviousNumbers))
	ids = append(ids, card.Number)
	ids = append(ids, card.PreviousNumbers...)
	return ids
}

// MatchCard resolves a fuzzy card identifier fragment against the registry.
// Returns nil when no card matches. When several cards share the same matching
// digits the first card in registry order wins; that tie-break is documented
// behavior, not an accident (the registry has no better ordering to offer).
func MatchCard(fragment string, registry []models.Card) *models.Card {
	digits := normalizeDigits(fragment)
	if len(digits) < minFragmentDigits {
		return nil
	}

	// Last four digits are the strongest signal: that is how statements
	// and receipts abbreviate card numbers.
	if len(digits) >= 4 {
		tail := digits[len(digits)-4:]
		for i := range registry {
			for _, id := range identifiers(&registry[i]) {
				n := normalizeDigits(id)
				if len(n) >= 4 && n[len(n)-4:] == tail {
					return &registry[i]
				}
			}
		}
	}

	// Some issuers print the leading digits instead.
	if len(digits) >= 4 {
		head := digits[:4]
		for i := range registry {
			for _, id := range identifiers(&registry[i]) {
				n := normalizeDigits(id)
				if len(n) >= 4 && n[:4] == head {
					return &registry[i]
				}
			}
		}
	}

	// Loose containment over the raw fragment, in either direction, using
	// the identifier's own last four digits.
	for i := range registry {
		for _, id := range identifiers(&registry[i]) {
			n := normalizeDigits(id)
			if len(n) < 4 {
				continue
			}
			tail := n[len(n)-4:]
			if strings.Contains(fragment, tail) || strings.Contains(tail, fragment) {
				return &registry[i]
			}
		}
	}

	return nil
}
