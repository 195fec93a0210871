// backend/src/processors/anomaly_rules.go
package processors

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hmseok/Self-Disruption-sub000/src/models"
)

// Rule thresholds. These values are part of the scan contract; reviewers
// calibrate against them.
const (
	LowConfidenceThreshold = 50
	UnusualAmountMedium    = 1_000_000
	UnusualAmountHigh      = 5_000_000
	PersonalUseMinAmount   = 30_000
	LateNightStartHour     = 22
	LateNightEndHour       = 5
)

// personalUseKeywords are merchant/description terms that point at personal
// rather than business spending: convenience stores, food delivery and
// entertainment venues.
var personalUseKeywords = []string{
	"GS25", "CU", "세븐일레븐", "이마트24", "미니스톱", "편의점",
	"배달의민족", "배민", "요기요", "쿠팡이츠",
	"노래방", "노래연습장", "스크린골프", "골프장", "PC방",
	"호텔", "모텔", "마사지", "유흥",
}

var timeOfDayPattern = regexp.MustCompile(`([01]?[0-9]|2[0-3]):[0-5][0-9]`)

// FlagCandidate is one anomaly a rule raised for a transaction. Candidates are
// pure values: persistence and deduplication happen downstream.
type FlagCandidate struct {
	Type     models.FlagType
	Reason   string
	Severity models.Severity
}

// Scan runs every anomaly rule over one resolved transaction and returns zero
// or more candidates. Rules are independent: a single transaction can collect
// several flags, and the unusual_time sub-rules (late-night and weekend) may
// both fire. Persistence-side dedup on (transaction, flag type) happens
// downstream, not here.
func Scan(tx models.Transaction, localCurrency string) []FlagCandidate {
	var out []FlagCandidate

	if tx.Confidence < LowConfidenceThreshold {
		out = append(out, FlagCandidate{
			Type:     models.FlagLowConfidence,
			Reason:   fmt.Sprintf("추출 신뢰도가 낮습니다 (%d%%)", tx.Confidence),
			Severity: models.SeverityMedium,
		})
	}

	if tx.Currency != "" && tx.Currency != localCurrency {
		out = append(out, FlagCandidate{
			Type:     models.FlagForeignCurrency,
			Reason:   fmt.Sprintf("외화 거래입니다 (%s)", tx.Currency),
			Severity: models.SeverityMedium,
		})
	}

	switch {
	case tx.Amount >= UnusualAmountHigh:
		out = append(out, FlagCandidate{
			Type:     models.FlagUnusualAmount,
			Reason:   fmt.Sprintf("고액 거래입니다 (%.0f원)", tx.Amount),
			Severity: models.SeverityHigh,
		})
	case tx.Amount >= UnusualAmountMedium:
		out = append(out, FlagCandidate{
			Type:     models.FlagUnusualAmount,
			Reason:   fmt.Sprintf("고액 거래입니다 (%.0f원)", tx.Amount),
			Severity: models.SeverityMedium,
		})
	}

	if hour, ok := timeOfDay(tx.Description); ok && (hour >= LateNightStartHour || hour < LateNightEndHour) {
		out = append(out, FlagCandidate{
			Type:     models.FlagUnusualTime,
			Reason:   fmt.Sprintf("심야 시간대 거래입니다 (%02d시)", hour),
			Severity: models.SeverityMedium,
		})
	}
	if wd := tx.TransactionDate.Weekday(); !tx.TransactionDate.IsZero() && (wd == time.Saturday || wd == time.Sunday) {
		out = append(out, FlagCandidate{
			Type:     models.FlagUnusualTime,
			Reason:   "주말 거래입니다",
			Severity: models.SeverityLow,
		})
	}

	if tx.Amount >= PersonalUseMinAmount {
		if kw := matchPersonalUseKeyword(tx.ClientName + " " + tx.Description); kw != "" {
			out = append(out, FlagCandidate{
				Type:     models.FlagPersonalUse,
				Reason:   fmt.Sprintf("사적 사용 의심 가맹점입니다 (%s)", kw),
				Severity: models.SeverityMedium,
			})
		}
	}

	return out
}

// timeOfDay extracts the hour of the first HH:MM token in the text.
func timeOfDay(text string) (int, bool) {
	m := timeOfDayPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return hour, true
}

// matchPersonalUseKeyword finds the first keyword present in the text.
// Korean keywords match as substrings; all-Latin keywords like "CU" must
// stand alone as a token, or "Culture Center" would read as a convenience
// store.
func matchPersonalUseKeyword(text string) string {
	upper := strings.ToUpper(text)
	for _, kw := range personalUseKeywords {
		ukw := strings.ToUpper(kw)
		if isASCIIWord(ukw) {
			if containsToken(upper, ukw) {
				return kw
			}
			continue
		}
		if strings.Contains(upper, ukw) {
			return kw
		}
	}
	return ""
}

func isASCIIWord(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isAlnumByte(s[i]) {
			return false
		}
	}
	return len(s) > 0
}

func isAlnumByte(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

// containsToken reports whether word occurs in text with no ASCII letter or
// digit touching either side. Adjacent Hangul counts as a boundary, so
// "CU편의점" still matches.
func containsToken(text, word string) bool {
	for start := 0; start <= len(text)-len(word); {
		i := strings.Index(text[start:], word)
		if i < 0 {
			return false
		}
		i += start
		j := i + len(word)
		if (i == 0 || !isAlnumByte(text[i-1])) && (j == len(text) || !isAlnumByte(text[j])) {
			return true
		}
		start = i + 1
	}
	return false
}
