// backend/src/parsers/llmjson/parser.go

// Package llmjson recovers structured values from model-generated JSON text.
// Generator output is frequently imperfect: wrapped in Markdown fences, padded
// with prose, or cut off mid-token when the upstream call truncated. Parse
// runs a fixed ladder of recovery stages and stops at the first one that
// yields a valid value; callers treat a nil result as "retry with a smaller
// request", never as a crash.
package llmjson

import "strings"

// Stage identifies which recovery stage produced a result.
type Stage int

const (
	StageDirect Stage = iota + 1
	StageExtracted
	StageTruncationRepair
	StageBalanceCompletion
	StageCutPoint
	StagePartialRecords
	StageLongestPrefix
)

func (s Stage) String() string {
	switch s {
	case StageDirect:
		return "direct"
	case StageExtracted:
		return "extracted"
	case StageTruncationRepair:
		return "truncation_repair"
	case StageBalanceCompletion:
		return "balance_completion"
	case StageCutPoint:
		return "cut_point"
	case StagePartialRecords:
		return "partial_records"
	case StageLongestPrefix:
		return "longest_prefix"
	}
	return "unknown"
}

// Options tunes the deeper recovery stages for the caller's payload shape.
type Options struct {
	// ArrayField names the array-of-records field that partial record
	// reconstruction may rebuild independently. Empty disables the stage.
	ArrayField string
	// RequiredKeys is the minimal field set a regex-matched record must
	// carry to count as a complete record.
	RequiredKeys []string
	// IdentifyingFields are expected top-level fields; the longest-prefix
	// stage only accepts an object carrying at least one of them.
	IdentifyingFields []string
}

// Result is a recovered structured value plus how it was recovered.
type Result struct {
	Value     *Value
	Stage     Stage
	Recovered bool // any stage beyond the direct parse
	Partial   bool // assembled from independently parsed records
}

// Parse turns raw generator text into a best-effort structured value. It never
// fails with an error; a nil result is the only failure signal. Given the same
// input it always selects the same stage and the same cut point.
func Parse(raw string, opts Options) *Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	// Stage 1: the text is already a single well-formed value.
	if v, err := decode(trimmed); err == nil {
		return &Result{Value: v, Stage: StageDirect}
	}

	span, lastClose := extractCandidate(raw)
	if span == "" {
		return nil
	}

	// Stage 2: fence-stripped payload clipped at the last closing bracket.
	if lastClose >= 0 {
		if v, err := decode(stripTrailingCommas(span[:lastClose+1])); err == nil {
			return &Result{Value: v, Stage: StageExtracted, Recovered: true}
		}
	}

	// Stage 3: strip a dangling key/value pair cut mid-token.
	truncated, repaired := truncateDanglingTail(span)

	// Stage 4: close whatever brackets the truncated prefix left open.
	if completed, ok := completeBrackets(truncated); ok {
		if v, err := decode(completed); err == nil {
			stage := StageBalanceCompletion
			if repaired {
				stage = StageTruncationRepair
			}
			return &Result{Value: v, Stage: stage, Recovered: true}
		}
	}

	// Stage 5: walk cut markers backward until one prefix parses.
	if v := searchCutPoint(truncated); v != nil {
		return &Result{Value: v, Stage: StageCutPoint, Recovered: true}
	}

	// Stage 6: rebuild an array-of-records payload from the complete
	// records that can be matched inside the array's text span.
	if opts.ArrayField != "" {
		if records := extractArrayRecords(span, opts.ArrayField, opts.RequiredKeys); len(records) > 0 {
			arr := &Value{kind: KindArray, items: records}
			obj := &Value{
				kind:    KindObject,
				members: []member{{key: opts.ArrayField, val: arr}},
				index:   map[string]int{opts.ArrayField: 0},
			}
			return &Result{Value: obj, Stage: StagePartialRecords, Recovered: true, Partial: true}
		}
	}

	// Stage 7: longest parseable prefix that still looks like the expected
	// payload.
	if len(opts.IdentifyingFields) > 0 {
		if v := longestValidPrefix(span, opts.IdentifyingFields); v != nil {
			return &Result{Value: v, Stage: StageLongestPrefix, Recovered: true}
		}
	}

	return nil
}
