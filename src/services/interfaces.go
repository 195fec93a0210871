// backend/src/services/interfaces.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/hmseok/Self-Disruption-sub000/src/models"
	"github.com/hmseok/Self-Disruption-sub000/src/parsers/llmjson"
)

// Common service errors. Handlers map these onto the HTTP error taxonomy:
// an empty document is terminal, an unrecoverable response means every
// repair stage was exhausted, validation failures are 400s.
var (
	ErrEmptyDocument         = errors.New("document text is empty")
	ErrUnrecoverableResponse = errors.New("generator response could not be parsed")
	ErrNoFlagsSelected       = errors.New("no flag ids supplied")
)

// FlagSpec is one flag to create, as supplied by the anomaly scan or by a
// manual reviewer action.
type FlagSpec struct {
	TransactionID   string          `json:"transaction_id"`
	QueueID         string          `json:"queue_id"`
	FlagType        models.FlagType `json:"flag_type"`
	FlagReason      string          `json:"flag_reason"`
	Severity        models.Severity `json:"severity"`
	TransactionDate *time.Time      `json:"transaction_date,omitempty"`
	ClientName      string          `json:"client_name"`
	Amount          float64         `json:"amount"`
	CardID          *int64          `json:"card_id,omitempty"`
	EmployeeID      *int64          `json:"employee_id,omitempty"`
	EmployeeName    string          `json:"employee_name"`
}

// FlagQueryParams filters the flag listing. Status accepts the five lifecycle
// states plus the pseudo-status "unresolved" (= pending or reviewing).
type FlagQueryParams struct {
	CompanyID  int64
	Status     string
	FlagType   string
	CardID     *int64
	EmployeeID *int64
	Limit      int
	Offset     int
}

// FlagSummary carries total counts per status for the filtered set,
// disregarding pagination.
type FlagSummary struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

// FlagPage is one page of flags ordered by creation time descending.
type FlagPage struct {
	Flags   []models.Flag `json:"flags"`
	Summary FlagSummary   `json:"summary"`
}

// FlagCreateResult reports how many specs were actually persisted; duplicates
// are skipped silently and do not count.
type FlagCreateResult struct {
	Created int           `json:"created"`
	Flags   []models.Flag `json:"flags"`
}

// FlagTransitionResult reports the per-item outcome of a batch transition.
type FlagTransitionResult struct {
	Updated            int           `json:"updated"`
	AdjustmentsCreated int           `json:"adjustments_created"`
	Flags              []models.Flag `json:"flags"`
}

// FlagService owns the flag lifecycle: creation with dedup, querying, and the
// review state machine with its payroll side effect.
type FlagService interface {
	ListFlags(params FlagQueryParams) (*FlagPage, error)
	CreateFlags(companyID int64, specs []FlagSpec) (*FlagCreateResult, error)
	// TransitionFlags moves every flag in ids to target as a best-effort
	// batch: item failures are logged and skipped, terminal flags are
	// never moved again. When target is personal_confirmed and
	// createSalaryAdjustment is true, eligible flags generate a payroll
	// deduction.
	TransitionFlags(ids []int64, target models.FlagStatus, reviewerID int64, note string, createSalaryAdjustment bool) (*FlagTransitionResult, error)
}

// AdjustmentQueryParams filters the salary adjustment listing.
type AdjustmentQueryParams struct {
	CompanyID  int64
	EmployeeID *int64
	YearMonth  string
	Status     string
	Limit      int
	Offset     int
}

// EmployeeAdjustmentSummary aggregates one employee's adjustments in the
// filtered set.
type EmployeeAdjustmentSummary struct {
	EmployeeID   int64   `json:"employee_id"`
	EmployeeName string  `json:"employee_name"`
	Deduct       float64 `json:"deduct"`
	Add          float64 `json:"add"`
	Net          float64 `json:"net"`
}

// AdjustmentPage is one page of adjustments plus per-employee totals.
type AdjustmentPage struct {
	Adjustments []models.SalaryAdjustment   `json:"adjustments"`
	Summary     []EmployeeAdjustmentSummary `json:"summary"`
}

// AdjustmentInput is a manually created salary adjustment.
type AdjustmentInput struct {
	CompanyID    int64                 `json:"company_id"`
	EmployeeID   int64                 `json:"employee_id"`
	EmployeeName string                `json:"employee_name"`
	YearMonth    string                `json:"year_month"`
	Type         models.AdjustmentType `json:"adjustment_type"`
	Amount       float64               `json:"amount"`
	Reason       string                `json:"reason"`
}

// AdjustmentTransitionResult reports a batch adjustment transition.
type AdjustmentTransitionResult struct {
	Updated     int                       `json:"updated"`
	Adjustments []models.SalaryAdjustment `json:"adjustments"`
}

// SalaryAdjustmentService generates payroll deductions from confirmed flags
// and mirrors the flag endpoints for manual management.
type SalaryAdjustmentService interface {
	// GenerateForFlag creates the deduction for a personal_confirmed flag.
	// Returns (nil, nil) when the flag fails the precondition (no
	// employee, zero amount, or an adjustment already back-linked).
	GenerateForFlag(flag *models.Flag) (*models.SalaryAdjustment, error)
	ListAdjustments(params AdjustmentQueryParams) (*AdjustmentPage, error)
	CreateAdjustment(input AdjustmentInput) (*models.SalaryAdjustment, error)
	TransitionAdjustments(ids []int64, target models.AdjustmentStatus, approverID int64) (*AdjustmentTransitionResult, error)
}

// CardService serves the card registry the entity resolver matches against.
type CardService interface {
	// Registry returns every card of the company, current and historical
	// identifiers included, in registration order. Results are cached.
	Registry(companyID int64) ([]models.Card, error)
	CreateCard(card models.Card) (*models.Card, error)
	InvalidateRegistry(companyID int64)
}

// ExtractionOutcome is what one document extraction produced.
type ExtractionOutcome struct {
	QueueID      string               `json:"queue_id"`
	Transactions []models.Transaction `json:"transactions"`
	Recovered    bool                 `json:"recovered"`
	Partial      bool                 `json:"partial"`
	Stage        llmjson.Stage        `json:"-"`
	StageName    string               `json:"recovery_stage"`
	FlagsCreated int                  `json:"flags_created"`
}

// ExtractionService turns raw statement text into enriched, scanned,
// persisted queue transactions.
type ExtractionService interface {
	ExtractTransactions(ctx context.Context, companyID int64, documentText, docTypeHint string) (*ExtractionOutcome, error)
}
