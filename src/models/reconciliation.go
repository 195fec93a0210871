// backend/src/models/reconciliation.go
package models

import "time"

// Direction tags the stored unsigned amount of a transaction.
type Direction string

const (
	DirectionIncome  Direction = "income"
	DirectionExpense Direction = "expense"
)

// Transaction is the unified representation of one ledger entry recovered from a
// statement document. The extraction pipeline populates the raw fields, the entity
// resolver fills in the resolved links, and reviewer actions may override the
// category or links before the row is promoted into the ledger proper.
type Transaction struct {
	ID              int64     `json:"id,omitempty"`
	QueueID         string    `json:"queue_id,omitempty"` // review-queue row this entry belongs to
	TransactionDate time.Time `json:"transaction_date"`
	ClientName      string    `json:"client_name"`
	Amount          float64   `json:"amount"`    // unsigned magnitude
	Direction       Direction `json:"direction"` // income / expense
	Currency        string    `json:"currency"`  // defaults to the local currency
	PaymentChannel  string    `json:"payment_channel"` // e.g. "card", "bank"
	CardFragment    string    `json:"card_fragment,omitempty"`
	ApprovalCode    string    `json:"approval_code,omitempty"`
	Description     string    `json:"description"`
	Confidence      int       `json:"confidence"` // model-assigned, 0-100
	Category        string    `json:"category"`   // model-suggested

	// Resolved links. At most one of these is set.
	CardID     *int64 `json:"card_id,omitempty"`
	VehicleID  *int64 `json:"vehicle_id,omitempty"`
	JiipID     *int64 `json:"jiip_id,omitempty"`
	LoanID     *int64 `json:"loan_id,omitempty"`
	EmployeeID *int64 `json:"employee_id,omitempty"`

	EmployeeName string `json:"employee_name,omitempty"`
}

// Card is a registered payment instrument. Identifier matching must always
// consider PreviousNumbers as well as Number: replaced cards keep showing up in
// older statements under their retired identifiers.
type Card struct {
	ID              int64    `json:"id"`
	CompanyID       int64    `json:"company_id"`
	Issuer          string   `json:"issuer"`
	Number          string   `json:"number"`
	PreviousNumbers []string `json:"previous_numbers,omitempty"` // oldest first
	HolderName      string   `json:"holder_name,omitempty"`
	EmployeeID      *int64   `json:"employee_id,omitempty"`
	EmployeeName    string   `json:"employee_name,omitempty"`
}

// FlagType enumerates the anomaly rules.
type FlagType string

const (
	FlagLowConfidence   FlagType = "low_confidence"
	FlagForeignCurrency FlagType = "foreign_currency"
	FlagUnusualAmount   FlagType = "unusual_amount"
	FlagUnusualTime     FlagType = "unusual_time"
	FlagPersonalUse     FlagType = "personal_use"
	FlagManual          FlagType = "manual"
)

// Severity is the ordinal urgency tag on a flag.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// FlagStatus is the review lifecycle state of a flag.
type FlagStatus string

const (
	FlagPending           FlagStatus = "pending"
	FlagReviewing         FlagStatus = "reviewing"
	FlagApproved          FlagStatus = "approved"
	FlagPersonalConfirmed FlagStatus = "personal_confirmed"
	FlagDismissed         FlagStatus = "dismissed"
)

// IsTerminal reports whether no further transition is defined out of s.
func (s FlagStatus) IsTerminal() bool {
	switch s {
	case FlagApproved, FlagPersonalConfirmed, FlagDismissed:
		return true
	}
	return false
}

// ValidFlagStatus reports whether s names a known review state.
func ValidFlagStatus(s string) bool {
	switch FlagStatus(s) {
	case FlagPending, FlagReviewing, FlagApproved, FlagPersonalConfirmed, FlagDismissed:
		return true
	}
	return false
}

// Flag is a persisted anomaly/review item attached to a transaction.
// At most one flag exists per (transaction_id, flag_type) pair; the flags table
// enforces this with a unique index, so concurrent creators cannot both insert.
type Flag struct {
	ID              int64      `json:"id"`
	CompanyID       int64      `json:"company_id"`
	TransactionID   string     `json:"transaction_id,omitempty"`
	QueueID         string     `json:"queue_id,omitempty"`
	FlagType        FlagType   `json:"flag_type"`
	FlagReason      string     `json:"flag_reason"`
	Severity        Severity   `json:"severity"`
	Status          FlagStatus `json:"status"`
	TransactionDate *time.Time `json:"transaction_date,omitempty"`
	ClientName      string     `json:"client_name,omitempty"`
	Amount          float64    `json:"amount"`
	CardID          *int64     `json:"card_id,omitempty"`
	EmployeeID      *int64     `json:"employee_id,omitempty"`
	EmployeeName    string     `json:"employee_name,omitempty"`
	ResolvedBy      *int64     `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ReviewNote      string     `json:"review_note,omitempty"`

	// Back-link to the payroll deduction generated when this flag was
	// confirmed as personal use. Also serves as the idempotency check: a
	// flag that already carries a link never generates a second adjustment.
	SalaryAdjustmentID *int64 `json:"salary_adjustment_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// AdjustmentType distinguishes payroll deductions from additions.
type AdjustmentType string

const (
	AdjustmentDeduct AdjustmentType = "deduct"
	AdjustmentAdd    AdjustmentType = "add"
)

// AdjustmentStatus is the approval state of a salary adjustment.
type AdjustmentStatus string

const (
	AdjustmentPending  AdjustmentStatus = "pending"
	AdjustmentApproved AdjustmentStatus = "approved"
	AdjustmentRejected AdjustmentStatus = "rejected"
)

// SalaryAdjustment is a payroll deduction or addition scheduled against an
// employee's monthly pay, linked back to the flag that produced it.
type SalaryAdjustment struct {
	ID           int64            `json:"id"`
	CompanyID    int64            `json:"company_id"`
	EmployeeID   int64            `json:"employee_id"`
	EmployeeName string           `json:"employee_name,omitempty"`
	YearMonth    string           `json:"year_month"` // "2006-01"
	Type         AdjustmentType   `json:"adjustment_type"`
	Amount       float64          `json:"amount"`
	Reason       string           `json:"reason"`
	SourceFlagID *int64           `json:"source_flag_id,omitempty"`
	Status       AdjustmentStatus `json:"status"`
	ApprovedBy   *int64           `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time       `json:"approved_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}
