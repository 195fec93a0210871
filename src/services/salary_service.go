// backend/src/services/salary_service.go
package services

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hmseok/Self-Disruption-sub000/src/logger"
	"github.com/hmseok/Self-Disruption-sub000/src/models"
	"github.com/hmseok/Self-Disruption-sub000/src/prom"
	"github.com/hmseok/Self-Disruption-sub000/src/security/validation"
)

const adjustmentColumns = `id, company_id, employee_id, employee_name, year_month, adjustment_type,
	amount, reason, source_flag_id, status, approved_by, approved_at, created_at`

type salaryServiceImpl struct {
	db *sql.DB
}

func NewSalaryAdjustmentService(db *sql.DB) SalaryAdjustmentService {
	return &salaryServiceImpl{db: db}
}

func scanAdjustment(row rowScanner) (*models.SalaryAdjustment, error) {
	var a models.SalaryAdjustment
	err := row.Scan(
		&a.ID, &a.CompanyID, &a.EmployeeID, &a.EmployeeName, &a.YearMonth, &a.Type,
		&a.Amount, &a.Reason, &a.SourceFlagID, &a.Status, &a.ApprovedBy, &a.ApprovedAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GenerateForFlag creates the pending payroll deduction for a confirmed
// personal-use flag. The flag's back-link doubles as the idempotency check,
// so confirming the same flag twice never deducts twice.
func (s *salaryServiceImpl) GenerateForFlag(flag *models.Flag) (*models.SalaryAdjustment, error) {
	if flag == nil {
		return nil, nil
	}
	if flag.SalaryAdjustmentID != nil {
		logger.L.Info("Flag already linked to an adjustment, skipping generation",
			slog.Int64("flagID", flag.ID), slog.Int64("adjustmentID", *flag.SalaryAdjustmentID))
		return nil, nil
	}
	if flag.EmployeeID == nil || flag.Amount <= 0 {
		return nil, nil
	}

	yearMonth := time.Now().Format("2006-01")
	dateLabel := "날짜 미상"
	if flag.TransactionDate != nil {
		yearMonth = flag.TransactionDate.Format("2006-01")
		dateLabel = flag.TransactionDate.Format("2006-01-02")
	}
	clientLabel := flag.ClientName
	if clientLabel == "" {
		clientLabel = "미상 가맹점"
	}
	reason := fmt.Sprintf("경비 사적사용 공제: %s (%s)", clientLabel, dateLabel)

	res, err := s.db.Exec(`
		INSERT INTO salary_adjustments (company_id, employee_id, employee_name, year_month,
			adjustment_type, amount, reason, source_flag_id, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		flag.CompanyID, *flag.EmployeeID, flag.EmployeeName, yearMonth,
		string(models.AdjustmentDeduct), flag.Amount, reason, flag.ID, string(models.AdjustmentPending))
	if err != nil {
		return nil, fmt.Errorf("inserting salary adjustment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading adjustment id: %w", err)
	}

	// The back-link is best effort. An orphaned link costs a log line,
	// losing the deduction would cost money.
	if _, err := s.db.Exec(`UPDATE flags SET salary_adjustment_id = ? WHERE id = ?`, id, flag.ID); err != nil {
		logger.L.Error("Failed to back-link adjustment on flag",
			slog.Int64("flagID", flag.ID), slog.Int64("adjustmentID", id),
			slog.String("error", err.Error()))
	}

	prom.AdjustmentsCreatedTotal.Inc()
	logger.L.Info("Salary adjustment generated from flag",
		slog.Int64("flagID", flag.ID), slog.Int64("adjustmentID", id),
		slog.String("yearMonth", yearMonth), slog.Float64("amount", flag.Amount))
	return s.getAdjustment(id)
}

func (s *salaryServiceImpl) getAdjustment(id int64) (*models.SalaryAdjustment, error) {
	row := s.db.QueryRow(fmt.Sprintf(`SELECT %s FROM salary_adjustments WHERE id = ?`, adjustmentColumns), id)
	return scanAdjustment(row)
}

func (s *salaryServiceImpl) ListAdjustments(params AdjustmentQueryParams) (*AdjustmentPage, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultFlagLimit
	}
	if limit > maxFlagLimit {
		limit = maxFlagLimit
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	where := []string{"company_id = ?"}
	args := []interface{}{params.CompanyID}
	if params.EmployeeID != nil {
		where = append(where, "employee_id = ?")
		args = append(args, *params.EmployeeID)
	}
	if params.YearMonth != "" {
		if err := validation.ValidateYearMonth(params.YearMonth); err != nil {
			return nil, err
		}
		where = append(where, "year_month = ?")
		args = append(args, params.YearMonth)
	}
	if params.Status != "" {
		where = append(where, "status = ?")
		args = append(args, params.Status)
	}

	query := fmt.Sprintf(`SELECT %s FROM salary_adjustments WHERE %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		adjustmentColumns, strings.Join(where, " AND "))
	rows, err := s.db.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying salary adjustments: %w", err)
	}
	defer rows.Close()

	adjustments := []models.SalaryAdjustment{}
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning adjustment row: %w", err)
		}
		adjustments = append(adjustments, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating adjustments: %w", err)
	}

	summary, err := s.summarizeByEmployee(where, args)
	if err != nil {
		return nil, err
	}
	return &AdjustmentPage{Adjustments: adjustments, Summary: summary}, nil
}

// summarizeByEmployee folds deduct and add totals into a net figure per
// employee over the filtered set, disregarding pagination. Decimal arithmetic
// keeps the net exact even when the monthly totals run into the billions.
func (s *salaryServiceImpl) summarizeByEmployee(where []string, args []interface{}) ([]EmployeeAdjustmentSummary, error) {
	query := fmt.Sprintf(`
		SELECT employee_id, employee_name, adjustment_type, SUM(amount)
		FROM salary_adjustments WHERE %s
		GROUP BY employee_id, employee_name, adjustment_type`,
		strings.Join(where, " AND "))
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("summarizing adjustments: %w", err)
	}
	defer rows.Close()

	byEmployee := map[int64]*EmployeeAdjustmentSummary{}
	for rows.Next() {
		var employeeID int64
		var employeeName, adjType string
		var total float64
		if err := rows.Scan(&employeeID, &employeeName, &adjType, &total); err != nil {
			return nil, fmt.Errorf("scanning adjustment summary: %w", err)
		}
		entry, ok := byEmployee[employeeID]
		if !ok {
			entry = &EmployeeAdjustmentSummary{EmployeeID: employeeID, EmployeeName: employeeName}
			byEmployee[employeeID] = entry
		}
		switch models.AdjustmentType(adjType) {
		case models.AdjustmentDeduct:
			entry.Deduct = total
		case models.AdjustmentAdd:
			entry.Add = total
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating adjustment summary: %w", err)
	}

	summary := make([]EmployeeAdjustmentSummary, 0, len(byEmployee))
	for _, entry := range byEmployee {
		net := decimal.NewFromFloat(entry.Add).Sub(decimal.NewFromFloat(entry.Deduct))
		entry.Net = net.InexactFloat64()
		summary = append(summary, *entry)
	}
	sort.Slice(summary, func(i, j int) bool { return summary[i].EmployeeID < summary[j].EmployeeID })
	return summary, nil
}

func (s *salaryServiceImpl) CreateAdjustment(input AdjustmentInput) (*models.SalaryAdjustment, error) {
	if input.EmployeeID <= 0 {
		return nil, fmt.Errorf("%w: employee_id is required", validation.ErrValidationFailed)
	}
	if err := validation.ValidateYearMonth(input.YearMonth); err != nil {
		return nil, err
	}
	switch input.Type {
	case models.AdjustmentDeduct, models.AdjustmentAdd:
	default:
		return nil, fmt.Errorf("%w: unknown adjustment type %q", validation.ErrValidationFailed, input.Type)
	}
	amount := decimal.NewFromFloat(input.Amount).Abs()
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: amount must be non-zero", validation.ErrValidationFailed)
	}
	reason := validation.SanitizeText(input.Reason)
	if len(reason) > validation.MaxReasonLength {
		reason = reason[:validation.MaxReasonLength]
	}
	// Reasons land in payroll spreadsheet exports.
	if err := validation.CheckFormulaInjection(reason, "reason", ""); err != nil {
		return nil, err
	}

	res, err := s.db.Exec(`
		INSERT INTO salary_adjustments (company_id, employee_id, employee_name, year_month,
			adjustment_type, amount, reason, source_flag_id, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?)`,
		input.CompanyID, input.EmployeeID, validation.SanitizeText(input.EmployeeName), input.YearMonth,
		string(input.Type), amount.InexactFloat64(), reason, string(models.AdjustmentPending))
	if err != nil {
		return nil, fmt.Errorf("inserting salary adjustment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading adjustment id: %w", err)
	}
	prom.AdjustmentsCreatedTotal.Inc()
	return s.getAdjustment(id)
}

func (s *salaryServiceImpl) TransitionAdjustments(ids []int64, target models.AdjustmentStatus, approverID int64) (*AdjustmentTransitionResult, error) {
	if len(ids) == 0 {
		return nil, ErrNoFlagsSelected
	}
	switch target {
	case models.AdjustmentPending, models.AdjustmentApproved, models.AdjustmentRejected:
	default:
		return nil, fmt.Errorf("%w: unknown adjustment status %q", validation.ErrValidationFailed, target)
	}

	result := &AdjustmentTransitionResult{Adjustments: []models.SalaryAdjustment{}}
	for _, id := range ids {
		var approvedBy *int64
		var approvedAt *time.Time
		if target == models.AdjustmentApproved {
			now := time.Now().UTC()
			approvedBy = &approverID
			approvedAt = &now
		}
		res, err := s.db.Exec(`
			UPDATE salary_adjustments SET status = ?, approved_by = ?, approved_at = ?
			WHERE id = ?`,
			string(target), approvedBy, approvedAt, id)
		if err != nil {
			logger.L.Error("Failed to transition adjustment, continuing batch",
				slog.Int64("adjustmentID", id), slog.String("error", err.Error()))
			continue
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("reading update outcome: %w", err)
		}
		if affected == 0 {
			logger.L.Warn("Adjustment not found during transition, skipping", slog.Int64("adjustmentID", id))
			continue
		}
		updated, err := s.getAdjustment(id)
		if err != nil {
			logger.L.Error("Transitioned adjustment could not be read back",
				slog.Int64("adjustmentID", id), slog.String("error", err.Error()))
			continue
		}
		result.Updated++
		result.Adjustments = append(result.Adjustments, *updated)
	}
	return result, nil
}
