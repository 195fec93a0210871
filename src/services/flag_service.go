// backend/src/services/flag_service.go
package services

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hmseok/Self-Disruption-sub000/src/logger"
	"github.com/hmseok/Self-Disruption-sub000/src/models"
	"github.com/hmseok/Self-Disruption-sub000/src/prom"
	"github.com/hmseok/Self-Disruption-sub000/src/security/validation"
)

const (
	defaultFlagLimit = 50
	maxFlagLimit     = 500
)

const flagColumns = `id, company_id, transaction_id, queue_id, flag_type, flag_reason, severity, status,
	transaction_date, client_name, amount, card_id, employee_id, employee_name,
	resolved_by, resolved_at, review_note, salary_adjustment_id, created_at`

type flagServiceImpl struct {
	db        *sql.DB
	salarySvc SalaryAdjustmentService
}

func NewFlagService(db *sql.DB, salarySvc SalaryAdjustmentService) FlagService {
	return &flagServiceImpl{db: db, salarySvc: salarySvc}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFlag(row rowScanner) (*models.Flag, error) {
	var f models.Flag
	err := row.Scan(
		&f.ID, &f.CompanyID, &f.TransactionID, &f.QueueID, &f.FlagType, &f.FlagReason, &f.Severity, &f.Status,
		&f.TransactionDate, &f.ClientName, &f.Amount, &f.CardID, &f.EmployeeID, &f.EmployeeName,
		&f.ResolvedBy, &f.ResolvedAt, &f.ReviewNote, &f.SalaryAdjustmentID, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *flagServiceImpl) ListFlags(params FlagQueryParams) (*FlagPage, error) {
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
	if params.FlagType != "" {
		where = append(where, "flag_type = ?")
		args = append(args, params.FlagType)
	}
	if params.CardID != nil {
		where = append(where, "card_id = ?")
		args = append(args, *params.CardID)
	}
	if params.EmployeeID != nil {
		where = append(where, "employee_id = ?")
		args = append(args, *params.EmployeeID)
	}

	// The status filter narrows the page only; the summary always counts
	// every status over the remaining filters.
	listWhere := append([]string(nil), where...)
	listArgs := append([]interface{}(nil), args...)
	switch params.Status {
	case "":
		// no status filter
	case "unresolved":
		listWhere = append(listWhere, "status IN (?, ?)")
		listArgs = append(listArgs, string(models.FlagPending), string(models.FlagReviewing))
	default:
		if !models.ValidFlagStatus(params.Status) {
			return nil, fmt.Errorf("%w: unknown status %q", validation.ErrValidationFailed, params.Status)
		}
		listWhere = append(listWhere, "status = ?")
		listArgs = append(listArgs, params.Status)
	}

	query := fmt.Sprintf(`SELECT %s FROM flags WHERE %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		flagColumns, strings.Join(listWhere, " AND "))
	rows, err := s.db.Query(query, append(listArgs, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying flags: %w", err)
	}
	defer rows.Close()

	flags := []models.Flag{}
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning flag row: %w", err)
		}
		flags = append(flags, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating flags: %w", err)
	}

	summary, err := s.summarize(where, args)
	if err != nil {
		return nil, err
	}
	return &FlagPage{Flags: flags, Summary: *summary}, nil
}

// summarize counts per status over the non-status filters, disregarding
// pagination, so a status-filtered page still shows how the rest of the
// flags are distributed.
func (s *flagServiceImpl) summarize(where []string, args []interface{}) (*FlagSummary, error) {
	query := fmt.Sprintf(`SELECT status, COUNT(*) FROM flags WHERE %s GROUP BY status`,
		strings.Join(where, " AND "))
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("summarizing flags: %w", err)
	}
	defer rows.Close()

	summary := FlagSummary{ByStatus: map[string]int{}}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning flag summary: %w", err)
		}
		summary.ByStatus[status] = count
		summary.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating flag summary: %w", err)
	}
	return &summary, nil
}

// CreateFlags persists specs one by one. A spec whose (transaction_id,
// flag_type) pair already exists is skipped without error; a spec that fails
// on its own is logged and skipped so the rest of the batch still lands.
func (s *flagServiceImpl) CreateFlags(companyID int64, specs []FlagSpec) (*FlagCreateResult, error) {
	result := &FlagCreateResult{Flags: []models.Flag{}}
	for _, spec := range specs {
		if spec.FlagType == "" {
			logger.L.Warn("Skipping flag spec without a type", slog.Int64("companyID", companyID))
			continue
		}
		severity := spec.Severity
		if severity == "" {
			severity = models.SeverityMedium
		}
		reason := validation.SanitizeText(spec.FlagReason)
		if len(reason) > validation.MaxReasonLength {
			reason = reason[:validation.MaxReasonLength]
		}

		res, err := s.db.Exec(`
			INSERT INTO flags (company_id, transaction_id, queue_id, flag_type, flag_reason, severity, status,
				transaction_date, client_name, amount, card_id, employee_id, employee_name)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(transaction_id, flag_type) WHERE transaction_id != '' DO NOTHING`,
			companyID, spec.TransactionID, spec.QueueID, string(spec.FlagType), reason, string(severity),
			string(models.FlagPending), spec.TransactionDate, validation.SanitizeText(spec.ClientName),
			spec.Amount, spec.CardID, spec.EmployeeID, validation.SanitizeText(spec.EmployeeName))
		if err != nil {
			logger.L.Error("Failed to insert flag, continuing batch",
				slog.Int64("companyID", companyID),
				slog.String("flagType", string(spec.FlagType)),
				slog.String("error", err.Error()))
			continue
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("reading insert outcome: %w", err)
		}
		if affected == 0 {
			prom.FlagsDeduplicatedTotal.Inc()
			continue
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("reading flag id: %w", err)
		}

		f, err := s.getFlag(id)
		if err != nil {
			logger.L.Error("Inserted flag could not be read back",
				slog.Int64("flagID", id), slog.String("error", err.Error()))
			continue
		}
		result.Created++
		result.Flags = append(result.Flags, *f)
		prom.FlagsCreatedTotal.WithLabelValues(string(spec.FlagType)).Inc()
	}
	return result, nil
}

func (s *flagServiceImpl) getFlag(id int64) (*models.Flag, error) {
	row := s.db.QueryRow(fmt.Sprintf(`SELECT %s FROM flags WHERE id = ?`, flagColumns), id)
	return scanFlag(row)
}

// TransitionFlags applies the review state machine. Flags already in a
// terminal state are skipped; everything else may move to any valid target.
func (s *flagServiceImpl) TransitionFlags(ids []int64, target models.FlagStatus, reviewerID int64, note string, createSalaryAdjustment bool) (*FlagTransitionResult, error) {
	if len(ids) == 0 {
		return nil, ErrNoFlagsSelected
	}
	if !models.ValidFlagStatus(string(target)) {
		return nil, fmt.Errorf("%w: unknown target status %q", validation.ErrValidationFailed, target)
	}
	note = validation.SanitizeText(note)
	if len(note) > validation.MaxNoteLength {
		note = note[:validation.MaxNoteLength]
	}
	if err := validation.CheckFormulaInjection(note, "review_note", ""); err != nil {
		return nil, err
	}

	result := &FlagTransitionResult{Flags: []models.Flag{}}
	for _, id := range ids {
		flag, err := s.getFlag(id)
		if err != nil {
			logger.L.Warn("Flag not found during transition, skipping",
				slog.Int64("flagID", id), slog.String("error", err.Error()))
			continue
		}
		if flag.Status.IsTerminal() {
			logger.L.Info("Flag already resolved, skipping transition",
				slog.Int64("flagID", id), slog.String("status", string(flag.Status)))
			continue
		}

		// Reviewer identity is recorded on every transition, including
		// pending -> reviewing; only the resolution timestamp waits for a
		// terminal state.
		var resolvedAt *time.Time
		if target.IsTerminal() {
			now := time.Now().UTC()
			resolvedAt = &now
		}
		_, err = s.db.Exec(`
			UPDATE flags SET status = ?, resolved_by = ?, resolved_at = ?, review_note = ?
			WHERE id = ?`,
			string(target), reviewerID, resolvedAt, note, id)
		if err != nil {
			logger.L.Error("Failed to transition flag, continuing batch",
				slog.Int64("flagID", id), slog.String("error", err.Error()))
			continue
		}

		updated, err := s.getFlag(id)
		if err != nil {
			logger.L.Error("Transitioned flag could not be read back",
				slog.Int64("flagID", id), slog.String("error", err.Error()))
			continue
		}
		result.Updated++

		if target == models.FlagPersonalConfirmed && createSalaryAdjustment {
			adj, err := s.salarySvc.GenerateForFlag(updated)
			if err != nil {
				logger.L.Error("Salary adjustment generation failed, flag stays confirmed",
					slog.Int64("flagID", id), slog.String("error", err.Error()))
			} else if adj != nil {
				result.AdjustmentsCreated++
				updated.SalaryAdjustmentID = &adj.ID
			}
		}
		result.Flags = append(result.Flags, *updated)
	}

	logger.L.Info("Flag batch transition finished",
		slog.String("target", string(target)),
		slog.Int("requested", len(ids)),
		slog.Int("updated", result.Updated),
		slog.Int("adjustmentsCreated", result.AdjustmentsCreated))
	return result, nil
}
