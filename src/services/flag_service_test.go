// backend/src/services/flag_service_test.go
package services

import (
	"database/sql/driver"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hmseok/Self-Disruption-sub000/src/logger"
	"github.com/hmseok/Self-Disruption-sub000/src/models"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

var flagCols = []string{
	"id", "company_id", "transaction_id", "queue_id", "flag_type", "flag_reason", "severity", "status",
	"transaction_date", "client_name", "amount", "card_id", "employee_id", "employee_name",
	"resolved_by", "resolved_at", "review_note", "salary_adjustment_id", "created_at",
}

func pendingFlagRow(id int64, txID string, flagType string, employeeID driver.Value, amount float64) []driver.Value {
	return []driver.Value{
		id, int64(1), txID, "q-1", flagType, "reason", "medium", "pending",
		time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), "GS25 강남점", amount, nil, employeeID, "김철수",
		nil, nil, "", nil, time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC),
	}
}

// stubSalaryService records GenerateForFlag calls.
type stubSalaryService struct {
	generated []int64
	result    *models.SalaryAdjustment
	err       error
}

func (s *stubSalaryService) GenerateForFlag(flag *models.Flag) (*models.SalaryAdjustment, error) {
	s.generated = append(s.generated, flag.ID)
	return s.result, s.err
}
func (s *stubSalaryService) ListAdjustments(AdjustmentQueryParams) (*AdjustmentPage, error) {
	return nil, errors.New("not implemented")
}
func (s *stubSalaryService) CreateAdjustment(AdjustmentInput) (*models.SalaryAdjustment, error) {
	return nil, errors.New("not implemented")
}
func (s *stubSalaryService) TransitionAdjustments([]int64, models.AdjustmentStatus, int64) (*AdjustmentTransitionResult, error) {
	return nil, errors.New("not implemented")
}

func TestCreateFlagsSkipsDuplicates(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	defer db.Close()
	svc := NewFlagService(db, &stubSalaryService{})

	spec := FlagSpec{
		TransactionID: "q-1:0",
		QueueID:       "q-1",
		FlagType:      models.FlagPersonalUse,
		FlagReason:    "사적 사용 의심 가맹점입니다 (GS25)",
		Severity:      models.SeverityMedium,
		Amount:        30000,
	}

	// First insert lands.
	mock.ExpectExec("INSERT INTO flags").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery("SELECT (.+) FROM flags WHERE id").
		WillReturnRows(sqlmock.NewRows(flagCols).AddRow(pendingFlagRow(7, "q-1:0", "personal_use", nil, 30000)...))

	result, err := svc.CreateFlags(1, []FlagSpec{spec})
	if err != nil {
		t.Fatalf("CreateFlags: %v", err)
	}
	if result.Created != 1 {
		t.Fatalf("expected 1 created, got %d", result.Created)
	}

	// Same identity again: the unique index swallows it silently.
	mock.ExpectExec("INSERT INTO flags").WillReturnResult(sqlmock.NewResult(0, 0))

	result, err = svc.CreateFlags(1, []FlagSpec{spec})
	if err != nil {
		t.Fatalf("CreateFlags duplicate: %v", err)
	}
	if result.Created != 0 {
		t.Fatalf("expected 0 created on duplicate, got %d", result.Created)
	}
	if len(result.Flags) != 0 {
		t.Fatalf("expected no flags returned for duplicate, got %d", len(result.Flags))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateFlagsSkipsSpecWithoutType(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	defer db.Close()
	svc := NewFlagService(db, &stubSalaryService{})

	result, err := svc.CreateFlags(1, []FlagSpec{{FlagReason: "typeless"}})
	if err != nil {
		t.Fatalf("CreateFlags: %v", err)
	}
	if result.Created != 0 {
		t.Fatalf("expected 0 created, got %d", result.Created)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTransitionFlagsPersonalConfirmedGeneratesAdjustment(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	defer db.Close()
	salary := &stubSalaryService{result: &models.SalaryAdjustment{ID: 9}}
	svc := NewFlagService(db, salary)

	mock.ExpectQuery("SELECT (.+) FROM flags WHERE id").
		WillReturnRows(sqlmock.NewRows(flagCols).AddRow(pendingFlagRow(7, "q-1:0", "personal_use", int64(42), 30000)...))
	mock.ExpectExec("UPDATE flags SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	confirmed := pendingFlagRow(7, "q-1:0", "personal_use", int64(42), 30000)
	confirmed[7] = "personal_confirmed"
	mock.ExpectQuery("SELECT (.+) FROM flags WHERE id").
		WillReturnRows(sqlmock.NewRows(flagCols).AddRow(confirmed...))

	result, err := svc.TransitionFlags([]int64{7}, models.FlagPersonalConfirmed, 3, "개인 사용 확인", true)
	if err != nil {
		t.Fatalf("TransitionFlags: %v", err)
	}
	if result.Updated != 1 {
		t.Fatalf("expected 1 updated, got %d", result.Updated)
	}
	if result.AdjustmentsCreated != 1 {
		t.Fatalf("expected 1 adjustment created, got %d", result.AdjustmentsCreated)
	}
	if len(salary.generated) != 1 || salary.generated[0] != 7 {
		t.Fatalf("expected generation for flag 7, got %v", salary.generated)
	}
	if len(result.Flags) != 1 || result.Flags[0].SalaryAdjustmentID == nil || *result.Flags[0].SalaryAdjustmentID != 9 {
		t.Fatalf("expected back-linked flag in result, got %+v", result.Flags)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTransitionFlagsDismissedNeverGeneratesAdjustment(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	defer db.Close()
	salary := &stubSalaryService{result: &models.SalaryAdjustment{ID: 9}}
	svc := NewFlagService(db, salary)

	mock.ExpectQuery("SELECT (.+) FROM flags WHERE id").
		WillReturnRows(sqlmock.NewRows(flagCols).AddRow(pendingFlagRow(7, "q-1:0", "personal_use", int64(42), 30000)...))
	mock.ExpectExec("UPDATE flags SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	dismissed := pendingFlagRow(7, "q-1:0", "personal_use", int64(42), 30000)
	dismissed[7] = "dismissed"
	mock.ExpectQuery("SELECT (.+) FROM flags WHERE id").
		WillReturnRows(sqlmock.NewRows(flagCols).AddRow(dismissed...))

	result, err := svc.TransitionFlags([]int64{7}, models.FlagDismissed, 3, "", true)
	if err != nil {
		t.Fatalf("TransitionFlags: %v", err)
	}
	if result.Updated != 1 {
		t.Fatalf("expected 1 updated, got %d", result.Updated)
	}
	if len(salary.generated) != 0 {
		t.Fatalf("dismissal must not generate adjustments, got %v", salary.generated)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTransitionFlagsReviewingRecordsReviewer(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	defer db.Close()
	svc := NewFlagService(db, &stubSalaryService{})

	mock.ExpectQuery("SELECT (.+) FROM flags WHERE id").
		WillReturnRows(sqlmock.NewRows(flagCols).AddRow(pendingFlagRow(7, "q-1:0", "personal_use", int64(42), 30000)...))
	// Reviewer id lands on the row; resolved_at stays null for a non-terminal target.
	mock.ExpectExec("UPDATE flags SET status").
		WithArgs("reviewing", int64(3), nil, "검토 시작", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	reviewing := pendingFlagRow(7, "q-1:0", "personal_use", int64(42), 30000)
	reviewing[7] = "reviewing"
	mock.ExpectQuery("SELECT (.+) FROM flags WHERE id").
		WillReturnRows(sqlmock.NewRows(flagCols).AddRow(reviewing...))

	result, err := svc.TransitionFlags([]int64{7}, models.FlagReviewing, 3, "검토 시작", false)
	if err != nil {
		t.Fatalf("TransitionFlags: %v", err)
	}
	if result.Updated != 1 {
		t.Fatalf("expected 1 updated, got %d", result.Updated)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTransitionFlagsSkipsTerminalFlags(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	defer db.Close()
	salary := &stubSalaryService{}
	svc := NewFlagService(db, salary)

	approved := pendingFlagRow(7, "q-1:0", "unusual_amount", nil, 5500000)
	approved[7] = "approved"
	mock.ExpectQuery("SELECT (.+) FROM flags WHERE id").
		WillReturnRows(sqlmock.NewRows(flagCols).AddRow(approved...))

	result, err := svc.TransitionFlags([]int64{7}, models.FlagReviewing, 3, "", false)
	if err != nil {
		t.Fatalf("TransitionFlags: %v", err)
	}
	if result.Updated != 0 {
		t.Fatalf("terminal flag must not move, got %d updated", result.Updated)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTransitionFlagsRejectsUnknownTarget(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	defer db.Close()
	svc := NewFlagService(db, &stubSalaryService{})

	if _, err := svc.TransitionFlags([]int64{7}, models.FlagStatus("archived"), 3, "", false); err == nil {
		t.Fatal("expected validation error for unknown target status")
	}
	if _, err := svc.TransitionFlags(nil, models.FlagDismissed, 3, "", false); !errors.Is(err, ErrNoFlagsSelected) {
		t.Fatalf("expected ErrNoFlagsSelected, got %v", err)
	}
}

func TestListFlagsUnresolvedPseudoStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	defer db.Close()
	svc := NewFlagService(db, &stubSalaryService{})

	mock.ExpectQuery("SELECT (.+) FROM flags WHERE company_id = \\? AND status IN \\(\\?, \\?\\)").
		WithArgs(int64(1), "pending", "reviewing", 50, 0).
		WillReturnRows(sqlmock.NewRows(flagCols).
			AddRow(pendingFlagRow(7, "q-1:0", "personal_use", int64(42), 30000)...))
	// The summary ignores the status filter, so resolved flags still show up.
	mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) FROM flags").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 4).
			AddRow("reviewing", 2).
			AddRow("dismissed", 3))

	page, err := svc.ListFlags(FlagQueryParams{CompanyID: 1, Status: "unresolved"})
	if err != nil {
		t.Fatalf("ListFlags: %v", err)
	}
	if len(page.Flags) != 1 {
		t.Fatalf("expected 1 flag, got %d", len(page.Flags))
	}
	if page.Summary.Total != 9 || page.Summary.ByStatus["pending"] != 4 || page.Summary.ByStatus["dismissed"] != 3 {
		t.Fatalf("unexpected summary: %+v", page.Summary)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestListFlagsRejectsUnknownStatus(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	defer db.Close()
	svc := NewFlagService(db, &stubSalaryService{})

	if _, err := svc.ListFlags(FlagQueryParams{CompanyID: 1, Status: "archived"}); err == nil {
		t.Fatal("expected validation error for unknown status filter")
	}
}
