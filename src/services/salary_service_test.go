// backend/src/services/salary_service_test.go
package services

import (
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hmseok/Self-Disruption-sub000/src/models"
)

var adjustmentCols = []string{
	"id", "company_id", "employee_id", "employee_name", "year_month", "adjustment_type",
	"amount", "reason", "source_flag_id", "status", "approved_by", "approved_at", "created_at",
}

func adjustmentRow(id int64, yearMonth string, amount float64, sourceFlagID driver.Value) []driver.Value {
	return []driver.Value{
		id, int64(1), int64(42), "김철수", yearMonth, "deduct",
		amount, "경비 사적사용 공제: GS25 강남점 (2024-03-15)", sourceFlagID, "pending", nil, nil,
		time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC),
	}
}

func confirmedFlag() *models.Flag {
	employeeID := int64(42)
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	return &models.Flag{
		ID:              5,
		CompanyID:       1,
		TransactionID:   "q-1:0",
		FlagType:        models.FlagPersonalUse,
		Status:          models.FlagPersonalConfirmed,
		TransactionDate: &date,
		ClientName:      "GS25 강남점",
		Amount:          30000,
		EmployeeID:      &employeeID,
		EmployeeName:    "김철수",
	}
}

func TestGenerateForFlagCreatesMonthlyDeduction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	defer db.Close()
	svc := NewSalaryAdjustmentService(db)

	mock.ExpectExec("INSERT INTO salary_adjustments").
		WithArgs(int64(1), int64(42), "김철수", "2024-03", "deduct", 30000.0,
			"경비 사적사용 공제: GS25 강남점 (2024-03-15)", int64(5), "pending").
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectExec("UPDATE flags SET salary_adjustment_id").
		WithArgs(int64(9), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM salary_adjustments WHERE id").
		WillReturnRows(sqlmock.NewRows(adjustmentCols).AddRow(adjustmentRow(9, "2024-03", 30000, int64(5))...))

	adj, err := svc.GenerateForFlag(confirmedFlag())
	if err != nil {
		t.Fatalf("GenerateForFlag: %v", err)
	}
	if adj == nil {
		t.Fatal("expected an adjustment")
	}
	if adj.YearMonth != "2024-03" {
		t.Errorf("expected year_month 2024-03, got %s", adj.YearMonth)
	}
	if adj.Type != models.AdjustmentDeduct {
		t.Errorf("expected deduct, got %s", adj.Type)
	}
	if adj.Amount != 30000 {
		t.Errorf("expected amount 30000, got %f", adj.Amount)
	}
	if adj.Status != models.AdjustmentPending {
		t.Errorf("expected pending status, got %s", adj.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGenerateForFlagIsIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	defer db.Close()
	svc := NewSalaryAdjustmentService(db)

	flag := confirmedFlag()
	linked := int64(9)
	flag.SalaryAdjustmentID = &linked

	adj, err := svc.GenerateForFlag(flag)
	if err != nil {
		t.Fatalf("GenerateForFlag: %v", err)
	}
	if adj != nil {
		t.Fatalf("back-linked flag must not generate again, got %+v", adj)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database activity: %v", err)
	}
}

func TestGenerateForFlagSkipsIneligibleFlags(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	defer db.Close()
	svc := NewSalaryAdjustmentService(db)

	noEmployee := confirmedFlag()
	noEmployee.EmployeeID = nil
	if adj, err := svc.GenerateForFlag(noEmployee); err != nil || adj != nil {
		t.Fatalf("flag without employee must be skipped, got %+v, %v", adj, err)
	}

	zeroAmount := confirmedFlag()
	zeroAmount.Amount = 0
	if adj, err := svc.GenerateForFlag(zeroAmount); err != nil || adj != nil {
		t.Fatalf("flag with zero amount must be skipped, got %+v, %v", adj, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database activity: %v", err)
	}
}

func TestCreateAdjustmentCoercesNegativeAmount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	defer db.Close()
	svc := NewSalaryAdjustmentService(db)

	mock.ExpectExec("INSERT INTO salary_adjustments").
		WithArgs(int64(1), int64(42), "김철수", "2024-03", "deduct", 50000.0, "수기 공제", "pending").
		WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectQuery("SELECT (.+) FROM salary_adjustments WHERE id").
		WillReturnRows(sqlmock.NewRows(adjustmentCols).AddRow(adjustmentRow(10, "2024-03", 50000, nil)...))

	adj, err := svc.CreateAdjustment(AdjustmentInput{
		CompanyID:    1,
		EmployeeID:   42,
		EmployeeName: "김철수",
		YearMonth:    "2024-03",
		Type:         models.AdjustmentDeduct,
		Amount:       -50000,
		Reason:       "수기 공제",
	})
	if err != nil {
		t.Fatalf("CreateAdjustment: %v", err)
	}
	if adj.Amount != 50000 {
		t.Errorf("expected absolute amount 50000, got %f", adj.Amount)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateAdjustmentValidatesInput(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	defer db.Close()
	svc := NewSalaryAdjustmentService(db)

	cases := []struct {
		name  string
		input AdjustmentInput
	}{
		{"missing employee", AdjustmentInput{CompanyID: 1, YearMonth: "2024-03", Type: models.AdjustmentDeduct, Amount: 1000}},
		{"bad year month", AdjustmentInput{CompanyID: 1, EmployeeID: 42, YearMonth: "03-2024", Type: models.AdjustmentDeduct, Amount: 1000}},
		{"unknown type", AdjustmentInput{CompanyID: 1, EmployeeID: 42, YearMonth: "2024-03", Type: "bonus", Amount: 1000}},
		{"zero amount", AdjustmentInput{CompanyID: 1, EmployeeID: 42, YearMonth: "2024-03", Type: models.AdjustmentDeduct, Amount: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateAdjustment(tc.input); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestTransitionAdjustmentsSetsApproverOnlyOnApproval(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	defer db.Close()
	svc := NewSalaryAdjustmentService(db)

	mock.ExpectExec("UPDATE salary_adjustments SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	approved := adjustmentRow(9, "2024-03", 30000, int64(5))
	approved[9] = "approved"
	approved[10] = int64(3)
	approved[11] = time.Date(2024, 3, 21, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM salary_adjustments WHERE id").
		WillReturnRows(sqlmock.NewRows(adjustmentCols).AddRow(approved...))

	result, err := svc.TransitionAdjustments([]int64{9}, models.AdjustmentApproved, 3)
	if err != nil {
		t.Fatalf("TransitionAdjustments: %v", err)
	}
	if result.Updated != 1 {
		t.Fatalf("expected 1 updated, got %d", result.Updated)
	}
	got := result.Adjustments[0]
	if got.ApprovedBy == nil || *got.ApprovedBy != 3 || got.ApprovedAt == nil {
		t.Fatalf("expected approver recorded, got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
