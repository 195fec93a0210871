// backend/src/services/extraction_service_test.go
package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hmseok/Self-Disruption-sub000/src/models"
)

// fakeChat returns canned responses in order and records the prompts it saw.
type fakeChat struct {
	responses []string
	systems   []string
	err       error
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	if len(req.Messages) > 0 {
		f.systems = append(f.systems, req.Messages[0].Content)
	}
	content := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}, nil
}

type stubCardService struct {
	registry []models.Card
}

func (s *stubCardService) Registry(companyID int64) ([]models.Card, error) { return s.registry, nil }
func (s *stubCardService) CreateCard(card models.Card) (*models.Card, error) {
	return nil, errors.New("not implemented")
}
func (s *stubCardService) InvalidateRegistry(companyID int64) {}

type stubFlagService struct {
	specs []FlagSpec
}

func (s *stubFlagService) ListFlags(FlagQueryParams) (*FlagPage, error) {
	return nil, errors.New("not implemented")
}
func (s *stubFlagService) CreateFlags(companyID int64, specs []FlagSpec) (*FlagCreateResult, error) {
	s.specs = append(s.specs, specs...)
	return &FlagCreateResult{Created: len(specs)}, nil
}
func (s *stubFlagService) TransitionFlags([]int64, models.FlagStatus, int64, string, bool) (*FlagTransitionResult, error) {
	return nil, errors.New("not implemented")
}

func testExtractionConfig() ExtractionConfig {
	return ExtractionConfig{Model: "gpt-4o-mini", LocalCurrency: "KRW", MaxDocumentSize: 1 << 20}
}

// A response cut off mid-key after the second record's amount. Recovery must
// keep both records.
const truncatedCardResponse = `{"document_type":"card","period":"2024-03","transactions":[` +
	`{"transaction_date":"2024-03-15","client_name":"GS25 강남점","amount":30000,"currency":"KRW","payment_channel":"card","card_number":"1234","approval_code":"A1","description":"GS25 강남점 승인","confidence":95,"category":"편의점"},` +
	`{"transaction_date":"2024-03-16","client_name":"스타벅스 역삼점","amount":4500,"confidence":90,"curr`

func TestExtractTransactionsRecoversTruncatedResponse(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	defer db.Close()

	employeeID := int64(42)
	cards := &stubCardService{registry: []models.Card{
		{ID: 3, CompanyID: 1, Number: "9999888877771234", EmployeeID: &employeeID, EmployeeName: "김철수"},
	}}
	flags := &stubFlagService{}
	chat := &fakeChat{responses: []string{truncatedCardResponse}}
	svc := NewExtractionService(db, chat, cards, flags, testExtractionConfig())

	mock.ExpectExec("INSERT INTO extraction_queue").WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec("INSERT INTO extraction_queue").WillReturnResult(sqlmock.NewResult(12, 1))

	outcome, err := svc.ExtractTransactions(context.Background(), 1, "2024-03 카드 명세서 ...", "card")
	if err != nil {
		t.Fatalf("ExtractTransactions: %v", err)
	}
	if !outcome.Recovered {
		t.Error("expected a recovered outcome for truncated input")
	}
	if outcome.StageName != "truncation_repair" {
		t.Errorf("expected truncation_repair stage, got %s", outcome.StageName)
	}
	if len(outcome.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(outcome.Transactions))
	}

	first := outcome.Transactions[0]
	if first.CardID == nil || *first.CardID != 3 {
		t.Errorf("expected card fragment 1234 resolved to card 3, got %+v", first.CardID)
	}
	if first.EmployeeID == nil || *first.EmployeeID != 42 {
		t.Errorf("expected employee carried over from card, got %+v", first.EmployeeID)
	}
	if first.Direction != models.DirectionExpense {
		t.Errorf("expected card charge mapped to expense, got %s", first.Direction)
	}

	second := outcome.Transactions[1]
	if second.Amount != 4500 || second.CardID != nil {
		t.Errorf("unexpected second transaction: %+v", second)
	}
	if second.Currency != "KRW" {
		t.Errorf("expected local currency default, got %s", second.Currency)
	}

	// First record is a convenience store at 30,000 KRW: personal use.
	// Second record falls on a Saturday: unusual time.
	if len(flags.specs) != 2 {
		t.Fatalf("expected 2 flag specs, got %d: %+v", len(flags.specs), flags.specs)
	}
	if flags.specs[0].FlagType != models.FlagPersonalUse {
		t.Errorf("expected personal_use on first record, got %s", flags.specs[0].FlagType)
	}
	if flags.specs[1].FlagType != models.FlagUnusualTime {
		t.Errorf("expected unusual_time on second record, got %s", flags.specs[1].FlagType)
	}
	if !strings.HasPrefix(flags.specs[0].TransactionID, outcome.QueueID) {
		t.Errorf("flag identity %q not derived from queue %q", flags.specs[0].TransactionID, outcome.QueueID)
	}
	if outcome.FlagsCreated != 2 {
		t.Errorf("expected 2 flags created, got %d", outcome.FlagsCreated)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestExtractTransactionsEmptyDocument(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	defer db.Close()
	svc := NewExtractionService(db, &fakeChat{}, &stubCardService{}, &stubFlagService{}, testExtractionConfig())

	if _, err := svc.ExtractTransactions(context.Background(), 1, "   \n ", "card"); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestExtractTransactionsRetriesWithReducedScope(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	defer db.Close()

	chat := &fakeChat{responses: []string{"I could not find any structured data."}}
	svc := NewExtractionService(db, chat, &stubCardService{}, &stubFlagService{}, testExtractionConfig())

	_, err = svc.ExtractTransactions(context.Background(), 1, "알 수 없는 문서", "card")
	if !errors.Is(err, ErrUnrecoverableResponse) {
		t.Fatalf("expected ErrUnrecoverableResponse, got %v", err)
	}
	if len(chat.systems) != 2 {
		t.Fatalf("expected a reduced-scope retry, got %d calls", len(chat.systems))
	}
	if !strings.Contains(chat.systems[1], "at most 25 transactions") {
		t.Errorf("retry prompt missing the reduced-scope instruction: %q", chat.systems[1])
	}
}

func TestExtractTransactionsUpstreamError(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	defer db.Close()

	chat := &fakeChat{err: errors.New("rate limited")}
	svc := NewExtractionService(db, chat, &stubCardService{}, &stubFlagService{}, testExtractionConfig())

	if _, err := svc.ExtractTransactions(context.Background(), 1, "명세서", "card"); err == nil {
		t.Fatal("expected upstream error to propagate")
	}
}
