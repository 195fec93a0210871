// backend/src/services/extraction_service.go
package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"

	"github.com/hmseok/Self-Disruption-sub000/src/logger"
	"github.com/hmseok/Self-Disruption-sub000/src/models"
	"github.com/hmseok/Self-Disruption-sub000/src/parsers/llmjson"
	"github.com/hmseok/Self-Disruption-sub000/src/processors"
	"github.com/hmseok/Self-Disruption-sub000/src/prom"
)

const extractionSystemPrompt = `You are a financial document parser for Korean bank and card statements.
Extract every transaction from the document into JSON. Respond with JSON only, no prose, no Markdown fences.

Schema:
{
  "document_type": "bank" | "card",
  "period": "YYYY-MM",
  "transactions": [
    {
      "transaction_date": "YYYY-MM-DD",
      "client_name": "merchant or counterparty",
      "amount": signed number, negative for money going out,
      "currency": "ISO 4217 code, KRW if not printed",
      "payment_channel": "card" | "bank",
      "card_number": "masked card identifier as printed, empty if none",
      "approval_code": "approval number, empty if none",
      "description": "the raw statement line",
      "confidence": 0-100,
      "category": "best-guess expense category"
    }
  ]
}`

const reducedScopeSuffix = `

The previous response was cut off. Extract at most 25 transactions this time, keep every string short, and omit the description field.`

// ExtractionConfig carries the knobs the extraction pipeline needs; the rest
// of the app config stays out of the service.
type ExtractionConfig struct {
	Model           string
	LocalCurrency   string
	MaxDocumentSize int
}

// chatCompleter is the slice of the OpenAI client the service uses; tests
// substitute a canned implementation.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type extractionServiceImpl struct {
	db    *sql.DB
	chat  chatCompleter
	cards CardService
	flags FlagService
	cfg   ExtractionConfig
}

func NewExtractionService(db *sql.DB, chat chatCompleter, cards CardService, flags FlagService, cfg ExtractionConfig) ExtractionService {
	return &extractionServiceImpl{db: db, chat: chat, cards: cards, flags: flags, cfg: cfg}
}

func parseOptions() llmjson.Options {
	return llmjson.Options{
		ArrayField:        "transactions",
		RequiredKeys:      []string{"transaction_date", "amount"},
		IdentifyingFields: []string{"transactions", "document_type", "period"},
	}
}

func (s *extractionServiceImpl) ExtractTransactions(ctx context.Context, companyID int64, documentText, docTypeHint string) (*ExtractionOutcome, error) {
	documentText = strings.TrimSpace(documentText)
	if documentText == "" {
		prom.ExtractionFailuresTotal.WithLabelValues("empty_document").Inc()
		return nil, ErrEmptyDocument
	}
	if s.cfg.MaxDocumentSize > 0 && len(documentText) > s.cfg.MaxDocumentSize {
		logger.L.Warn("Document truncated to the configured size limit",
			slog.Int("size", len(documentText)), slog.Int("limit", s.cfg.MaxDocumentSize))
		documentText = documentText[:s.cfg.MaxDocumentSize]
	}

	result, err := s.callAndParse(ctx, documentText, docTypeHint, false)
	if err != nil {
		return nil, err
	}
	if result == nil {
		// One retry with a reduced-scope request before giving up: a
		// response that truncated past every repair stage usually just
		// means the document asked for too much output at once.
		logger.L.Warn("Response unrecoverable, retrying with reduced scope",
			slog.Int64("companyID", companyID))
		result, err = s.callAndParse(ctx, documentText, docTypeHint, true)
		if err != nil {
			return nil, err
		}
		if result == nil {
			prom.ParseFailuresTotal.Inc()
			prom.ExtractionFailuresTotal.WithLabelValues("unrecoverable").Inc()
			return nil, ErrUnrecoverableResponse
		}
	}

	prom.RecoveryStageTotal.WithLabelValues(result.Stage.String()).Inc()
	if result.Recovered {
		logger.L.Info("Structured response recovered",
			slog.String("stage", result.Stage.String()), slog.Bool("partial", result.Partial))
	}

	transactions := s.mapTransactions(result.Value, docTypeHint)
	if err := s.resolveCards(companyID, transactions); err != nil {
		// Matching is enrichment, not a gate. Unresolved fragments stay
		// on the row for a reviewer to link by hand.
		logger.L.Error("Card resolution skipped for this batch",
			slog.Int64("companyID", companyID), slog.String("error", err.Error()))
	}

	queueID := uuid.NewString()
	persisted := s.persistQueue(queueID, companyID, transactions)

	flagsCreated, err := s.scanAndFlag(companyID, queueID, persisted)
	if err != nil {
		logger.L.Error("Anomaly flagging failed, queue rows are unaffected",
			slog.String("queueID", queueID), slog.String("error", err.Error()))
	}

	logger.L.Info("Extraction finished",
		slog.String("queueID", queueID),
		slog.Int64("companyID", companyID),
		slog.Int("transactions", len(persisted)),
		slog.Int("flagsCreated", flagsCreated),
		slog.String("stage", result.Stage.String()))

	return &ExtractionOutcome{
		QueueID:      queueID,
		Transactions: persisted,
		Recovered:    result.Recovered,
		Partial:      result.Partial,
		Stage:        result.Stage,
		StageName:    result.Stage.String(),
		FlagsCreated: flagsCreated,
	}, nil
}

func (s *extractionServiceImpl) callAndParse(ctx context.Context, documentText, docTypeHint string, reducedScope bool) (*llmjson.Result, error) {
	userPrompt := documentText
	if docTypeHint != "" {
		userPrompt = fmt.Sprintf("Document type hint: %s\n\n%s", docTypeHint, documentText)
	}
	system := extractionSystemPrompt
	if reducedScope {
		system += reducedScopeSuffix
	}

	resp, err := s.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		prom.ExtractionFailuresTotal.WithLabelValues("upstream").Inc()
		return nil, fmt.Errorf("calling extraction model: %w", err)
	}
	if len(resp.Choices) == 0 {
		prom.ExtractionFailuresTotal.WithLabelValues("upstream").Inc()
		return nil, fmt.Errorf("extraction model returned no choices")
	}
	return llmjson.Parse(resp.Choices[0].Message.Content, parseOptions()), nil
}

// mapTransactions walks the recovered value and coerces each record into a
// Transaction. Records are mapped tolerantly: a bad field degrades the row,
// it never drops the batch.
func (s *extractionServiceImpl) mapTransactions(v *llmjson.Value, docTypeHint string) []models.Transaction {
	records := recordsArray(v)
	if records == nil {
		return nil
	}

	transactions := make([]models.Transaction, 0, records.Len())
	for i := 0; i < records.Len(); i++ {
		rec, err := records.Index(i)
		if err != nil || rec.Kind() != llmjson.KindObject {
			continue
		}
		tx := models.Transaction{
			ClientName:     fieldString(rec, "client_name", "merchant", "name"),
			Currency:       strings.ToUpper(fieldString(rec, "currency")),
			PaymentChannel: fieldString(rec, "payment_channel", "channel"),
			CardFragment:   fieldString(rec, "card_number", "card"),
			ApprovalCode:   fieldString(rec, "approval_code"),
			Description:    fieldString(rec, "description", "memo"),
			Category:       fieldString(rec, "category"),
			Confidence:     fieldConfidence(rec),
		}
		if tx.Currency == "" {
			tx.Currency = s.cfg.LocalCurrency
		}
		if date, ok := parseStatementDate(fieldString(rec, "transaction_date", "date")); ok {
			tx.TransactionDate = date
		}

		amount, ok := fieldAmount(rec)
		if !ok {
			continue
		}
		tx.Amount = amount.Abs().InexactFloat64()
		tx.Direction = direction(rec, amount, docTypeHint)
		transactions = append(transactions, tx)
	}
	return transactions
}

// recordsArray accepts either the full schema object or a bare array, which
// some responses produce despite the schema.
func recordsArray(v *llmjson.Value) *llmjson.Value {
	if v == nil {
		return nil
	}
	switch v.Kind() {
	case llmjson.KindArray:
		return v
	case llmjson.KindObject:
		if arr, ok := v.Field("transactions"); ok && arr.Kind() == llmjson.KindArray {
			return arr
		}
	}
	return nil
}

func fieldString(rec *llmjson.Value, keys ...string) string {
	for _, key := range keys {
		if f, ok := rec.Field(key); ok {
			if str, err := f.String(); err == nil {
				return strings.TrimSpace(str)
			}
		}
	}
	return ""
}

// fieldAmount reads the amount as a number or, failing that, as a formatted
// string ("1,234,500원") with grouping and currency marks stripped.
func fieldAmount(rec *llmjson.Value) (decimal.Decimal, bool) {
	f, ok := rec.Field("amount")
	if !ok {
		return decimal.Zero, false
	}
	if d, err := f.Decimal(); err == nil {
		return d, true
	}
	str, err := f.String()
	if err != nil {
		return decimal.Zero, false
	}
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			return r
		}
		return -1
	}, str)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func fieldConfidence(rec *llmjson.Value) int {
	f, ok := rec.Field("confidence")
	if !ok {
		return 0
	}
	n, err := f.Float64()
	if err != nil {
		return 0
	}
	c := int(n)
	if c < 0 {
		c = 0
	}
	if c > 100 {
		c = 100
	}
	return c
}

var statementDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006.01.02",
	"2006/01/02",
	"01-02", // some card statements drop the year within the period
}

func parseStatementDate(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range statementDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			if t.Year() == 0 {
				t = t.AddDate(time.Now().Year(), 0, 0)
			}
			return t, true
		}
	}
	return time.Time{}, false
}

// direction prefers an explicit direction field, then the amount sign. Card
// statements list charges as positive, so a positive amount without a bank
// hint is an expense.
func direction(rec *llmjson.Value, amount decimal.Decimal, docTypeHint string) models.Direction {
	switch fieldString(rec, "direction", "type") {
	case "income", "deposit", "입금":
		return models.DirectionIncome
	case "expense", "withdrawal", "출금":
		return models.DirectionExpense
	}
	if amount.IsNegative() {
		return models.DirectionExpense
	}
	if strings.Contains(strings.ToLower(docTypeHint), "bank") {
		return models.DirectionIncome
	}
	return models.DirectionExpense
}

func (s *extractionServiceImpl) resolveCards(companyID int64, transactions []models.Transaction) error {
	registry, err := s.cards.Registry(companyID)
	if err != nil {
		return err
	}
	for i := range transactions {
		if transactions[i].CardFragment == "" {
			continue
		}
		card := processors.MatchCard(transactions[i].CardFragment, registry)
		if card == nil {
			continue
		}
		transactions[i].CardID = &card.ID
		if card.EmployeeID != nil {
			transactions[i].EmployeeID = card.EmployeeID
			transactions[i].EmployeeName = card.EmployeeName
		}
	}
	return nil
}

// persistQueue writes the batch row by row. A failing row is logged and
// dropped; the survivors carry queue positions matching their slice order.
func (s *extractionServiceImpl) persistQueue(queueID string, companyID int64, transactions []models.Transaction) []models.Transaction {
	persisted := make([]models.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		var date interface{}
		if !tx.TransactionDate.IsZero() {
			date = tx.TransactionDate
		}
		res, err := s.db.Exec(`
			INSERT INTO extraction_queue (queue_id, company_id, transaction_date, client_name, amount,
				direction, currency, payment_channel, card_fragment, approval_code, description,
				confidence, category, card_id, vehicle_id, jiip_id, loan_id, employee_id, employee_name)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			queueID, companyID, date, tx.ClientName, tx.Amount,
			string(tx.Direction), tx.Currency, tx.PaymentChannel, tx.CardFragment, tx.ApprovalCode, tx.Description,
			tx.Confidence, tx.Category, tx.CardID, tx.VehicleID, tx.JiipID, tx.LoanID, tx.EmployeeID, tx.EmployeeName)
		if err != nil {
			prom.ExtractionFailuresTotal.WithLabelValues("persist").Inc()
			logger.L.Error("Failed to persist queue row, continuing batch",
				slog.String("queueID", queueID), slog.String("error", err.Error()))
			continue
		}
		if id, err := res.LastInsertId(); err == nil {
			tx.ID = id
		}
		tx.QueueID = queueID
		persisted = append(persisted, tx)
	}
	return persisted
}

// scanAndFlag runs the anomaly rules over the persisted batch and creates the
// resulting flags. Each queue row gets a stable identity so re-running the
// scan over the same batch cannot double-flag.
func (s *extractionServiceImpl) scanAndFlag(companyID int64, queueID string, transactions []models.Transaction) (int, error) {
	var specs []FlagSpec
	for i, tx := range transactions {
		candidates := processors.Scan(tx, s.cfg.LocalCurrency)
		if len(candidates) == 0 {
			continue
		}
		identity := fmt.Sprintf("%s:%d", queueID, i)
		var txDate *time.Time
		if !tx.TransactionDate.IsZero() {
			d := tx.TransactionDate
			txDate = &d
		}
		for _, c := range candidates {
			specs = append(specs, FlagSpec{
				TransactionID:   identity,
				QueueID:         queueID,
				FlagType:        c.Type,
				FlagReason:      c.Reason,
				Severity:        c.Severity,
				TransactionDate: txDate,
				ClientName:      tx.ClientName,
				Amount:          tx.Amount,
				CardID:          tx.CardID,
				EmployeeID:      tx.EmployeeID,
				EmployeeName:    tx.EmployeeName,
			})
		}
	}
	if len(specs) == 0 {
		return 0, nil
	}
	created, err := s.flags.CreateFlags(companyID, specs)
	if err != nil {
		return 0, err
	}
	return created.Created, nil
}
