// backend/src/services/card_service.go
package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/hmseok/Self-Disruption-sub000/src/logger"
	"github.com/hmseok/Self-Disruption-sub000/src/models"
	"github.com/hmseok/Self-Disruption-sub000/src/security/validation"
)

const (
	ckCardRegistry         = "card_registry_company_%d"
	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type cardServiceImpl struct {
	db            *sql.DB
	registryCache *cache.Cache
}

func NewCardService(db *sql.DB, registryCache *cache.Cache) CardService {
	return &cardServiceImpl{db: db, registryCache: registryCache}
}

func (s *cardServiceImpl) Registry(companyID int64) ([]models.Card, error) {
	cacheKey := fmt.Sprintf(ckCardRegistry, companyID)
	if cached, found := s.registryCache.Get(cacheKey); found {
		return cached.([]models.Card), nil
	}

	rows, err := s.db.Query(`
		SELECT id, company_id, issuer, number, previous_numbers, holder_name, employee_id, employee_name
		FROM cards WHERE company_id = ? ORDER BY id ASC`, companyID)
	if err != nil {
		return nil, fmt.Errorf("querying card registry: %w", err)
	}
	defer rows.Close()

	var registry []models.Card
	for rows.Next() {
		var c models.Card
		var prevJSON string
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Issuer, &c.Number, &prevJSON, &c.HolderName, &c.EmployeeID, &c.EmployeeName); err != nil {
			return nil, fmt.Errorf("scanning card row: %w", err)
		}
		if prevJSON != "" && prevJSON != "[]" {
			if err := json.Unmarshal([]byte(prevJSON), &c.PreviousNumbers); err != nil {
				logger.L.Warn("Skipping malformed previous_numbers on card",
					slog.Int64("cardID", c.ID), slog.String("error", err.Error()))
			}
		}
		registry = append(registry, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating card registry: %w", err)
	}

	s.registryCache.Set(cacheKey, registry, cache.DefaultExpiration)
	return registry, nil
}

func (s *cardServiceImpl) CreateCard(card models.Card) (*models.Card, error) {
	card.Number = strings.TrimSpace(card.Number)
	if err := validation.ValidateStringNotEmpty(card.Number, "number"); err != nil {
		return nil, err
	}
	card.Issuer = validation.SanitizeText(card.Issuer)
	card.HolderName = validation.SanitizeText(card.HolderName)
	card.EmployeeName = validation.SanitizeText(card.EmployeeName)

	prev := card.PreviousNumbers
	if prev == nil {
		prev = []string{}
	}
	prevJSON, err := json.Marshal(prev)
	if err != nil {
		return nil, fmt.Errorf("encoding previous numbers: %w", err)
	}

	res, err := s.db.Exec(`
		INSERT INTO cards (company_id, issuer, number, previous_numbers, holder_name, employee_id, employee_name)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		card.CompanyID, card.Issuer, card.Number, string(prevJSON), card.HolderName, card.EmployeeID, card.EmployeeName)
	if err != nil {
		return nil, fmt.Errorf("inserting card: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading card id: %w", err)
	}
	card.ID = id

	s.InvalidateRegistry(card.CompanyID)
	logger.L.Info("Card registered",
		slog.Int64("cardID", card.ID), slog.Int64("companyID", card.CompanyID))
	return &card, nil
}

func (s *cardServiceImpl) InvalidateRegistry(companyID int64) {
	s.registryCache.Delete(fmt.Sprintf(ckCardRegistry, companyID))
}
