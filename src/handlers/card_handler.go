// backend/src/handlers/card_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hmseok/Self-Disruption-sub000/src/logger"
	"github.com/hmseok/Self-Disruption-sub000/src/models"
	"github.com/hmseok/Self-Disruption-sub000/src/security/validation"
	"github.com/hmseok/Self-Disruption-sub000/src/services"
	"github.com/hmseok/Self-Disruption-sub000/src/utils"
)

type CardHandler struct {
	cardService services.CardService
}

func NewCardHandler(cardService services.CardService) *CardHandler {
	return &CardHandler{cardService: cardService}
}

// HandleListCards serves GET /api/cards: the full registry, historical
// identifiers included.
func (h *CardHandler) HandleListCards(w http.ResponseWriter, r *http.Request) {
	companyID, ok := GetCompanyIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	registry, err := h.cardService.Registry(companyID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Error listing cards", "error", err)
		utils.SendJSONError(w, "Error listing cards", http.StatusInternalServerError)
		return
	}
	if registry == nil {
		registry = []models.Card{}
	}
	utils.SendJSONResponse(w, registry, http.StatusOK)
}

// HandleCreateCard serves POST /api/cards.
func (h *CardHandler) HandleCreateCard(w http.ResponseWriter, r *http.Request) {
	companyID, ok := GetCompanyIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var card models.Card
	if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
		utils.SendJSONError(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	card.CompanyID = companyID

	created, err := h.cardService.CreateCard(card)
	if err != nil {
		if errors.Is(err, validation.ErrValidationFailed) {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.FromContext(r.Context()).Error("Error creating card", "error", err)
		utils.SendJSONError(w, "Error creating card", http.StatusInternalServerError)
		return
	}
	utils.SendJSONResponse(w, created, http.StatusCreated)
}
