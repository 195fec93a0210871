// backend/src/handlers/extraction_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hmseok/Self-Disruption-sub000/src/logger"
	"github.com/hmseok/Self-Disruption-sub000/src/security/validation"
	"github.com/hmseok/Self-Disruption-sub000/src/services"
	"github.com/hmseok/Self-Disruption-sub000/src/utils"
)

type ExtractionHandler struct {
	extractionService services.ExtractionService
}

func NewExtractionHandler(extractionService services.ExtractionService) *ExtractionHandler {
	return &ExtractionHandler{extractionService: extractionService}
}

type extractRequest struct {
	DocumentText string `json:"document_text"`
	DocumentType string `json:"document_type"`
}

// HandleExtract serves POST /api/extractions: raw statement text in, a queue
// of resolved and scanned transactions out.
func (h *ExtractionHandler) HandleExtract(w http.ResponseWriter, r *http.Request) {
	companyID, ok := GetCompanyIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	ctxLogger := logger.FromContext(r.Context())

	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validation.CheckXSSPatterns(req.DocumentText, "document_text", ""); err != nil {
		ctxLogger.Warn("Document text rejected by content scan", "error", err)
		utils.SendJSONError(w, "document_text contains disallowed content", http.StatusBadRequest)
		return
	}

	ctxLogger.Info("Handling extraction request",
		"documentType", req.DocumentType, "documentSize", len(req.DocumentText))

	outcome, err := h.extractionService.ExtractTransactions(r.Context(), companyID, req.DocumentText, req.DocumentType)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyDocument):
			utils.SendJSONError(w, "document_text is empty", http.StatusBadRequest)
		case errors.Is(err, services.ErrUnrecoverableResponse):
			utils.SendJSONErrorKind(w, "extraction response could not be parsed", "unrecoverable_response", http.StatusUnprocessableEntity)
		default:
			ctxLogger.Error("Extraction failed", "error", err)
			utils.SendJSONError(w, "Extraction failed", http.StatusBadGateway)
		}
		return
	}
	utils.SendJSONResponse(w, outcome, http.StatusCreated)
}
