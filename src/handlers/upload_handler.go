// backend/src/handlers/upload_handler.go
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hmseok/Self-Disruption-sub000/src/config"
	"github.com/hmseok/Self-Disruption-sub000/src/logger"
	"github.com/hmseok/Self-Disruption-sub000/src/security/validation"
	"github.com/hmseok/Self-Disruption-sub000/src/services"
	"github.com/hmseok/Self-Disruption-sub000/src/utils"
)

// UploadHandler accepts statement documents as file uploads and feeds them
// into the same extraction pipeline as pasted text.
type UploadHandler struct {
	extractionService services.ExtractionService
}

func NewUploadHandler(extractionService services.ExtractionService) *UploadHandler {
	return &UploadHandler{extractionService: extractionService}
}

// HandleUpload serves POST /api/extractions/upload. The file must be a
// text-based statement export; binary spreadsheets are rejected up front.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	companyID, ok := GetCompanyIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	ctxLogger := logger.FromContext(r.Context())

	maxSize := int64(config.Cfg.MaxDocumentSize)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		ctxLogger.Warn("Failed to parse multipart form or request too large", "error", err, "limit", maxSize)
		utils.SendJSONError(w, fmt.Sprintf("Failed to process upload or file too large (max %d KB)", maxSize/1024), http.StatusBadRequest)
		return
	}

	documentType := r.FormValue("document_type")

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		ctxLogger.Warn("Failed to retrieve file from request", "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > maxSize {
		ctxLogger.Warn("Uploaded file too large", "fileSize", fileHeader.Size, "limit", maxSize)
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %d KB", maxSize/1024), http.StatusBadRequest)
		return
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(clientContentType); err != nil {
		ctxLogger.Warn("Invalid client-declared file type", "contentType", clientContentType, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	detectedContentType, err := validation.ValidateFileContentByMagicBytes(file)
	if err != nil {
		ctxLogger.Warn("Server-side file content validation failed", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctxLogger.Info("Statement file validated",
		"filename", fileHeader.Filename, "clientType", clientContentType, "detectedType", detectedContentType)

	content, err := io.ReadAll(io.LimitReader(file, maxSize))
	if err != nil {
		ctxLogger.Error("Failed to read uploaded file", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, "Failed to read uploaded file", http.StatusInternalServerError)
		return
	}

	outcome, err := h.extractionService.ExtractTransactions(r.Context(), companyID, string(content), documentType)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyDocument):
			utils.SendJSONError(w, "uploaded file contains no text", http.StatusBadRequest)
		case errors.Is(err, services.ErrUnrecoverableResponse):
			utils.SendJSONErrorKind(w, "extraction response could not be parsed", "unrecoverable_response", http.StatusUnprocessableEntity)
		default:
			ctxLogger.Error("Extraction from upload failed", "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, "Extraction failed", http.StatusBadGateway)
		}
		return
	}
	utils.SendJSONResponse(w, outcome, http.StatusCreated)
}
