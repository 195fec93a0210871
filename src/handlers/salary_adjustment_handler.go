// backend/src/handlers/salary_adjustment_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/hmseok/Self-Disruption-sub000/src/logger"
	"github.com/hmseok/Self-Disruption-sub000/src/models"
	"github.com/hmseok/Self-Disruption-sub000/src/security/validation"
	"github.com/hmseok/Self-Disruption-sub000/src/services"
	"github.com/hmseok/Self-Disruption-sub000/src/utils"
)

type SalaryAdjustmentHandler struct {
	salaryService services.SalaryAdjustmentService
}

func NewSalaryAdjustmentHandler(salaryService services.SalaryAdjustmentService) *SalaryAdjustmentHandler {
	return &SalaryAdjustmentHandler{salaryService: salaryService}
}

// HandleListAdjustments serves GET /api/salary-adjustments with employee,
// month and status filters plus per-employee totals.
func (h *SalaryAdjustmentHandler) HandleListAdjustments(w http.ResponseWriter, r *http.Request) {
	companyID, ok := GetCompanyIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	params := services.AdjustmentQueryParams{
		CompanyID: companyID,
		YearMonth: r.URL.Query().Get("year_month"),
		Status:    r.URL.Query().Get("status"),
	}
	if v := r.URL.Query().Get("employee_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			utils.SendJSONError(w, "Invalid employee_id", http.StatusBadRequest)
			return
		}
		params.EmployeeID = &id
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		params.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		params.Offset, _ = strconv.Atoi(v)
	}

	page, err := h.salaryService.ListAdjustments(params)
	if err != nil {
		if errors.Is(err, validation.ErrValidationFailed) {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.FromContext(r.Context()).Error("Error listing salary adjustments", "error", err)
		utils.SendJSONError(w, "Error listing salary adjustments", http.StatusInternalServerError)
		return
	}
	utils.SendJSONResponse(w, page, http.StatusOK)
}

// HandleCreateAdjustment serves POST /api/salary-adjustments for manual
// entries outside the flag pipeline.
func (h *SalaryAdjustmentHandler) HandleCreateAdjustment(w http.ResponseWriter, r *http.Request) {
	companyID, ok := GetCompanyIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var input services.AdjustmentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.SendJSONError(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	input.CompanyID = companyID

	adjustment, err := h.salaryService.CreateAdjustment(input)
	if err != nil {
		if errors.Is(err, validation.ErrValidationFailed) {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.FromContext(r.Context()).Error("Error creating salary adjustment", "error", err)
		utils.SendJSONError(w, "Error creating salary adjustment", http.StatusInternalServerError)
		return
	}
	utils.SendJSONResponse(w, adjustment, http.StatusCreated)
}

type transitionAdjustmentsRequest struct {
	IDs    []int64 `json:"ids"`
	Status string  `json:"status"`
}

// HandleTransitionAdjustments serves POST /api/salary-adjustments/transition.
func (h *SalaryAdjustmentHandler) HandleTransitionAdjustments(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req transitionAdjustmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	result, err := h.salaryService.TransitionAdjustments(req.IDs, models.AdjustmentStatus(req.Status), userID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoFlagsSelected), errors.Is(err, validation.ErrValidationFailed):
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			logger.FromContext(r.Context()).Error("Error transitioning salary adjustments", "error", err)
			utils.SendJSONError(w, "Error transitioning salary adjustments", http.StatusInternalServerError)
		}
		return
	}
	utils.SendJSONResponse(w, result, http.StatusOK)
}
