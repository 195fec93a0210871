// backend/src/handlers/flag_handler.go
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

type FlagHandler struct {
	flagService services.FlagService
}

func NewFlagHandler(flagService services.FlagService) *FlagHandler {
	return &FlagHandler{flagService: flagService}
}

// HandleListFlags serves GET /api/flags with status, type, card and employee
// filters plus pagination.
func (h *FlagHandler) HandleListFlags(w http.ResponseWriter, r *http.Request) {
	companyID, ok := GetCompanyIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	params := services.FlagQueryParams{
		CompanyID: companyID,
		Status:    r.URL.Query().Get("status"),
		FlagType:  r.URL.Query().Get("flag_type"),
	}
	if v := r.URL.Query().Get("card_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			utils.SendJSONError(w, "Invalid card_id", http.StatusBadRequest)
			return
		}
		params.CardID = &id
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

	page, err := h.flagService.ListFlags(params)
	if err != nil {
		if errors.Is(err, validation.ErrValidationFailed) {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.FromContext(r.Context()).Error("Error listing flags", "error", err)
		utils.SendJSONError(w, "Error listing flags", http.StatusInternalServerError)
		return
	}
	utils.SendJSONResponse(w, page, http.StatusOK)
}

type createFlagsRequest struct {
	Flags []services.FlagSpec `json:"flags"`
}

// HandleCreateFlags serves POST /api/flags: manual flags raised by a reviewer,
// created with the same dedup rules as scan-generated ones.
func (h *FlagHandler) HandleCreateFlags(w http.ResponseWriter, r *http.Request) {
	companyID, ok := GetCompanyIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req createFlagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if len(req.Flags) == 0 {
		utils.SendJSONError(w, "flags array required", http.StatusBadRequest)
		return
	}
	for i := range req.Flags {
		if req.Flags[i].FlagType == "" {
			req.Flags[i].FlagType = models.FlagManual
		}
	}

	result, err := h.flagService.CreateFlags(companyID, req.Flags)
	if err != nil {
		logger.FromContext(r.Context()).Error("Error creating flags", "error", err)
		utils.SendJSONError(w, "Error creating flags", http.StatusInternalServerError)
		return
	}
	logger.FromContext(r.Context()).Info("Manual flags created",
		"requested", len(req.Flags), "created", result.Created)
	utils.SendJSONResponse(w, result, http.StatusCreated)
}

type transitionFlagsRequest struct {
	IDs                    []int64 `json:"ids"`
	Status                 string  `json:"status"`
	Note                   string  `json:"note"`
	CreateSalaryAdjustment *bool   `json:"create_salary_adjustment,omitempty"`
}

// HandleTransitionFlags serves POST /api/flags/transition: the batch review
// action. create_salary_adjustment defaults to true for personal_confirmed.
func (h *FlagHandler) HandleTransitionFlags(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req transitionFlagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	createAdjustment := true
	if req.CreateSalaryAdjustment != nil {
		createAdjustment = *req.CreateSalaryAdjustment
	}

	result, err := h.flagService.TransitionFlags(req.IDs, models.FlagStatus(req.Status), userID, req.Note, createAdjustment)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoFlagsSelected), errors.Is(err, validation.ErrValidationFailed):
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			logger.FromContext(r.Context()).Error("Error transitioning flags", "error", err)
			utils.SendJSONError(w, "Error transitioning flags", http.StatusInternalServerError)
		}
		return
	}
	utils.SendJSONResponse(w, result, http.StatusOK)
}
