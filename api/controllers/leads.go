package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vendorhub/leadrouter-backend/api/responses"
	"github.com/vendorhub/leadrouter-backend/api/validators"
	"github.com/vendorhub/leadrouter-backend/internal/assignment"
	"github.com/vendorhub/leadrouter-backend/internal/leads"
	"github.com/vendorhub/leadrouter-backend/pkg/enums"
	pkgerrors "github.com/vendorhub/leadrouter-backend/pkg/errors"
	"github.com/vendorhub/leadrouter-backend/pkg/logger"
	"github.com/vendorhub/leadrouter-backend/pkg/pagination"
)

// CreateLead registers a lead from the admin console without assigning it.
func CreateLead(svc leads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lead service unavailable"))
			return
		}

		var req leads.CreateLeadInput
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lead, err := svc.CreateLead(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, lead)
	}
}

// ListLeads returns a filtered, cursor-paginated page of leads.
func ListLeads(svc leads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lead service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filters := leads.ListFilters{
			City:    r.URL.Query().Get("city"),
			Service: r.URL.Query().Get("service"),
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status, perr := enums.ParseLeadStatus(raw)
			if perr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, perr.Error()))
				return
			}
			filters.Status = &status
		}

		list, err := svc.ListLeads(r.Context(), pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		}, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// GetLead returns one lead with its full event history.
func GetLead(svc leads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lead service unavailable"))
			return
		}

		leadID, err := validators.ParsePathUUID(chi.URLParam(r, "leadId"), "leadId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lead, err := svc.GetLead(r.Context(), leadID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lead)
	}
}

// ListLeadAssignments returns a lead's full distribution audit trail.
func ListLeadAssignments(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return leadAction(svc, logg, func(r *http.Request, svc assignment.Service, leadID uuid.UUID) (any, error) {
		return svc.History(r.Context(), leadID)
	})
}

// AssignLead runs policy distribution for a lead.
func AssignLead(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return leadAction(svc, logg, func(r *http.Request, svc assignment.Service, leadID uuid.UUID) (any, error) {
		return svc.Assign(r.Context(), leadID)
	})
}

type manualAssignRequest struct {
	GroupID  uuid.UUID `json:"group_id" validate:"required"`
	VendorID uuid.UUID `json:"vendor_id" validate:"required"`
}

// ManualAssignLead routes a lead to an explicit vendor, bypassing ranking.
func ManualAssignLead(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return leadAction(svc, logg, func(r *http.Request, svc assignment.Service, leadID uuid.UUID) (any, error) {
		var req manualAssignRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.ManualAssign(r.Context(), leadID, req.GroupID, req.VendorID)
	})
}

type rejectRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// RejectLead returns an assigned lead to the pool.
func RejectLead(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return leadAction(svc, logg, func(r *http.Request, svc assignment.Service, leadID uuid.UUID) (any, error) {
		var req rejectRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				return nil, err
			}
		}
		return svc.Reject(r.Context(), leadID, req.Reason)
	})
}

// ReassignLead re-runs distribution for a rejected lead.
func ReassignLead(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return leadAction(svc, logg, func(r *http.Request, svc assignment.Service, leadID uuid.UUID) (any, error) {
		return svc.Reassign(r.Context(), leadID)
	})
}

// CompleteLead finalizes an assigned lead.
func CompleteLead(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return leadAction(svc, logg, func(r *http.Request, svc assignment.Service, leadID uuid.UUID) (any, error) {
		return svc.Complete(r.Context(), leadID)
	})
}

func leadAction(svc assignment.Service, logg *logger.Logger, fn func(*http.Request, assignment.Service, uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}

		leadID, err := validators.ParsePathUUID(chi.URLParam(r, "leadId"), "leadId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := fn(r, svc, leadID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
