package controllers

import (
	"net/http"

	"github.com/vendorhub/leadrouter-backend/api/responses"
	"github.com/vendorhub/leadrouter-backend/api/validators"
	"github.com/vendorhub/leadrouter-backend/internal/assignment"
	"github.com/vendorhub/leadrouter-backend/internal/leads"
	pkgerrors "github.com/vendorhub/leadrouter-backend/pkg/errors"
	"github.com/vendorhub/leadrouter-backend/pkg/logger"
)

type intakeResponse struct {
	Lead    any    `json:"lead"`
	Outcome string `json:"outcome"`
}

// IntakeLead accepts a lead from the public webhook and immediately runs
// distribution. A lead that finds no eligible vendor is still accepted; it
// parks in New for a later explicit assign.
func IntakeLead(leadSvc leads.Service, coordinator assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if leadSvc == nil || coordinator == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "intake unavailable"))
			return
		}

		var req leads.CreateLeadInput
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lead, err := leadSvc.CreateLead(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := coordinator.Assign(r.Context(), lead.ID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNoTarget) {
				responses.WriteSuccessStatus(w, http.StatusCreated, intakeResponse{
					Lead:    lead,
					Outcome: "accepted_unassigned",
				})
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, intakeResponse{
			Lead:    result.Lead,
			Outcome: string(result.Outcome),
		})
	}
}
