package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vendorhub/leadrouter-backend/api/responses"
	"github.com/vendorhub/leadrouter-backend/api/validators"
	"github.com/vendorhub/leadrouter-backend/internal/capacity"
	"github.com/vendorhub/leadrouter-backend/internal/leads"
	pkgerrors "github.com/vendorhub/leadrouter-backend/pkg/errors"
	"github.com/vendorhub/leadrouter-backend/pkg/logger"
)

// GetPackage returns one vendor's quota state.
func GetPackage(ledger capacity.Ledger, logg *logger.Logger) http.HandlerFunc {
	return packageAction(ledger, logg, func(r *http.Request, ledger capacity.Ledger, vendorID uuid.UUID) (any, error) {
		return ledger.GetPackage(r.Context(), vendorID)
	})
}

type addLeadsRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

// AddPackageLeads grows a vendor's quota ("Add Leads").
func AddPackageLeads(ledger capacity.Ledger, logg *logger.Logger) http.HandlerFunc {
	return packageAction(ledger, logg, func(r *http.Request, ledger capacity.Ledger, vendorID uuid.UUID) (any, error) {
		var req addLeadsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		if err := ledger.AddCapacity(r.Context(), vendorID, req.Quantity); err != nil {
			return nil, err
		}
		return ledger.GetPackage(r.Context(), vendorID)
	})
}

// ListVendorLeads returns the leads a vendor currently holds against its
// quota, in assignment order.
func ListVendorLeads(svc leads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lead service unavailable"))
			return
		}

		vendorID, err := validators.ParsePathUUID(chi.URLParam(r, "vendorId"), "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListAssignedToVendor(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// PausePackage removes a vendor from eligibility without touching counters.
func PausePackage(ledger capacity.Ledger, logg *logger.Logger) http.HandlerFunc {
	return packageAction(ledger, logg, func(r *http.Request, ledger capacity.Ledger, vendorID uuid.UUID) (any, error) {
		if err := ledger.Pause(r.Context(), vendorID); err != nil {
			return nil, err
		}
		return ledger.GetPackage(r.Context(), vendorID)
	})
}

// ResumePackage restores a paused vendor to eligibility.
func ResumePackage(ledger capacity.Ledger, logg *logger.Logger) http.HandlerFunc {
	return packageAction(ledger, logg, func(r *http.Request, ledger capacity.Ledger, vendorID uuid.UUID) (any, error) {
		if err := ledger.Resume(r.Context(), vendorID); err != nil {
			return nil, err
		}
		return ledger.GetPackage(r.Context(), vendorID)
	})
}

func packageAction(ledger capacity.Ledger, logg *logger.Logger, fn func(*http.Request, capacity.Ledger, uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "capacity ledger unavailable"))
			return
		}

		vendorID, err := validators.ParsePathUUID(chi.URLParam(r, "vendorId"), "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := fn(r, ledger, vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
