package controllers

import (
	"net/http"
	"strings"

	"github.com/vendorhub/leadrouter-backend/api/responses"
	"github.com/vendorhub/leadrouter-backend/api/validators"
	"github.com/vendorhub/leadrouter-backend/internal/policy"
	pkgerrors "github.com/vendorhub/leadrouter-backend/pkg/errors"
	"github.com/vendorhub/leadrouter-backend/pkg/logger"
)

// SetPolicy selects the distribution algorithm for a (service, city) scope.
func SetPolicy(svc policy.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "policy service unavailable"))
			return
		}

		var req policy.SetPolicyInput
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.SetPolicy(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// GetPolicy returns the active policy for a scope, default included.
func GetPolicy(svc policy.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "policy service unavailable"))
			return
		}

		serviceName := strings.TrimSpace(r.URL.Query().Get("service"))
		city := strings.TrimSpace(r.URL.Query().Get("city"))
		if serviceName == "" || city == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "service and city query parameters required"))
			return
		}

		result, err := svc.GetPolicy(r.Context(), serviceName, city)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
