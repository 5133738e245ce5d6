package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vendorhub/leadrouter-backend/api/responses"
	"github.com/vendorhub/leadrouter-backend/api/validators"
	"github.com/vendorhub/leadrouter-backend/internal/assignment"
	"github.com/vendorhub/leadrouter-backend/internal/groups"
	pkgerrors "github.com/vendorhub/leadrouter-backend/pkg/errors"
	"github.com/vendorhub/leadrouter-backend/pkg/logger"
	"github.com/vendorhub/leadrouter-backend/pkg/pagination"
)

type createGroupRequest struct {
	Name    string `json:"name" validate:"required,min=1,max=200"`
	City    string `json:"city" validate:"required,min=1,max=120"`
	Service string `json:"service" validate:"required,min=1,max=120"`
}

// CreateGroup registers a vendor group for one (city, service) scope.
func CreateGroup(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "group service unavailable"))
			return
		}

		var req createGroupRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		group, err := svc.CreateGroup(r.Context(), req.Name, req.City, req.Service)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, group)
	}
}

// ListGroups returns a cursor-paginated page of groups.
func ListGroups(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "group service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListGroups(r.Context(), pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// GetGroup returns one group with members and their capacity state.
func GetGroup(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return groupAction(logg, func(r *http.Request, groupID uuid.UUID) (any, error) {
		if svc == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "group service unavailable")
		}
		return svc.GetGroup(r.Context(), groupID)
	})
}

// DeleteGroup soft-deletes a group with no assigned leads.
func DeleteGroup(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return groupAction(logg, func(r *http.Request, groupID uuid.UUID) (any, error) {
		if svc == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "group service unavailable")
		}
		if err := svc.DeleteGroup(r.Context(), groupID); err != nil {
			return nil, err
		}
		return map[string]string{"status": "deleted"}, nil
	})
}

// ActivateGroup re-enables a soft-deleted group.
func ActivateGroup(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return groupAction(logg, func(r *http.Request, groupID uuid.UUID) (any, error) {
		if svc == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "group service unavailable")
		}
		if err := svc.ActivateGroup(r.Context(), groupID); err != nil {
			return nil, err
		}
		return map[string]string{"status": "active"}, nil
	})
}

type addMemberRequest struct {
	VendorID     uuid.UUID `json:"vendor_id" validate:"required"`
	PackageTotal int       `json:"package_total" validate:"required,gt=0"`
}

// AddGroupMember appends a vendor to the group's rotation order.
func AddGroupMember(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return groupAction(logg, func(r *http.Request, groupID uuid.UUID) (any, error) {
		if svc == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "group service unavailable")
		}
		var req addMemberRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.AddMember(r.Context(), groupID, req.VendorID, req.PackageTotal)
	})
}

// RemoveGroupMember drops a vendor from future rotation.
func RemoveGroupMember(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return groupAction(logg, func(r *http.Request, groupID uuid.UUID) (any, error) {
		if svc == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "group service unavailable")
		}
		vendorID, err := validators.ParsePathUUID(chi.URLParam(r, "vendorId"), "vendorId")
		if err != nil {
			return nil, err
		}
		if err := svc.RemoveMember(r.Context(), groupID, vendorID); err != nil {
			return nil, err
		}
		return map[string]string{"status": "removed"}, nil
	})
}

// ReassignAllGroup drains every assigned lead off a group before it goes away.
func ReassignAllGroup(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return groupAction(logg, func(r *http.Request, groupID uuid.UUID) (any, error) {
		if svc == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable")
		}
		return svc.ReassignAll(r.Context(), groupID)
	})
}

func groupAction(logg *logger.Logger, fn func(*http.Request, uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID, err := validators.ParsePathUUID(chi.URLParam(r, "groupId"), "groupId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := fn(r, groupID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
