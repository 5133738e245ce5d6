package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendorhub/leadrouter-backend/pkg/db/models"
	"github.com/vendorhub/leadrouter-backend/pkg/enums"
	pkgerrors "github.com/vendorhub/leadrouter-backend/pkg/errors"
	"github.com/vendorhub/leadrouter-backend/pkg/pagination"
)

// Service is the lead store for intake and read access.
type Service interface {
	CreateLead(ctx context.Context, input CreateLeadInput) (*LeadDTO, error)
	GetLead(ctx context.Context, leadID uuid.UUID) (*LeadDTO, error)
	ListLeads(ctx context.Context, params pagination.Params, filters ListFilters) (*ListResult, error)
	ListAssignedToVendor(ctx context.Context, vendorID uuid.UUID) ([]LeadDTO, error)
}

// ListResult is one page of leads plus the cursor for the next page; an
// empty cursor means the listing is exhausted.
type ListResult struct {
	Items  []LeadDTO `json:"items"`
	Cursor string    `json:"cursor"`
}

type service struct {
	repo Repository
}

// NewService builds the lead store service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("leads repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) CreateLead(ctx context.Context, input CreateLeadInput) (*LeadDTO, error) {
	input.CustomerName = strings.TrimSpace(input.CustomerName)
	input.CustomerPhone = strings.TrimSpace(input.CustomerPhone)
	input.RequestedService = strings.TrimSpace(input.RequestedService)
	input.City = strings.TrimSpace(input.City)
	if input.CustomerName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name required")
	}
	if input.CustomerPhone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer phone required")
	}
	if input.RequestedService == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requested service required")
	}
	if input.City == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "city required")
	}

	lead, err := s.repo.Create(ctx, &models.Lead{
		CustomerName:     input.CustomerName,
		CustomerPhone:    input.CustomerPhone,
		CustomerEmail:    input.CustomerEmail,
		RequestedService: input.RequestedService,
		City:             input.City,
		EventDate:        input.EventDate,
		Status:           enums.LeadStatusNew,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create lead")
	}

	if err := s.repo.AppendEvent(ctx, &models.LeadEvent{
		LeadID:     lead.ID,
		FromStatus: enums.LeadStatusNew,
		ToStatus:   enums.LeadStatusNew,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record lead intake event")
	}
	return ToDTO(lead), nil
}

func (s *service) GetLead(ctx context.Context, leadID uuid.UUID) (*LeadDTO, error) {
	lead, err := s.repo.FindByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "lead not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load lead")
	}
	return ToDTO(lead), nil
}

func (s *service) ListLeads(ctx context.Context, params pagination.Params, filters ListFilters) (*ListResult, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	list, next, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list leads")
	}

	out := make([]LeadDTO, 0, len(list))
	for i := range list {
		out = append(out, *ToDTO(&list[i]))
	}
	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: out, Cursor: cursor}, nil
}

// ListAssignedToVendor returns the leads currently held by one vendor, in
// assignment order.
func (s *service) ListAssignedToVendor(ctx context.Context, vendorID uuid.UUID) ([]LeadDTO, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	list, err := s.repo.ListAssignedByVendor(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vendor leads")
	}
	out := make([]LeadDTO, 0, len(list))
	for i := range list {
		out = append(out, *ToDTO(&list[i]))
	}
	return out, nil
}
