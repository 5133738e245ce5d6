package groups

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendorhub/leadrouter-backend/internal/capacity"
	"github.com/vendorhub/leadrouter-backend/pkg/db"
	"github.com/vendorhub/leadrouter-backend/pkg/db/models"
	pkgerrors "github.com/vendorhub/leadrouter-backend/pkg/errors"
	"github.com/vendorhub/leadrouter-backend/pkg/pagination"
)

// assignedLeadCounter reports how many leads are currently assigned to a group.
type assignedLeadCounter interface {
	CountAssignedByGroup(ctx context.Context, groupID uuid.UUID) (int64, error)
}

// Service is the vendor group registry.
type Service interface {
	CreateGroup(ctx context.Context, name, city, service string) (*GroupDTO, error)
	GetGroup(ctx context.Context, groupID uuid.UUID) (*GroupDTO, error)
	ListGroups(ctx context.Context, params pagination.Params) (*ListResult, error)
	AddMember(ctx context.Context, groupID, vendorID uuid.UUID, initialCapacity int) (*GroupDTO, error)
	RemoveMember(ctx context.Context, groupID, vendorID uuid.UUID) error
	DeleteGroup(ctx context.Context, groupID uuid.UUID) error
	ActivateGroup(ctx context.Context, groupID uuid.UUID) error
}

// ListResult is one page of groups plus the cursor for the next page; an
// empty cursor means the listing is exhausted.
type ListResult struct {
	Items  []GroupDTO `json:"items"`
	Cursor string     `json:"cursor"`
}

type service struct {
	repo   Repository
	ledger capacity.Ledger
	leads  assignedLeadCounter
}

// NewService builds the registry service.
func NewService(repo Repository, ledger capacity.Ledger, leads assignedLeadCounter) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("groups repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("capacity ledger required")
	}
	if leads == nil {
		return nil, fmt.Errorf("assigned lead counter required")
	}
	return &service{repo: repo, ledger: ledger, leads: leads}, nil
}

func (s *service) CreateGroup(ctx context.Context, name, city, serviceName string) (*GroupDTO, error) {
	name = strings.TrimSpace(name)
	city = strings.TrimSpace(city)
	serviceName = strings.TrimSpace(serviceName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group name required")
	}
	if city == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "city required")
	}
	if serviceName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service required")
	}

	exists, err := s.repo.ActiveScopeExists(ctx, name, city, serviceName)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check duplicate group")
	}
	if exists {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "an active group with the same name already exists for this city and service")
	}

	group, err := s.repo.Create(ctx, &models.VendorGroup{
		Name:             name,
		City:             city,
		SpecialtyService: serviceName,
		Active:           true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create group")
	}

	dto := toGroupDTO(group, nil)
	return &dto, nil
}

func (s *service) GetGroup(ctx context.Context, groupID uuid.UUID) (*GroupDTO, error) {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	packages, err := s.memberPackages(ctx, group)
	if err != nil {
		return nil, err
	}
	dto := toGroupDTO(group, packages)
	return &dto, nil
}

func (s *service) ListGroups(ctx context.Context, params pagination.Params) (*ListResult, error) {
	list, next, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list groups")
	}
	out := make([]GroupDTO, 0, len(list))
	for i := range list {
		packages, err := s.memberPackages(ctx, &list[i])
		if err != nil {
			return nil, err
		}
		out = append(out, toGroupDTO(&list[i], packages))
	}
	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: out, Cursor: cursor}, nil
}

func (s *service) AddMember(ctx context.Context, groupID, vendorID uuid.UUID, initialCapacity int) (*GroupDTO, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}

	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	for _, member := range group.Members {
		if member.VendorID == vendorID {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "vendor is already a group member")
		}
	}

	if _, err := s.ledger.EnsurePackage(ctx, vendorID, initialCapacity); err != nil {
		return nil, err
	}
	if _, err := s.repo.AppendMember(ctx, groupID, vendorID); err != nil {
		// A concurrent add can slip past the roster check above.
		if db.IsUniqueViolation(err, "uniq_group_vendor") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "vendor is already a group member")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append member")
	}

	return s.GetGroup(ctx, groupID)
}

// RemoveMember drops the vendor from the roster. Leads already assigned to the
// vendor are untouched; the package is retired only once the vendor belongs to
// no group at all, preserving its counters.
func (s *service) RemoveMember(ctx context.Context, groupID, vendorID uuid.UUID) error {
	if vendorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if _, err := s.loadGroup(ctx, groupID); err != nil {
		return err
	}

	removed, err := s.repo.RemoveMember(ctx, groupID, vendorID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove member")
	}
	if !removed {
		return pkgerrors.New(pkgerrors.CodeNotFound, "vendor is not a group member")
	}

	remaining, err := s.repo.CountMembershipsByVendor(ctx, vendorID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count memberships")
	}
	if remaining == 0 {
		if err := s.ledger.Retire(ctx, vendorID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteGroup soft-deletes: the row stays for audit history, flipped inactive.
func (s *service) DeleteGroup(ctx context.Context, groupID uuid.UUID) error {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return err
	}

	assigned, err := s.leads.CountAssignedByGroup(ctx, group.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count assigned leads")
	}
	if assigned > 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "group still has assigned leads").
			WithDetails(map[string]any{"assigned_leads": assigned})
	}

	ok, err := s.repo.SetActive(ctx, group.ID, false)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate group")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "group not found")
	}
	return nil
}

func (s *service) ActivateGroup(ctx context.Context, groupID uuid.UUID) error {
	if groupID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "group id required")
	}
	ok, err := s.repo.SetActive(ctx, groupID, true)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activate group")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "group not found")
	}
	return nil
}

func (s *service) loadGroup(ctx context.Context, groupID uuid.UUID) (*models.VendorGroup, error) {
	if groupID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id required")
	}
	group, err := s.repo.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "group not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group")
	}
	return group, nil
}

func (s *service) memberPackages(ctx context.Context, group *models.VendorGroup) (map[uuid.UUID]models.VendorPackage, error) {
	ids := make([]uuid.UUID, 0, len(group.Members))
	for _, member := range group.Members {
		ids = append(ids, member.VendorID)
	}
	return s.ledger.Snapshot(ctx, ids)
}
