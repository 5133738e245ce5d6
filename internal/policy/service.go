package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendorhub/leadrouter-backend/pkg/db/models"
	"github.com/vendorhub/leadrouter-backend/pkg/enums"
	pkgerrors "github.com/vendorhub/leadrouter-backend/pkg/errors"
)

// PolicyDTO is the API shape of a scope's active policy.
type PolicyDTO struct {
	ID             uuid.UUID        `json:"id"`
	Service        string           `json:"service"`
	City           string           `json:"city"`
	Name           enums.PolicyName `json:"name"`
	Seed           int64            `json:"seed"`
	AllowCrossCity bool             `json:"allow_cross_city"`
	RotationCursor int              `json:"rotation_cursor"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// SetPolicyInput carries the admin's policy selection for a scope.
type SetPolicyInput struct {
	Service        string `json:"service" validate:"required,min=1,max=120"`
	City           string `json:"city" validate:"required,min=1,max=120"`
	Name           string `json:"name" validate:"required"`
	Seed           int64  `json:"seed"`
	AllowCrossCity bool   `json:"allow_cross_city"`
}

// Service manages the active distribution policy per (service, city) scope.
type Service interface {
	SetPolicy(ctx context.Context, input SetPolicyInput) (*PolicyDTO, error)
	GetPolicy(ctx context.Context, service, city string) (*PolicyDTO, error)
	ResolvePolicy(ctx context.Context, service, city string) (*models.DistributionPolicy, error)
}

type service struct {
	repo Repository
}

// NewService builds the policy service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("policy repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) SetPolicy(ctx context.Context, input SetPolicyInput) (*PolicyDTO, error) {
	input.Service = strings.TrimSpace(input.Service)
	input.City = strings.TrimSpace(input.City)
	if input.Service == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service required")
	}
	if input.City == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "city required")
	}
	name, err := enums.ParsePolicyName(input.Name)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}

	policy, err := s.repo.Upsert(ctx, &models.DistributionPolicy{
		Service:        input.Service,
		City:           input.City,
		Name:           name,
		Seed:           input.Seed,
		AllowCrossCity: input.AllowCrossCity,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save distribution policy")
	}
	return toPolicyDTO(policy), nil
}

func (s *service) GetPolicy(ctx context.Context, serviceName, city string) (*PolicyDTO, error) {
	policy, err := s.ResolvePolicy(ctx, serviceName, city)
	if err != nil {
		return nil, err
	}
	return toPolicyDTO(policy), nil
}

// ResolvePolicy returns the scope's stored policy, or the default
// based_on_specialty policy when the scope has never been configured.
func (s *service) ResolvePolicy(ctx context.Context, serviceName, city string) (*models.DistributionPolicy, error) {
	policy, err := s.repo.FindByScope(ctx, serviceName, city)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.DistributionPolicy{
				Service: serviceName,
				City:    city,
				Name:    enums.PolicyBasedOnSpecialty,
			}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load distribution policy")
	}
	return policy, nil
}

func toPolicyDTO(policy *models.DistributionPolicy) *PolicyDTO {
	return &PolicyDTO{
		ID:             policy.ID,
		Service:        policy.Service,
		City:           policy.City,
		Name:           policy.Name,
		Seed:           policy.Seed,
		AllowCrossCity: policy.AllowCrossCity,
		RotationCursor: policy.RotationCursor,
		UpdatedAt:      policy.UpdatedAt,
	}
}
