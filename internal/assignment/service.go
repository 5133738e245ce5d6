package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendorhub/leadrouter-backend/internal/capacity"
	"github.com/vendorhub/leadrouter-backend/internal/groups"
	"github.com/vendorhub/leadrouter-backend/internal/leads"
	"github.com/vendorhub/leadrouter-backend/internal/policy"
	"github.com/vendorhub/leadrouter-backend/pkg/config"
	"github.com/vendorhub/leadrouter-backend/pkg/db/models"
	"github.com/vendorhub/leadrouter-backend/pkg/enums"
	pkgerrors "github.com/vendorhub/leadrouter-backend/pkg/errors"
	"github.com/vendorhub/leadrouter-backend/pkg/logger"
	"github.com/vendorhub/leadrouter-backend/pkg/metrics"
)

// txRunner runs a function inside one database transaction.
type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// policySource resolves the active policy for a (service, city) scope.
type policySource interface {
	ResolvePolicy(ctx context.Context, service, city string) (*models.DistributionPolicy, error)
}

// Result is the outcome of one coordinator run on a lead.
type Result struct {
	Lead    *leads.LeadDTO          `json:"lead"`
	Outcome enums.AssignmentOutcome `json:"outcome"`
	Method  enums.AssignmentMethod  `json:"method,omitempty"`
}

// Service is the assignment coordinator: the single entry point that moves
// leads through New, Assigned, Rejected and Completed while keeping vendor
// capacity counters consistent.
type Service interface {
	Assign(ctx context.Context, leadID uuid.UUID) (*Result, error)
	ManualAssign(ctx context.Context, leadID, groupID, vendorID uuid.UUID) (*Result, error)
	Reject(ctx context.Context, leadID uuid.UUID, reason string) (*Result, error)
	Reassign(ctx context.Context, leadID uuid.UUID) (*Result, error)
	Complete(ctx context.Context, leadID uuid.UUID) (*Result, error)
	ReassignAll(ctx context.Context, groupID uuid.UUID) (*ReassignAllReport, error)
	History(ctx context.Context, leadID uuid.UUID) ([]RecordDTO, error)
}

// RecordDTO is one audit log entry in a lead's distribution history.
type RecordDTO struct {
	ID        uuid.UUID               `json:"id"`
	GroupID   *uuid.UUID              `json:"group_id,omitempty"`
	VendorID  *uuid.UUID              `json:"vendor_id,omitempty"`
	Method    enums.AssignmentMethod  `json:"method"`
	Outcome   enums.AssignmentOutcome `json:"outcome"`
	CreatedAt time.Time               `json:"created_at"`
}

type service struct {
	leads    leads.Repository
	groups   groups.Repository
	ledger   capacity.Ledger
	policies policySource
	cursors  policy.Repository
	records  Repository
	tx       txRunner
	logg     *logger.Logger
	metrics  *metrics.DistributionMetrics
	cfg      config.DistributionConfig
}

// NewService builds the coordinator.
func NewService(
	leadRepo leads.Repository,
	groupRepo groups.Repository,
	ledger capacity.Ledger,
	policies policySource,
	cursors policy.Repository,
	records Repository,
	tx txRunner,
	logg *logger.Logger,
	m *metrics.DistributionMetrics,
	cfg config.DistributionConfig,
) (Service, error) {
	if leadRepo == nil {
		return nil, fmt.Errorf("leads repository required")
	}
	if groupRepo == nil {
		return nil, fmt.Errorf("groups repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("capacity ledger required")
	}
	if policies == nil {
		return nil, fmt.Errorf("policy source required")
	}
	if cursors == nil {
		return nil, fmt.Errorf("policy repository required")
	}
	if records == nil {
		return nil, fmt.Errorf("assignment record repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		leads:    leadRepo,
		groups:   groupRepo,
		ledger:   ledger,
		policies: policies,
		cursors:  cursors,
		records:  records,
		tx:       tx,
		logg:     logg,
		metrics:  m,
		cfg:      cfg,
	}, nil
}

// Assign routes a New lead to a vendor under the scope's active policy.
// Re-invoking on an already-Assigned lead returns the existing assignment
// without touching capacity.
func (s *service) Assign(ctx context.Context, leadID uuid.UUID) (*Result, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveDuration("assign", time.Since(start)) }()

	lead, err := s.loadLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithLeadID(ctx, lead.ID.String())

	switch lead.Status {
	case enums.LeadStatusAssigned:
		return s.existingAssignment(ctx, lead)
	case enums.LeadStatusRejected, enums.LeadStatusCompleted:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("lead is %s; use reassign for rejected leads", lead.Status))
	}

	return s.distribute(ctx, lead, enums.LeadStatusNew, enums.OutcomeAssigned, nil)
}

// Reassign re-runs distribution for a Rejected lead in its original scope.
func (s *service) Reassign(ctx context.Context, leadID uuid.UUID) (*Result, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveDuration("reassign", time.Since(start)) }()

	lead, err := s.loadLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithLeadID(ctx, lead.ID.String())

	if lead.Status != enums.LeadStatusRejected {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only rejected leads can be reassigned")
	}
	return s.distribute(ctx, lead, enums.LeadStatusRejected, enums.OutcomeReassigned, nil)
}

// Reject returns an Assigned lead to its vendor pool: the vendor's capacity
// comes back (counted as returned) and the lead parks in Rejected.
func (s *service) Reject(ctx context.Context, leadID uuid.UUID, reason string) (*Result, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveDuration("reject", time.Since(start)) }()

	lead, err := s.loadLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithLeadID(ctx, lead.ID.String())

	if lead.Status != enums.LeadStatusAssigned {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only assigned leads can be rejected")
	}
	vendorID := lead.AssignedVendorID
	groupID := lead.AssignedGroupID

	var trimmedReason *string
	if reason != "" {
		trimmedReason = &reason
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		leadTx := s.leads.WithTx(tx)
		ok, terr := leadTx.TransitionStatus(ctx, lead.ID, enums.LeadStatusAssigned, enums.LeadStatusRejected, groupID, vendorID)
		if terr != nil {
			return terr
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "lead state changed concurrently")
		}
		if terr := leadTx.AppendEvent(ctx, &models.LeadEvent{
			LeadID:     lead.ID,
			FromStatus: enums.LeadStatusAssigned,
			ToStatus:   enums.LeadStatusRejected,
			GroupID:    groupID,
			VendorID:   vendorID,
			Reason:     trimmedReason,
		}); terr != nil {
			return terr
		}
		if terr := s.records.WithTx(tx).Create(ctx, &models.AssignmentRecord{
			LeadID:   lead.ID,
			GroupID:  groupID,
			VendorID: vendorID,
			Method:   enums.MethodManual,
			Outcome:  enums.OutcomeRejected,
		}); terr != nil {
			return terr
		}
		// The release commits with the status flip, so a failure here puts
		// the lead back in Assigned with its capacity still held.
		if vendorID != nil {
			return s.ledger.WithTx(tx).Release(ctx, *vendorID, 1)
		}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject lead")
	}
	s.metrics.IncOutcome(string(enums.MethodManual), string(enums.OutcomeRejected))

	return s.resultFor(ctx, lead.ID, enums.OutcomeRejected, enums.MethodManual)
}

// Complete finalizes an Assigned lead. Capacity stays consumed.
func (s *service) Complete(ctx context.Context, leadID uuid.UUID) (*Result, error) {
	lead, err := s.loadLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithLeadID(ctx, lead.ID.String())

	if lead.Status != enums.LeadStatusAssigned {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only assigned leads can be completed")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		leadTx := s.leads.WithTx(tx)
		ok, terr := leadTx.TransitionStatus(ctx, lead.ID, enums.LeadStatusAssigned, enums.LeadStatusCompleted, lead.AssignedGroupID, lead.AssignedVendorID)
		if terr != nil {
			return terr
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "lead state changed concurrently")
		}
		if terr := leadTx.AppendEvent(ctx, &models.LeadEvent{
			LeadID:     lead.ID,
			FromStatus: enums.LeadStatusAssigned,
			ToStatus:   enums.LeadStatusCompleted,
			GroupID:    lead.AssignedGroupID,
			VendorID:   lead.AssignedVendorID,
		}); terr != nil {
			return terr
		}
		return s.records.WithTx(tx).Create(ctx, &models.AssignmentRecord{
			LeadID:   lead.ID,
			GroupID:  lead.AssignedGroupID,
			VendorID: lead.AssignedVendorID,
			Method:   enums.MethodManual,
			Outcome:  enums.OutcomeCompleted,
		})
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete lead")
	}

	return s.resultFor(ctx, lead.ID, enums.OutcomeCompleted, enums.MethodManual)
}

// ManualAssign routes a lead to an explicit (group, vendor) pair. Ranking is
// skipped; the atomic reservation is not.
func (s *service) ManualAssign(ctx context.Context, leadID, groupID, vendorID uuid.UUID) (*Result, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveDuration("manual_assign", time.Since(start)) }()

	lead, err := s.loadLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithLeadID(ctx, lead.ID.String())

	if lead.Status != enums.LeadStatusNew && lead.Status != enums.LeadStatusRejected {
		if lead.Status == enums.LeadStatusAssigned {
			return s.existingAssignment(ctx, lead)
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "completed leads cannot be assigned")
	}

	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "group not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group")
	}
	if !group.Active {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "group is inactive")
	}
	member := false
	for _, m := range group.Members {
		if m.VendorID == vendorID {
			member = true
			break
		}
	}
	if !member {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor is not a member of the group")
	}

	if err := s.ledger.Reserve(ctx, vendorID, 1); err != nil {
		return nil, err
	}

	candidate := policy.Candidate{
		GroupID:          groupID,
		VendorID:         vendorID,
		NextGroupCursor:  group.RotationCursor,
		NextGlobalCursor: 0,
	}
	outcome := enums.OutcomeAssigned
	if lead.Status == enums.LeadStatusRejected {
		outcome = enums.OutcomeReassigned
	}
	if err := s.finalize(ctx, lead, lead.Status, candidate, nil, enums.MethodManual, outcome); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			if uerr := s.ledger.Unreserve(ctx, vendorID, 1); uerr != nil {
				s.logg.Error(ctx, "unreserve after lost state race", uerr)
			}
		}
		return nil, err
	}
	s.metrics.IncOutcome(string(enums.MethodManual), string(outcome))
	return s.resultFor(ctx, lead.ID, outcome, enums.MethodManual)
}

// distribute runs the snapshot, rank, reserve, commit pipeline shared by
// Assign, Reassign and ReassignAll.
func (s *service) distribute(ctx context.Context, lead *models.Lead, from enums.LeadStatus, outcome enums.AssignmentOutcome, excludeGroup *uuid.UUID) (*Result, error) {
	pol, err := s.policies.ResolvePolicy(ctx, lead.RequestedService, lead.City)
	if err != nil {
		return nil, err
	}
	method := enums.MethodForPolicy(pol.Name)

	snapshot, err := s.buildSnapshot(ctx, lead.RequestedService, lead.City, pol.AllowCrossCity, excludeGroup)
	if err != nil {
		return nil, err
	}

	candidates := policy.Rank(policy.PolicySnapshot{
		Name:   pol.Name,
		Seed:   pol.Seed,
		Cursor: pol.RotationCursor,
	}, lead.ID, snapshot)

	for _, candidate := range candidates {
		if err := s.ledger.Reserve(ctx, candidate.VendorID, 1); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeCapacity) {
				s.metrics.IncConflict()
				continue
			}
			return nil, err
		}
		if err := s.finalize(ctx, lead, from, candidate, pol, method, outcome); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				// Another coordinator moved the lead while we held the
				// reservation. Give the slot back and report the state.
				if uerr := s.ledger.Unreserve(ctx, candidate.VendorID, 1); uerr != nil {
					s.logg.Error(ctx, "unreserve after lost state race", uerr)
				}
				current, lerr := s.loadLead(ctx, lead.ID)
				if lerr == nil && current.Status == enums.LeadStatusAssigned {
					return s.existingAssignment(ctx, current)
				}
			}
			return nil, err
		}
		s.metrics.IncOutcome(string(method), string(outcome))
		return s.resultFor(ctx, lead.ID, outcome, method)
	}

	// Every candidate lost its reservation race, or none existed.
	if err := s.records.Create(ctx, &models.AssignmentRecord{
		LeadID:  lead.ID,
		Method:  method,
		Outcome: enums.OutcomeNoTarget,
	}); err != nil {
		s.logg.Error(ctx, "record no-target outcome", err)
	}
	s.metrics.IncOutcome(string(method), string(enums.OutcomeNoTarget))
	return nil, pkgerrors.New(pkgerrors.CodeNoTarget, "no eligible vendor can take this lead")
}

// finalize commits the state transition for a vendor whose capacity is
// already reserved. On any failure the caller must unreserve.
func (s *service) finalize(ctx context.Context, lead *models.Lead, from enums.LeadStatus, candidate policy.Candidate, pol *models.DistributionPolicy, method enums.AssignmentMethod, outcome enums.AssignmentOutcome) error {
	groupID := candidate.GroupID
	vendorID := candidate.VendorID

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		leadTx := s.leads.WithTx(tx)
		ok, terr := leadTx.TransitionStatus(ctx, lead.ID, from, enums.LeadStatusAssigned, &groupID, &vendorID)
		if terr != nil {
			return terr
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "lead state changed concurrently")
		}
		if terr := leadTx.AppendEvent(ctx, &models.LeadEvent{
			LeadID:     lead.ID,
			FromStatus: from,
			ToStatus:   enums.LeadStatusAssigned,
			GroupID:    &groupID,
			VendorID:   &vendorID,
		}); terr != nil {
			return terr
		}
		if terr := s.records.WithTx(tx).Create(ctx, &models.AssignmentRecord{
			LeadID:   lead.ID,
			GroupID:  &groupID,
			VendorID: &vendorID,
			Method:   method,
			Outcome:  outcome,
		}); terr != nil {
			return terr
		}
		if method != enums.MethodManual {
			if terr := s.groups.WithTx(tx).SetRotationCursor(ctx, groupID, candidate.NextGroupCursor); terr != nil {
				return terr
			}
		}
		if pol != nil && pol.ID != uuid.Nil && pol.Name == enums.PolicyRoundRobin {
			if terr := s.cursors.WithTx(tx).SetRotationCursor(ctx, pol.ID, candidate.NextGlobalCursor); terr != nil {
				return terr
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	// A non-domain failure inside the transaction: roll the reservation back
	// without inflating the returned counter.
	if uerr := s.ledger.Unreserve(ctx, vendorID, 1); uerr != nil {
		s.logg.Error(ctx, "unreserve after failed commit", uerr)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commit assignment")
}

// buildSnapshot joins eligible groups with the capacity ledger into the
// read-only view the policy engine ranks over.
func (s *service) buildSnapshot(ctx context.Context, serviceName, city string, crossCity bool, excludeGroup *uuid.UUID) ([]policy.GroupSnapshot, error) {
	eligible, err := s.groups.ListEligible(ctx, serviceName, city, crossCity)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list eligible groups")
	}

	var vendorIDs []uuid.UUID
	for _, g := range eligible {
		if excludeGroup != nil && g.ID == *excludeGroup {
			continue
		}
		for _, m := range g.Members {
			vendorIDs = append(vendorIDs, m.VendorID)
		}
	}
	packages, err := s.ledger.Snapshot(ctx, vendorIDs)
	if err != nil {
		return nil, err
	}

	var out []policy.GroupSnapshot
	for _, g := range eligible {
		if excludeGroup != nil && g.ID == *excludeGroup {
			continue
		}
		snap := policy.GroupSnapshot{
			ID:        g.ID,
			Name:      g.Name,
			City:      g.City,
			Service:   g.SpecialtyService,
			CreatedAt: g.CreatedAt,
			Cursor:    g.RotationCursor,
		}
		for _, m := range g.Members {
			pkg, found := packages[m.VendorID]
			vs := policy.VendorSnapshot{VendorID: m.VendorID}
			if found && !pkg.Retired {
				vs.Total = pkg.Total
				vs.Remaining = pkg.Remaining
				vs.Paused = pkg.Paused
			} else {
				// No live package means the vendor cannot take leads.
				vs.Paused = true
			}
			snap.Members = append(snap.Members, vs)
		}
		out = append(out, snap)
	}
	return out, nil
}

// History returns every audit record written for a lead, oldest first.
func (s *service) History(ctx context.Context, leadID uuid.UUID) ([]RecordDTO, error) {
	if _, err := s.loadLead(ctx, leadID); err != nil {
		return nil, err
	}
	records, err := s.records.ListByLead(ctx, leadID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list assignment records")
	}
	out := make([]RecordDTO, 0, len(records))
	for _, record := range records {
		out = append(out, RecordDTO{
			ID:        record.ID,
			GroupID:   record.GroupID,
			VendorID:  record.VendorID,
			Method:    record.Method,
			Outcome:   record.Outcome,
			CreatedAt: record.CreatedAt,
		})
	}
	return out, nil
}

func (s *service) loadLead(ctx context.Context, leadID uuid.UUID) (*models.Lead, error) {
	lead, err := s.leads.FindByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "lead not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load lead")
	}
	return lead, nil
}

// existingAssignment reports an already-Assigned lead idempotently, using the
// latest audit record for the method.
func (s *service) existingAssignment(ctx context.Context, lead *models.Lead) (*Result, error) {
	method := enums.MethodManual
	record, err := s.records.FindLatestByLead(ctx, lead.ID)
	if err == nil {
		method = record.Method
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load assignment record")
	}
	return &Result{
		Lead:    leads.ToDTO(lead),
		Outcome: enums.OutcomeAssigned,
		Method:  method,
	}, nil
}

func (s *service) resultFor(ctx context.Context, leadID uuid.UUID, outcome enums.AssignmentOutcome, method enums.AssignmentMethod) (*Result, error) {
	lead, err := s.loadLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	return &Result{
		Lead:    leads.ToDTO(lead),
		Outcome: outcome,
		Method:  method,
	}, nil
}
