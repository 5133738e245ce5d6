package assignment

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/vendorhub/leadrouter-backend/internal/capacity"
	"github.com/vendorhub/leadrouter-backend/internal/groups"
	"github.com/vendorhub/leadrouter-backend/internal/leads"
	"github.com/vendorhub/leadrouter-backend/internal/policy"
	"github.com/vendorhub/leadrouter-backend/pkg/config"
	"github.com/vendorhub/leadrouter-backend/pkg/db/dbtest"
	"github.com/vendorhub/leadrouter-backend/pkg/db/models"
	"github.com/vendorhub/leadrouter-backend/pkg/enums"
	pkgerrors "github.com/vendorhub/leadrouter-backend/pkg/errors"
	"github.com/vendorhub/leadrouter-backend/pkg/logger"
	"github.com/vendorhub/leadrouter-backend/pkg/metrics"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// fixture wires the coordinator over an in-memory database with real
// repositories and a real capacity ledger.
type fixture struct {
	db       *gorm.DB
	svc      Service
	groupSvc groups.Service
	ledger   capacity.Ledger
	leads    leads.Repository
	policies policy.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureDB(t, dbtest.Open(t, "assignment"))
}

func newFixtureDB(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()

	ledger, err := capacity.NewLedger(capacity.NewRepository(db))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	leadRepo := leads.NewRepository(db)
	groupRepo := groups.NewRepository(db)
	policyRepo := policy.NewRepository(db)

	groupSvc, err := groups.NewService(groupRepo, ledger, leadRepo)
	if err != nil {
		t.Fatalf("new group service: %v", err)
	}
	policySvc, err := policy.NewService(policyRepo)
	if err != nil {
		t.Fatalf("new policy service: %v", err)
	}

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	m := metrics.NewDistributionMetrics(prometheus.NewRegistry())

	svc, err := NewService(
		leadRepo,
		groupRepo,
		ledger,
		policySvc,
		policyRepo,
		NewRepository(db),
		&gormTxRunner{db: db},
		logg,
		m,
		// A single worker keeps writes serialized on the shared-cache
		// in-memory database.
		config.DistributionConfig{ReassignWorkers: 1, ReserveRetries: 2, RetryBaseDelay: time.Millisecond},
	)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}

	return &fixture{
		db:       db,
		svc:      svc,
		groupSvc: groupSvc,
		ledger:   ledger,
		leads:    leadRepo,
		policies: policySvc,
	}
}

func (f *fixture) addGroup(t *testing.T, name, city, service string) *groups.GroupDTO {
	t.Helper()
	group, err := f.groupSvc.CreateGroup(context.Background(), name, city, service)
	if err != nil {
		t.Fatalf("create group %s: %v", name, err)
	}
	return group
}

func (f *fixture) addVendor(t *testing.T, groupID uuid.UUID, quota int) uuid.UUID {
	t.Helper()
	vendorID := uuid.New()
	if _, err := f.groupSvc.AddMember(context.Background(), groupID, vendorID, quota); err != nil {
		t.Fatalf("add member: %v", err)
	}
	return vendorID
}

func (f *fixture) newLead(t *testing.T, service, city string) *models.Lead {
	t.Helper()
	lead, err := f.leads.Create(context.Background(), &models.Lead{
		CustomerName:     "Ravi",
		CustomerPhone:    "9811223344",
		RequestedService: service,
		City:             city,
		Status:           enums.LeadStatusNew,
	})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	return lead
}

func (f *fixture) remaining(t *testing.T, vendorID uuid.UUID) (remaining, returned int) {
	t.Helper()
	pkg, err := f.ledger.GetPackage(context.Background(), vendorID)
	if err != nil {
		t.Fatalf("get package: %v", err)
	}
	return pkg.Remaining, pkg.Returned
}

func TestAssignPicksVendorWithCapacityThenExhausts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	group := f.addGroup(t, "Shutterbugs", "Bengaluru", "Photography")
	v1 := f.addVendor(t, group.ID, 1)
	v2 := f.addVendor(t, group.ID, 1)
	if err := f.ledger.Reserve(ctx, v2, 1); err != nil {
		t.Fatalf("exhaust v2: %v", err)
	}

	lead := f.newLead(t, "Photography", "Bengaluru")
	result, err := f.svc.Assign(ctx, lead.ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if result.Outcome != enums.OutcomeAssigned {
		t.Fatalf("unexpected outcome %s", result.Outcome)
	}
	if result.Lead.AssignedVendorID == nil || *result.Lead.AssignedVendorID != v1 {
		t.Fatalf("lead should land on the only vendor with capacity, got %v", result.Lead.AssignedVendorID)
	}
	if rem, _ := f.remaining(t, v1); rem != 0 {
		t.Fatalf("v1 remaining should drop to 0, got %d", rem)
	}

	// Every quota in the scope is consumed now.
	second := f.newLead(t, "Photography", "Bengaluru")
	_, err = f.svc.Assign(ctx, second.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeNoTarget) {
		t.Fatalf("expected no-target, got %v", err)
	}
	got, ferr := f.leads.FindByID(ctx, second.ID)
	if ferr != nil {
		t.Fatalf("reload second lead: %v", ferr)
	}
	if got.Status != enums.LeadStatusNew {
		t.Fatalf("unassignable lead must stay new, got %s", got.Status)
	}
}

func TestAssignIsIdempotentOnAssignedLead(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	group := f.addGroup(t, "Caterers", "Pune", "Catering")
	v1 := f.addVendor(t, group.ID, 2)

	lead := f.newLead(t, "Catering", "Pune")
	first, err := f.svc.Assign(ctx, lead.ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	again, err := f.svc.Assign(ctx, lead.ID)
	if err != nil {
		t.Fatalf("second assign: %v", err)
	}
	if again.Outcome != enums.OutcomeAssigned {
		t.Fatalf("unexpected outcome %s", again.Outcome)
	}
	if *again.Lead.AssignedVendorID != *first.Lead.AssignedVendorID {
		t.Fatal("re-invocation must report the existing assignment")
	}
	if rem, _ := f.remaining(t, v1); rem != 1 {
		t.Fatalf("capacity must be charged exactly once, remaining %d", rem)
	}
}

func TestRejectRestoresCapacityAndReassignSucceeds(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	group := f.addGroup(t, "Florists", "Chennai", "Flowers")
	v1 := f.addVendor(t, group.ID, 1)

	lead := f.newLead(t, "Flowers", "Chennai")
	if _, err := f.svc.Assign(ctx, lead.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	result, err := f.svc.Reject(ctx, lead.ID, "vendor unavailable that day")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if result.Outcome != enums.OutcomeRejected {
		t.Fatalf("unexpected outcome %s", result.Outcome)
	}
	rem, ret := f.remaining(t, v1)
	if rem != 1 || ret != 1 {
		t.Fatalf("rejection must restore remaining and count returned, got remaining=%d returned=%d", rem, ret)
	}

	// Rejecting twice is a state conflict.
	if _, err := f.svc.Reject(ctx, lead.ID, ""); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}

	reassigned, err := f.svc.Reassign(ctx, lead.ID)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if reassigned.Outcome != enums.OutcomeReassigned {
		t.Fatalf("unexpected outcome %s", reassigned.Outcome)
	}
	if *reassigned.Lead.AssignedVendorID != v1 {
		t.Fatal("restored capacity should make the vendor eligible again")
	}
}

func TestConcurrentAssignChargesCapacityOnce(t *testing.T) {
	t.Parallel()

	// File-backed database with a busy timeout: concurrent writers queue
	// instead of failing, so the race plays out at the SQL level.
	f := newFixtureDB(t, dbtest.OpenFile(t, "assignment_race"))
	ctx := context.Background()

	group := f.addGroup(t, "Racing Caterers", "Surat", "Catering")
	v1 := f.addVendor(t, group.ID, 5)

	lead := f.newLead(t, "Catering", "Surat")

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Assign(ctx, lead.ID)
		}(i)
	}
	wg.Wait()

	// Losers of the state race resolve to the existing assignment.
	for i, err := range errs {
		if err != nil {
			t.Fatalf("assign %d: %v", i, err)
		}
	}

	got, err := f.leads.FindByID(ctx, lead.ID)
	if err != nil {
		t.Fatalf("reload lead: %v", err)
	}
	if got.Status != enums.LeadStatusAssigned {
		t.Fatalf("lead should be assigned, got %s", got.Status)
	}
	if rem, _ := f.remaining(t, v1); rem != 4 {
		t.Fatalf("capacity must be charged exactly once under concurrency, remaining %d", rem)
	}
}

func TestRejectRollsBackWhenReleaseFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	group := f.addGroup(t, "Fragile Florists", "Nagpur", "Flowers")
	v1 := f.addVendor(t, group.ID, 1)

	lead := f.newLead(t, "Flowers", "Nagpur")
	if _, err := f.svc.Assign(ctx, lead.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	// Destroying the package row makes the in-transaction release fail.
	if err := f.db.Where("vendor_id = ?", v1).Delete(&models.VendorPackage{}).Error; err != nil {
		t.Fatalf("drop package row: %v", err)
	}

	if _, err := f.svc.Reject(ctx, lead.ID, "vendor closed"); err == nil {
		t.Fatal("reject must fail when capacity cannot be released")
	}

	// The status flip rolled back with the release, so a later reject can
	// still succeed.
	got, err := f.leads.FindByID(ctx, lead.ID)
	if err != nil {
		t.Fatalf("reload lead: %v", err)
	}
	if got.Status != enums.LeadStatusAssigned {
		t.Fatalf("failed reject must leave the lead assigned, got %s", got.Status)
	}
}

func TestHistoryListsAuditTrailInOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	group := f.addGroup(t, "Archive Bakers", "Lucknow", "Cakes")
	f.addVendor(t, group.ID, 2)

	lead := f.newLead(t, "Cakes", "Lucknow")
	if _, err := f.svc.Assign(ctx, lead.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.svc.Reject(ctx, lead.ID, "date changed"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := f.svc.Reassign(ctx, lead.ID); err != nil {
		t.Fatalf("reassign: %v", err)
	}

	records, err := f.svc.History(ctx, lead.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	want := []enums.AssignmentOutcome{enums.OutcomeAssigned, enums.OutcomeRejected, enums.OutcomeReassigned}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(records))
	}
	for i, outcome := range want {
		if records[i].Outcome != outcome {
			t.Fatalf("record %d: expected %s, got %s", i, outcome, records[i].Outcome)
		}
	}

	if _, err := f.svc.History(ctx, uuid.New()); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not-found for unknown lead, got %v", err)
	}
}

func TestReassignRequiresRejectedState(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.addGroup(t, "DJs", "Goa", "Music")
	lead := f.newLead(t, "Music", "Goa")

	_, err := f.svc.Reassign(ctx, lead.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict for new lead, got %v", err)
	}
}

func TestCompleteKeepsCapacityConsumed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	group := f.addGroup(t, "Bakers", "Delhi", "Cakes")
	v1 := f.addVendor(t, group.ID, 1)

	lead := f.newLead(t, "Cakes", "Delhi")
	if _, err := f.svc.Assign(ctx, lead.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	result, err := f.svc.Complete(ctx, lead.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.Outcome != enums.OutcomeCompleted {
		t.Fatalf("unexpected outcome %s", result.Outcome)
	}
	rem, ret := f.remaining(t, v1)
	if rem != 0 || ret != 0 {
		t.Fatalf("completion must not touch the ledger, got remaining=%d returned=%d", rem, ret)
	}

	// A completed lead is terminal.
	if _, err := f.svc.Assign(ctx, lead.ID); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if _, err := f.svc.Complete(ctx, lead.ID); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestManualAssignChecksMembershipAndCapacity(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	group := f.addGroup(t, "Mehndi Artists", "Jaipur", "Mehndi")
	v1 := f.addVendor(t, group.ID, 1)

	lead := f.newLead(t, "Mehndi", "Jaipur")

	if _, err := f.svc.ManualAssign(ctx, lead.ID, group.ID, uuid.New()); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for non-member, got %v", err)
	}

	result, err := f.svc.ManualAssign(ctx, lead.ID, group.ID, v1)
	if err != nil {
		t.Fatalf("manual assign: %v", err)
	}
	if result.Method != enums.MethodManual {
		t.Fatalf("unexpected method %s", result.Method)
	}
	if rem, _ := f.remaining(t, v1); rem != 0 {
		t.Fatalf("manual assignment must still charge capacity, remaining %d", rem)
	}

	// Exhausted vendor cannot take a second manual assignment.
	other := f.newLead(t, "Mehndi", "Jaipur")
	if _, err := f.svc.ManualAssign(ctx, other.ID, group.ID, v1); !pkgerrors.IsCode(err, pkgerrors.CodeCapacity) {
		t.Fatalf("expected capacity error, got %v", err)
	}
}

func TestRoundRobinPolicyRotatesAcrossGroups(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	g1 := f.addGroup(t, "East Caterers", "Kolkata", "Catering")
	g2 := f.addGroup(t, "West Caterers", "Kolkata", "Catering")
	f.addVendor(t, g1.ID, 5)
	f.addVendor(t, g2.ID, 5)

	if _, err := f.policies.SetPolicy(ctx, policy.SetPolicyInput{
		Service: "Catering",
		City:    "Kolkata",
		Name:    string(enums.PolicyRoundRobin),
	}); err != nil {
		t.Fatalf("set policy: %v", err)
	}

	seen := map[uuid.UUID]int{}
	for i := 0; i < 4; i++ {
		lead := f.newLead(t, "Catering", "Kolkata")
		result, err := f.svc.Assign(ctx, lead.ID)
		if err != nil {
			t.Fatalf("assign %d: %v", i, err)
		}
		seen[*result.Lead.AssignedGroupID]++
	}
	if seen[g1.ID] != 2 || seen[g2.ID] != 2 {
		t.Fatalf("round robin should alternate groups, got %v", seen)
	}
}

func TestReassignAllDrainsGroupForDeletion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	doomed := f.addGroup(t, "Old Planners", "Mumbai", "Planning")
	backup := f.addGroup(t, "New Planners", "Mumbai", "Planning")
	oldVendor := f.addVendor(t, doomed.ID, 3)
	newVendor := f.addVendor(t, backup.ID, 3)

	var leadIDs []uuid.UUID
	for i := 0; i < 3; i++ {
		lead := f.newLead(t, "Planning", "Mumbai")
		if _, err := f.svc.ManualAssign(ctx, lead.ID, doomed.ID, oldVendor); err != nil {
			t.Fatalf("seed assignment %d: %v", i, err)
		}
		leadIDs = append(leadIDs, lead.ID)
	}

	if err := f.groupSvc.DeleteGroup(ctx, doomed.ID); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected delete to fail while leads are assigned, got %v", err)
	}

	report, err := f.svc.ReassignAll(ctx, doomed.ID)
	if err != nil {
		t.Fatalf("reassign all: %v", err)
	}
	if report.Processed != 3 || report.Reassigned != 3 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	for _, id := range leadIDs {
		lead, err := f.leads.FindByID(ctx, id)
		if err != nil {
			t.Fatalf("reload lead: %v", err)
		}
		if lead.Status != enums.LeadStatusAssigned {
			t.Fatalf("lead %s should be reassigned, got %s", id, lead.Status)
		}
		if lead.AssignedVendorID == nil || *lead.AssignedVendorID != newVendor {
			t.Fatalf("lead %s should move to the backup group's vendor", id)
		}
	}

	if rem, ret := f.remaining(t, oldVendor); rem != 3 || ret != 3 {
		t.Fatalf("drained vendor should get capacity back as returned, got remaining=%d returned=%d", rem, ret)
	}

	if err := f.groupSvc.DeleteGroup(ctx, doomed.ID); err != nil {
		t.Fatalf("delete after drain: %v", err)
	}
}

func TestReassignAllLeavesUnplaceableLeadsNew(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	only := f.addGroup(t, "Lone Decorators", "Indore", "Decoration")
	vendor := f.addVendor(t, only.ID, 1)

	lead := f.newLead(t, "Decoration", "Indore")
	if _, err := f.svc.ManualAssign(ctx, lead.ID, only.ID, vendor); err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	report, err := f.svc.ReassignAll(ctx, only.ID)
	if err != nil {
		t.Fatalf("reassign all: %v", err)
	}
	if report.Processed != 1 || report.NoTarget != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	got, err := f.leads.FindByID(ctx, lead.ID)
	if err != nil {
		t.Fatalf("reload lead: %v", err)
	}
	if got.Status != enums.LeadStatusNew {
		t.Fatalf("lead with nowhere to go must rest in new, got %s", got.Status)
	}
}
