package groups

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendorhub/leadrouter-backend/internal/capacity"
	"github.com/vendorhub/leadrouter-backend/pkg/db/dbtest"
	"github.com/vendorhub/leadrouter-backend/pkg/db/models"
	"github.com/vendorhub/leadrouter-backend/pkg/enums"
	pkgerrors "github.com/vendorhub/leadrouter-backend/pkg/errors"
	"github.com/vendorhub/leadrouter-backend/pkg/pagination"
)

func newTestService(t *testing.T) (Service, capacity.Ledger, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t, "groups")

	ledger, err := capacity.NewLedger(capacity.NewRepository(db))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	svc, err := NewService(NewRepository(db), ledger, &stubLeadCounter{db: db})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, ledger, db
}

type stubLeadCounter struct {
	db *gorm.DB
}

func (s *stubLeadCounter) CountAssignedByGroup(ctx context.Context, groupID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Lead{}).
		Where("status = ? AND assigned_group_id = ?", enums.LeadStatusAssigned, groupID).
		Count(&count).Error
	return count, err
}

func TestCreateGroupRejectsActiveDuplicate(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateGroup(ctx, "North Photographers", "Bengaluru", "Photography"); err != nil {
		t.Fatalf("create group: %v", err)
	}

	_, err := svc.CreateGroup(ctx, "North Photographers", "Bengaluru", "Photography")
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// A different scope with the same name is fine.
	if _, err := svc.CreateGroup(ctx, "North Photographers", "Mumbai", "Photography"); err != nil {
		t.Fatalf("create group in other city: %v", err)
	}
}

func TestAddMemberKeepsRosterOrderAndCreatesPackage(t *testing.T) {
	t.Parallel()

	svc, ledger, _ := newTestService(t)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, "Caterers", "Pune", "Catering")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	v1, v2 := uuid.New(), uuid.New()
	if _, err := svc.AddMember(ctx, group.ID, v1, 10); err != nil {
		t.Fatalf("add first member: %v", err)
	}
	dto, err := svc.AddMember(ctx, group.ID, v2, 5)
	if err != nil {
		t.Fatalf("add second member: %v", err)
	}

	if len(dto.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(dto.Members))
	}
	if dto.Members[0].VendorID != v1 || dto.Members[1].VendorID != v2 {
		t.Fatal("members must keep insertion order")
	}
	if dto.Members[0].Position >= dto.Members[1].Position {
		t.Fatalf("positions must be increasing: %d vs %d", dto.Members[0].Position, dto.Members[1].Position)
	}

	pkg, err := ledger.GetPackage(ctx, v2)
	if err != nil {
		t.Fatalf("get package: %v", err)
	}
	if pkg.Total != 5 || pkg.Remaining != 5 {
		t.Fatalf("unexpected package: %+v", pkg)
	}
}

func TestAddMemberTwiceConflicts(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, "Decorators", "Delhi", "Decoration")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	vendor := uuid.New()
	if _, err := svc.AddMember(ctx, group.ID, vendor, 4); err != nil {
		t.Fatalf("add member: %v", err)
	}

	_, err = svc.AddMember(ctx, group.ID, vendor, 4)
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRemoveMemberRetiresOrphanPackage(t *testing.T) {
	t.Parallel()

	svc, ledger, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateGroup(ctx, "Florists A", "Chennai", "Flowers")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	second, err := svc.CreateGroup(ctx, "Florists B", "Chennai", "Flowers")
	if err != nil {
		t.Fatalf("create second group: %v", err)
	}

	vendor := uuid.New()
	if _, err := svc.AddMember(ctx, first.ID, vendor, 6); err != nil {
		t.Fatalf("add member to first: %v", err)
	}
	if _, err := svc.AddMember(ctx, second.ID, vendor, 6); err != nil {
		t.Fatalf("add member to second: %v", err)
	}

	// Still a member elsewhere: package stays live.
	if err := svc.RemoveMember(ctx, first.ID, vendor); err != nil {
		t.Fatalf("remove from first: %v", err)
	}
	pkg, err := ledger.GetPackage(ctx, vendor)
	if err != nil {
		t.Fatalf("get package: %v", err)
	}
	if pkg.Retired {
		t.Fatal("package must stay live while other memberships exist")
	}

	if err := svc.RemoveMember(ctx, second.ID, vendor); err != nil {
		t.Fatalf("remove from second: %v", err)
	}
	pkg, err = ledger.GetPackage(ctx, vendor)
	if err != nil {
		t.Fatalf("get package after retire: %v", err)
	}
	if !pkg.Retired {
		t.Fatal("package must retire once the vendor has no memberships")
	}
}

func TestRemoveMemberNotFound(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, "Bakers", "Goa", "Cakes")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	err = svc.RemoveMember(ctx, group.ID, uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteGroupBlockedByAssignedLeads(t *testing.T) {
	t.Parallel()

	svc, _, db := newTestService(t)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, "DJs", "Hyderabad", "Music")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	vendor := uuid.New()
	if _, err := svc.AddMember(ctx, group.ID, vendor, 3); err != nil {
		t.Fatalf("add member: %v", err)
	}

	lead := models.Lead{
		ID:               uuid.New(),
		CustomerName:     "A",
		CustomerPhone:    "123456",
		RequestedService: "Music",
		City:             "Hyderabad",
		Status:           enums.LeadStatusAssigned,
		AssignedGroupID:  &group.ID,
		AssignedVendorID: &vendor,
	}
	if err := db.Create(&lead).Error; err != nil {
		t.Fatalf("seed lead: %v", err)
	}

	err = svc.DeleteGroup(ctx, group.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}

	// Drain the lead, then deletion goes through as a soft delete.
	if err := db.Model(&models.Lead{}).Where("id = ?", lead.ID).
		Update("status", enums.LeadStatusCompleted).Error; err != nil {
		t.Fatalf("complete lead: %v", err)
	}
	if err := svc.DeleteGroup(ctx, group.ID); err != nil {
		t.Fatalf("delete group: %v", err)
	}

	got, err := svc.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("get group after delete: %v", err)
	}
	if got.Active {
		t.Fatal("deleted group must be inactive, not gone")
	}

	if err := svc.ActivateGroup(ctx, group.ID); err != nil {
		t.Fatalf("activate group: %v", err)
	}
	got, err = svc.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("get group after activate: %v", err)
	}
	if !got.Active {
		t.Fatal("group should be active again")
	}
}

func TestListGroupsPagesWithOpaqueCursor(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"Planners A", "Planners B", "Planners C"} {
		if _, err := svc.CreateGroup(ctx, name, "Bhopal", "Planning"); err != nil {
			t.Fatalf("create group %s: %v", name, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	page, err := svc.ListGroups(ctx, pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("list groups: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("page should hold 2 groups, got %d", len(page.Items))
	}
	if page.Cursor == "" {
		t.Fatal("a further page exists, cursor must be set")
	}

	rest, err := svc.ListGroups(ctx, pagination.Params{Limit: 2, Cursor: page.Cursor})
	if err != nil {
		t.Fatalf("list groups page two: %v", err)
	}
	if len(rest.Items) != 1 {
		t.Fatalf("final page should hold 1 group, got %d", len(rest.Items))
	}
	if rest.Items[0].Name != "Planners C" {
		t.Fatalf("expected Planners C on the final page, got %s", rest.Items[0].Name)
	}
	if rest.Cursor != "" {
		t.Fatalf("exhausted listing must return an empty cursor, got %q", rest.Cursor)
	}
}
