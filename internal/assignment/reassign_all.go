package assignment

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/vendorhub/leadrouter-backend/pkg/db/models"
	"github.com/vendorhub/leadrouter-backend/pkg/enums"
	pkgerrors "github.com/vendorhub/leadrouter-backend/pkg/errors"
)

// ReassignAllReport summarizes one drain of a group's assigned leads.
type ReassignAllReport struct {
	GroupID    uuid.UUID `json:"group_id"`
	Processed  int64     `json:"processed"`
	Reassigned int64     `json:"reassigned"`
	NoTarget   int64     `json:"no_target"`
	Failed     int64     `json:"failed"`
}

// ReassignAll drains every Assigned lead off a group before it becomes
// unavailable. Leads are processed with bounded parallelism; each one is
// released back to the pool and redistributed with the group excluded.
// A lead that finds no new home parks in New. Per-lead failures are
// aggregated, not fatal to the batch.
func (s *service) ReassignAll(ctx context.Context, groupID uuid.UUID) (*ReassignAllReport, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveDuration("reassign_all", time.Since(start)) }()

	ctx = s.logg.WithGroupID(ctx, groupID.String())

	affected, err := s.leads.ListAssignedByGroup(ctx, groupID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list assigned leads")
	}

	report := &ReassignAllReport{GroupID: groupID, Processed: int64(len(affected))}
	if len(affected) == 0 {
		return report, nil
	}

	workers := s.cfg.ReassignWorkers
	if workers <= 0 {
		workers = 1
	}

	var mu sync.Mutex
	var batchErr error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range affected {
		lead := affected[i]
		g.Go(func() error {
			switch err := s.reassignOne(gctx, &lead, groupID); {
			case err == nil:
				atomic.AddInt64(&report.Reassigned, 1)
			case pkgerrors.IsCode(err, pkgerrors.CodeNoTarget):
				atomic.AddInt64(&report.NoTarget, 1)
			default:
				atomic.AddInt64(&report.Failed, 1)
				mu.Lock()
				batchErr = multierr.Append(batchErr, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	if batchErr != nil {
		s.logg.Error(ctx, "reassign-all finished with failures", batchErr)
	}
	return report, batchErr
}

// reassignOne detaches a single lead from the disappearing group and re-runs
// distribution with that group excluded. Capacity conflicts get a few
// jittered retries so concurrent drains do not stampede the same fallback
// vendor.
func (s *service) reassignOne(ctx context.Context, lead *models.Lead, excludeGroup uuid.UUID) error {
	vendorID := lead.AssignedVendorID

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		leadTx := s.leads.WithTx(tx)
		ok, terr := leadTx.TransitionStatus(ctx, lead.ID, enums.LeadStatusAssigned, enums.LeadStatusNew, nil, nil)
		if terr != nil {
			return terr
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "lead state changed concurrently")
		}
		reason := "group unavailable"
		if terr := leadTx.AppendEvent(ctx, &models.LeadEvent{
			LeadID:     lead.ID,
			FromStatus: enums.LeadStatusAssigned,
			ToStatus:   enums.LeadStatusNew,
			GroupID:    lead.AssignedGroupID,
			VendorID:   vendorID,
			Reason:     &reason,
		}); terr != nil {
			return terr
		}
		// Release inside the detach transaction: the vendor gets the slot
		// back only if the lead actually left the group.
		if vendorID != nil {
			return s.ledger.WithTx(tx).Release(ctx, *vendorID, 1)
		}
		return nil
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			// Someone else already moved this lead; nothing to drain.
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "detach lead from group")
	}

	backoff := retry.WithJitter(s.cfg.RetryBaseDelay/2,
		retry.WithMaxRetries(uint64(s.cfg.ReserveRetries),
			retry.NewExponential(s.cfg.RetryBaseDelay)))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		fresh, lerr := s.loadLead(ctx, lead.ID)
		if lerr != nil {
			return lerr
		}
		if fresh.Status != enums.LeadStatusNew {
			return nil
		}
		_, derr := s.distribute(ctx, fresh, enums.LeadStatusNew, enums.OutcomeReassigned, &excludeGroup)
		if derr == nil {
			return nil
		}
		// Capacity freed by sibling workers can appear a moment later.
		if pkgerrors.IsCode(derr, pkgerrors.CodeNoTarget) {
			return retry.RetryableError(derr)
		}
		return derr
	})
}
