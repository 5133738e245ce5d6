package policy

import (
	"hash/fnv"
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"github.com/vendorhub/leadrouter-backend/pkg/enums"
)

// Rank orders every reachable (group, vendor) pair for the lead under the
// given policy. It is a pure function over the snapshot: the caller filters
// eligibility (active, service, city) before calling, and persists cursor
// advances only for the candidate that actually wins reservation.
//
// Groups must arrive in registration order (createdAt ascending); round-robin
// treats that order as the rotation basis. An empty result means no vendor in
// any group can take the lead.
func Rank(pol PolicySnapshot, leadID uuid.UUID, groups []GroupSnapshot) []Candidate {
	if len(groups) == 0 {
		return nil
	}

	switch pol.Name {
	case enums.PolicyRoundRobin:
		return rankRoundRobin(pol, groups)
	case enums.PolicyLeastBusyGroup:
		return rankLeastBusy(pol, groups)
	case enums.PolicyRandom:
		return rankRandom(pol, leadID, groups)
	default:
		return rankBySpecialty(pol, groups)
	}
}

// rankBySpecialty orders groups by remaining-capacity fraction descending,
// then walks each group's vendor rotation.
func rankBySpecialty(pol PolicySnapshot, groups []GroupSnapshot) []Candidate {
	ordered := make([]GroupSnapshot, len(groups))
	copy(ordered, groups)
	sort.SliceStable(ordered, func(i, j int) bool {
		fi, fj := ordered[i].RemainingFraction(), ordered[j].RemainingFraction()
		if fi != fj {
			return fi > fj
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	var out []Candidate
	for _, g := range ordered {
		out = append(out, rotationCandidates(g, pol.Cursor)...)
	}
	return out
}

// rankRoundRobin starts from the group at the global cursor and wraps through
// the registration-order list. Each candidate records the cursor position that
// follows its own group, so the scope rotates one step per delivered lead.
func rankRoundRobin(pol PolicySnapshot, groups []GroupSnapshot) []Candidate {
	n := len(groups)
	start := pol.Cursor % n
	if start < 0 {
		start += n
	}

	var out []Candidate
	for offset := 0; offset < n; offset++ {
		idx := (start + offset) % n
		cands := rotationCandidates(groups[idx], pol.Cursor)
		for i := range cands {
			cands[i].NextGlobalCursor = (idx + 1) % n
		}
		out = append(out, cands...)
	}
	return out
}

// rankLeastBusy orders groups by consumed/total ascending; equal ratios fall
// back to the older group.
func rankLeastBusy(pol PolicySnapshot, groups []GroupSnapshot) []Candidate {
	ordered := make([]GroupSnapshot, len(groups))
	copy(ordered, groups)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := ordered[i].BusyRatio(), ordered[j].BusyRatio()
		if ri != rj {
			return ri < rj
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	var out []Candidate
	for _, g := range ordered {
		out = append(out, rotationCandidates(g, pol.Cursor)...)
	}
	return out
}

// rankRandom shuffles groups and vendors with a PRNG seeded from the policy
// seed and the lead id, so the same lead always ranks the same way while
// different leads spread uniformly. Cursors are left untouched.
func rankRandom(pol PolicySnapshot, leadID uuid.UUID, groups []GroupSnapshot) []Candidate {
	rng := rand.New(rand.NewSource(mixSeed(pol.Seed, leadID)))

	order := rng.Perm(len(groups))
	var out []Candidate
	for _, idx := range order {
		g := groups[idx]
		var eligible []VendorSnapshot
		for _, m := range g.Members {
			if m.Eligible() {
				eligible = append(eligible, m)
			}
		}
		if len(eligible) == 0 {
			continue
		}
		for _, vi := range rng.Perm(len(eligible)) {
			out = append(out, Candidate{
				GroupID:          g.ID,
				VendorID:         eligible[vi].VendorID,
				NextGroupCursor:  g.Cursor,
				NextGlobalCursor: pol.Cursor,
			})
		}
	}
	return out
}

// rotationCandidates walks the member list starting at the group cursor,
// skipping paused or exhausted vendors, wrapping once around. Each candidate's
// NextGroupCursor points just past the vendor it names.
func rotationCandidates(g GroupSnapshot, globalCursor int) []Candidate {
	n := len(g.Members)
	if n == 0 {
		return nil
	}
	start := g.Cursor % n
	if start < 0 {
		start += n
	}

	var out []Candidate
	for offset := 0; offset < n; offset++ {
		idx := (start + offset) % n
		m := g.Members[idx]
		if !m.Eligible() {
			continue
		}
		out = append(out, Candidate{
			GroupID:          g.ID,
			VendorID:         m.VendorID,
			NextGroupCursor:  (idx + 1) % n,
			NextGlobalCursor: globalCursor,
		})
	}
	return out
}

func mixSeed(seed int64, leadID uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write(leadID[:])
	return seed ^ int64(h.Sum64())
}
