// Package konpo recomputes packaging weights: part unit weights from their
// materials, and unit weights and quantities from their parts.
package konpo

import (
	"context"

	"go.uber.org/zap"

	"bomdesk/logging"
	"bomdesk/metrics"
	"bomdesk/store"
)

// Operation names used for metrics, events and the audit log.
const (
	OpRecompute = "recompute_part_weights"
	OpSync      = "sync_unregistered_units"
	OpListMake  = "create_packaging_list"
	OpRefresh   = "refresh_part_info"
)

type RecomputeResult struct {
	ProjectID        string `json:"project"`
	UpdatedPartCount int    `json:"updatedCount"`
	UpdatedUnitCount int    `json:"updatedUnitCount"`
}

type SyncResult struct {
	ProjectID          string `json:"project,omitempty"`
	SyncedCount        int    `json:"syncedCount"`
	UpdatedWeightCount int    `json:"updatedWeightCount"`
	SkippedCount       int    `json:"skippedCount"`
}

type ListResult struct {
	ProjectID    string `json:"project"`
	KonpoID      string `json:"konpoId"`
	UpdatedCount int    `json:"updatedCount"`
}

type RefreshResult struct {
	ProjectID    string `json:"project,omitempty"`
	UpdatedCount int    `json:"updatedCount"`
	SkippedCount int    `json:"skippedCount"`
}

// Propagator runs the packaging weight procedures against the database.
// Recompute, sync and refresh write record by record without a surrounding
// transaction; each is idempotent and safe to re-run after a partial failure.
type Propagator struct {
	db  *store.DB
	log *zap.Logger
}

func New(db *store.DB, log *zap.Logger) *Propagator {
	return &Propagator{db: db, log: logging.OrNop(log).Named("konpo")}
}

// RecomputePartWeights sets every part's unit weight of the project to the
// sum of its material weights, then rewrites the weight and quantity of
// every unit referencing the part.
func (p *Propagator) RecomputePartWeights(ctx context.Context, projectID string) (res *RecomputeResult, err error) {
	res = &RecomputeResult{ProjectID: projectID}
	defer func() { metrics.RecordPropagation(OpRecompute, res.UpdatedPartCount, err) }()
	if projectID == "" {
		return res, &store.ValidationError{Field: "projectNumber", Reason: "required"}
	}

	parts, err := p.db.ListParts(ctx, projectID)
	if err != nil {
		return res, err
	}
	sums, err := p.db.MaterialWeightSums(ctx, projectID)
	if err != nil {
		return res, err
	}

	for _, part := range parts {
		weight := sums[part.ID]
		if err := p.db.UpdatePartUnitWeight(ctx, projectID, part.ID, weight); err != nil {
			return res, err
		}
		res.UpdatedPartCount++

		units, err := p.db.ListUnitsByPart(ctx, projectID, part.ID)
		if err != nil {
			return res, err
		}
		for _, u := range units {
			u.Derive(weight)
			if err := p.db.UpdateUnitDerived(ctx, u); err != nil {
				return res, err
			}
			res.UpdatedUnitCount++
		}
	}
	p.log.Info("part weights recomputed",
		zap.String("project", projectID), zap.Int("parts", res.UpdatedPartCount), zap.Int("units", res.UpdatedUnitCount))
	return res, nil
}

// SyncUnregisteredUnits repairs the derived numbers of units not yet in a
// packaging list, reading the part weight through a join. It never assigns
// a list. An empty projectID covers every project. UpdatedWeightCount counts
// units whose stored weight actually changed. Units whose part no longer
// exists keep their stored numbers and are counted in SkippedCount.
func (p *Propagator) SyncUnregisteredUnits(ctx context.Context, projectID string) (res *SyncResult, err error) {
	res = &SyncResult{ProjectID: projectID}
	defer func() { metrics.RecordPropagation(OpSync, res.SyncedCount, err) }()

	units, err := p.db.ListUnregisteredUnits(ctx, projectID)
	if err != nil {
		return res, err
	}
	for _, uu := range units {
		u := &uu.KonpoUnit
		if !uu.HasPart {
			res.SkippedCount++
			continue
		}
		prev := u.BuzaiWeight
		u.Derive(uu.CurrentUnitWeight)
		if err := p.db.UpdateUnitDerived(ctx, u); err != nil {
			return res, err
		}
		res.SyncedCount++
		if u.BuzaiWeight != prev {
			res.UpdatedWeightCount++
		}
	}
	p.log.Info("unregistered units synced",
		zap.String("project", projectID), zap.Int("synced", res.SyncedCount), zap.Int("weight_changed", res.UpdatedWeightCount),
		zap.Int("skipped", res.SkippedCount))
	return res, nil
}

// CreatePackagingList groups units into a new list. The list row and every
// unit assignment commit together or not at all.
func (p *Propagator) CreatePackagingList(ctx context.Context, projectID string, unitIDs []string, createdBy string) (res *ListResult, err error) {
	res = &ListResult{ProjectID: projectID}
	defer func() { metrics.RecordPropagation(OpListMake, res.UpdatedCount, err) }()
	if projectID == "" {
		return res, &store.ValidationError{Field: "projectNumber", Reason: "required"}
	}

	list, n, err := p.db.CreatePackagingList(ctx, projectID, "", createdBy, unitIDs)
	if err != nil {
		p.log.Warn("create packaging list failed", zap.String("project", projectID), zap.Error(err))
		return res, err
	}
	res.KonpoID = list.ID
	res.UpdatedCount = n
	p.log.Info("packaging list created",
		zap.String("project", projectID), zap.String("list", list.ID), zap.Int("units", n))
	return res, nil
}

// RefreshPartInfoOnUnits copies name, manufacturer and unit weight from each
// unit's part onto the unit. Units whose part cannot be read are skipped.
func (p *Propagator) RefreshPartInfoOnUnits(ctx context.Context, projectID string) (res *RefreshResult, err error) {
	res = &RefreshResult{ProjectID: projectID}
	defer func() { metrics.RecordPropagation(OpRefresh, res.UpdatedCount, err) }()

	units, err := p.db.ListAllUnits(ctx, projectID)
	if err != nil {
		return res, err
	}
	for _, u := range units {
		part, err := p.db.GetPart(ctx, u.ProjectID, u.PartID)
		if err != nil {
			res.SkippedCount++
			continue
		}
		if err := p.db.UpdateUnitPartInfo(ctx, u.ID, part); err != nil {
			return res, err
		}
		res.UpdatedCount++
	}
	p.log.Info("unit part info refreshed",
		zap.String("project", projectID), zap.Int("updated", res.UpdatedCount), zap.Int("skipped", res.SkippedCount))
	return res, nil
}
