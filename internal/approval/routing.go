package approval

import (
	"context"
)

// SnapshotSource supplies configuration snapshots to the resolver.
type SnapshotSource interface {
	Snapshot(ctx context.Context, tenantID int64, docType DocumentType) (ConfigSnapshot, error)
}

// Resolver answers who may act at a level. It is the only place eligibility is decided.
type Resolver struct {
	source SnapshotSource
}

// NewResolver constructs a Resolver.
func NewResolver(source SnapshotSource) *Resolver {
	return &Resolver{source: source}
}

// EligibleRoles returns the roles configured for the exact level.
func (r *Resolver) EligibleRoles(ctx context.Context, tenantID int64, docType DocumentType, levelIndex int) ([]int64, error) {
	snap, err := r.source.Snapshot(ctx, tenantID, docType)
	if err != nil {
		return nil, err
	}
	return rolesAt(snap, tenantID, docType, levelIndex)
}

// IsEligible reports whether actor may act at the level. A level without
// configuration is an error, never an implicit grant, even for super-admins.
func (r *Resolver) IsEligible(ctx context.Context, actor Actor, tenantID int64, docType DocumentType, levelIndex int) (bool, error) {
	roles, err := r.EligibleRoles(ctx, tenantID, docType, levelIndex)
	if err != nil {
		return false, err
	}
	return actor.SuperAdmin || intersects(actor.RoleIDs, roles), nil
}

// Authorize is IsEligible returning a NotEligibleError on refusal.
func (r *Resolver) Authorize(ctx context.Context, actor Actor, tenantID int64, docType DocumentType, levelIndex int) ([]int64, error) {
	roles, err := r.EligibleRoles(ctx, tenantID, docType, levelIndex)
	if err != nil {
		return nil, err
	}
	if actor.SuperAdmin || intersects(actor.RoleIDs, roles) {
		return roles, nil
	}
	return roles, &NotEligibleError{ActorID: actor.ID, LevelIndex: levelIndex, RequiredRoles: roles}
}

// EligibleLevels returns the level indexes of snap the actor may act at.
// Super-admins get nil, meaning every level.
func EligibleLevels(snap ConfigSnapshot, actor Actor) []int {
	if actor.SuperAdmin {
		return nil
	}
	levels := []int{}
	for _, l := range snap.Levels {
		if intersects(actor.RoleIDs, l.RoleIDs) {
			levels = append(levels, l.LevelIndex)
		}
	}
	return levels
}

func rolesAt(snap ConfigSnapshot, tenantID int64, docType DocumentType, levelIndex int) ([]int64, error) {
	level, ok := snap.Level(levelIndex)
	if !ok || len(level.RoleIDs) == 0 {
		return nil, &ConfigMissingError{TenantID: tenantID, DocumentType: docType, LevelIndex: missingLevel(levelIndex)}
	}
	return level.RoleIDs, nil
}

// missingLevel keeps ConfigMissingError.LevelIndex non-zero for level lookups.
func missingLevel(index int) int {
	if index <= 0 {
		return -1
	}
	return index
}

func intersects(a, b []int64) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[int64]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	for _, id := range a {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}
