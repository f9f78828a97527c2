package approval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// ConfigRepository persists approval level configuration.
type ConfigRepository interface {
	GetLevels(ctx context.Context, tenantID int64, docType DocumentType) ([]LevelConfig, bool, error)
	ReplaceLevels(ctx context.Context, tenantID int64, docType DocumentType, levels []LevelConfig, actorID int64) error
}

// ConfigService is the approval configuration store.
type ConfigService struct {
	repo   ConfigRepository
	cache  *ConfigCache
	logger *slog.Logger
}

// NewConfigService constructs the configuration store. cache may be nil.
func NewConfigService(repo ConfigRepository, cache *ConfigCache, logger *slog.Logger) *ConfigService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigService{repo: repo, cache: cache, logger: logger}
}

// Snapshot returns the configuration together with whether it was ever set.
func (s *ConfigService) Snapshot(ctx context.Context, tenantID int64, docType DocumentType) (ConfigSnapshot, error) {
	if tenantID <= 0 || !docType.Valid() {
		return ConfigSnapshot{}, fmt.Errorf("%w: tenant %d document type %q", ErrValidation, tenantID, docType)
	}
	return s.cache.Load(ctx, tenantID, docType, func(ctx context.Context) (ConfigSnapshot, error) {
		levels, configured, err := s.repo.GetLevels(ctx, tenantID, docType)
		if err != nil {
			return ConfigSnapshot{}, fmt.Errorf("load approval levels: %w", err)
		}
		return ConfigSnapshot{Configured: configured, Levels: levels}, nil
	})
}

// GetConfig returns the ordered levels. An empty list means no approval is required.
func (s *ConfigService) GetConfig(ctx context.Context, tenantID int64, docType DocumentType) ([]LevelConfig, error) {
	snap, err := s.Snapshot(ctx, tenantID, docType)
	if err != nil {
		return nil, err
	}
	if snap.Levels == nil {
		return []LevelConfig{}, nil
	}
	return snap.Levels, nil
}

// ReplaceConfig atomically replaces the whole level list. Documents already in
// flight keep their frozen level count.
func (s *ConfigService) ReplaceConfig(ctx context.Context, tenantID int64, docType DocumentType, inputs []LevelInput, actorID int64) ([]LevelConfig, error) {
	levels, err := NormalizeLevels(tenantID, docType, inputs)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceLevels(ctx, tenantID, docType, levels, actorID); err != nil {
		return nil, fmt.Errorf("replace approval levels: %w", err)
	}
	s.cache.Put(ctx, tenantID, docType, ConfigSnapshot{Configured: true, Levels: levels})
	s.logger.Info("approval config replaced",
		slog.Int64("tenant_id", tenantID),
		slog.String("document_type", string(docType)),
		slog.Int("levels", len(levels)),
		slog.Int64("actor_id", actorID),
	)
	return levels, nil
}

// NormalizeLevels validates caller input and re-indexes it 1..N in input order.
// Caller-supplied indices are ignored.
func NormalizeLevels(tenantID int64, docType DocumentType, inputs []LevelInput) ([]LevelConfig, error) {
	if tenantID <= 0 {
		return nil, fmt.Errorf("%w: tenant id required", ErrValidation)
	}
	if !docType.Valid() {
		return nil, fmt.Errorf("%w: unknown document type %q", ErrValidation, docType)
	}
	levels := make([]LevelConfig, 0, len(inputs))
	for i, in := range inputs {
		roles, err := normalizeRoles(in.RoleIDs)
		if err != nil {
			return nil, fmt.Errorf("%w: level %d: %s", ErrValidation, i+1, err.Error())
		}
		levels = append(levels, LevelConfig{
			TenantID:     tenantID,
			DocumentType: docType,
			LevelIndex:   i + 1,
			RoleIDs:      roles,
		})
	}
	return levels, nil
}

func normalizeRoles(ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("role set must not be empty")
	}
	seen := make(map[int64]struct{}, len(ids))
	roles := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, fmt.Errorf("invalid role id %d", id)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		roles = append(roles, id)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles, nil
}
