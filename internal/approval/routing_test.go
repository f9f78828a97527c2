package approval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	roleManager  int64 = 10
	roleDirector int64 = 20
	roleClerk    int64 = 30
)

func twoLevelSnapshot(tenantID int64, docType DocumentType) ConfigSnapshot {
	return ConfigSnapshot{Configured: true, Levels: []LevelConfig{
		{TenantID: tenantID, DocumentType: docType, LevelIndex: 1, RoleIDs: []int64{roleManager}},
		{TenantID: tenantID, DocumentType: docType, LevelIndex: 2, RoleIDs: []int64{roleDirector}},
	}}
}

func TestResolverEligibility(t *testing.T) {
	ctx := context.Background()
	source := staticSnapshots{configKey(1, DocumentTypeSalesOrder): twoLevelSnapshot(1, DocumentTypeSalesOrder)}
	resolver := NewResolver(source)

	roles, err := resolver.EligibleRoles(ctx, 1, DocumentTypeSalesOrder, 2)
	require.NoError(t, err)
	require.Equal(t, []int64{roleDirector}, roles)

	manager := Actor{ID: 7, RoleIDs: []int64{roleClerk, roleManager}}
	ok, err := resolver.IsEligible(ctx, manager, 1, DocumentTypeSalesOrder, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = resolver.IsEligible(ctx, manager, 1, DocumentTypeSalesOrder, 2)
	require.NoError(t, err)
	require.False(t, ok)

	admin := Actor{ID: 1, SuperAdmin: true}
	ok, err = resolver.IsEligible(ctx, admin, 1, DocumentTypeSalesOrder, 2)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestResolverMissingLevelIsConfigError(t *testing.T) {
	ctx := context.Background()
	source := staticSnapshots{configKey(1, DocumentTypeSalesOrder): twoLevelSnapshot(1, DocumentTypeSalesOrder)}
	resolver := NewResolver(source)

	admin := Actor{ID: 1, SuperAdmin: true}
	_, err := resolver.IsEligible(ctx, admin, 1, DocumentTypeSalesOrder, 3)
	require.ErrorIs(t, err, ErrConfigMissing)

	_, err = resolver.EligibleRoles(ctx, 1, DocumentTypeSalesInvoice, 1)
	var missing *ConfigMissingError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, DocumentTypeSalesInvoice, missing.DocumentType)
	require.Equal(t, 1, missing.LevelIndex)
}

func TestResolverAuthorizeNamesRequiredRoles(t *testing.T) {
	source := staticSnapshots{configKey(1, DocumentTypeSalesOrder): twoLevelSnapshot(1, DocumentTypeSalesOrder)}
	resolver := NewResolver(source)

	_, err := resolver.Authorize(context.Background(), Actor{ID: 9, RoleIDs: []int64{roleDirector}}, 1, DocumentTypeSalesOrder, 1)
	require.ErrorIs(t, err, ErrNotEligible)
	var notEligible *NotEligibleError
	require.True(t, errors.As(err, &notEligible))
	require.Equal(t, int64(9), notEligible.ActorID)
	require.Equal(t, 1, notEligible.LevelIndex)
	require.Equal(t, []int64{roleManager}, notEligible.RequiredRoles)
}

func TestEligibleLevels(t *testing.T) {
	snap := twoLevelSnapshot(1, DocumentTypeSalesOrder)
	require.Equal(t, []int{1}, EligibleLevels(snap, Actor{RoleIDs: []int64{roleManager}}))
	require.Equal(t, []int{1, 2}, EligibleLevels(snap, Actor{RoleIDs: []int64{roleManager, roleDirector}}))
	require.Empty(t, EligibleLevels(snap, Actor{RoleIDs: []int64{roleClerk}}))
	require.NotNil(t, EligibleLevels(snap, Actor{}))
	require.Nil(t, EligibleLevels(snap, Actor{SuperAdmin: true}))
}
