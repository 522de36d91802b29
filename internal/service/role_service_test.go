package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"backoffice/internal/cache"
	"backoffice/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededRoles(t *testing.T) (*fakeRoles, RoleService) {
	t.Helper()
	roles := newFakeRoles()
	svc := NewRoleService(&fakeTx{}, roles, cache.NewMemory(time.Minute))
	require.NoError(t, svc.SeedDefaultRolesAndPermissions(context.Background()))
	return roles, svc
}

func TestSeedDefaultRolesAndPermissions(t *testing.T) {
	roles, svc := seededRoles(t)
	ctx := context.Background()

	for _, name := range []string{model.RoleAdmin, model.RolePartner, model.RoleLogistics, model.RoleClient} {
		ok, err := svc.RoleExists(ctx, name)
		require.NoError(t, err)
		assert.True(t, ok, name)
		assert.True(t, roles.roles[name].IsSystem, name)
	}
	assert.Len(t, roles.codes[model.RoleAdmin], len(defaultPermissions))
	assert.ElementsMatch(t, []string{model.PermMachinesRead, model.PermMachinesWrite, model.PermClientsRead, model.PermTicketsRead},
		roles.codes[model.RoleLogistics])

	// seeding twice keeps a single copy of each role
	require.NoError(t, svc.SeedDefaultRolesAndPermissions(ctx))
	assert.Len(t, roles.roles, 4)
}

func TestGetPermissionsByRoleName_UsesCache(t *testing.T) {
	roles, svc := seededRoles(t)
	ctx := context.Background()

	first, err := svc.GetPermissionsByRoleName(ctx, model.RoleClient)
	require.NoError(t, err)
	second, err := svc.GetPermissionsByRoleName(ctx, model.RoleClient)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, first, model.PermTicketsWrite)
	assert.Equal(t, 1, roles.codeCalls)

	unknown, err := svc.GetPermissionsByRoleName(ctx, "ghost")
	require.NoError(t, err)
	assert.NotNil(t, unknown)
	assert.Empty(t, unknown)
}

func TestUpdateRolePermissions_InvalidatesCache(t *testing.T) {
	roles, svc := seededRoles(t)
	ctx := context.Background()
	partner := roles.roles[model.RolePartner]

	_, err := svc.GetPermissionsByRoleName(ctx, model.RolePartner)
	require.NoError(t, err)

	_, err = svc.UpdateRolePermissions(ctx, partner.ID.String(), UpdateRolePermissionsRequest{})
	require.NoError(t, err)

	codes, err := svc.GetPermissionsByRoleName(ctx, model.RolePartner)
	require.NoError(t, err)
	assert.Empty(t, codes)
	assert.Equal(t, 2, roles.codeCalls)
}

func TestSystemRolesAreProtected(t *testing.T) {
	roles, svc := seededRoles(t)
	ctx := context.Background()
	admin := roles.roles[model.RoleAdmin]

	_, err := svc.UpdateRole(ctx, admin.ID.String(), UpdateRoleRequest{Name: "root"})
	assert.True(t, errors.Is(err, ErrForbidden))

	err = svc.DeleteRole(ctx, admin.ID.String())
	assert.True(t, errors.Is(err, ErrForbidden))

	// description changes are fine
	resp, err := svc.UpdateRole(ctx, admin.ID.String(), UpdateRoleRequest{Name: "admin", Description: "Owners"})
	require.NoError(t, err)
	assert.Equal(t, "Owners", resp.Description)
}

func TestCustomRoleLifecycle(t *testing.T) {
	roles, svc := seededRoles(t)
	ctx := context.Background()

	created, err := svc.CreateRole(ctx, CreateRoleRequest{Name: " Auditor "})
	require.NoError(t, err)
	assert.Equal(t, "auditor", created.Name)

	_, err = svc.CreateRole(ctx, CreateRoleRequest{Name: "auditor"})
	assert.True(t, errors.Is(err, ErrConflict))

	require.NoError(t, svc.DeleteRole(ctx, created.ID))
	assert.NotContains(t, roles.roles, "auditor")
}
