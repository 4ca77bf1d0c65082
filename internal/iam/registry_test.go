package iam

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryEnsureIdempotent(t *testing.T) {
	repo := newMockRepository()
	registry := NewRegistry(repo, testLogger())

	first, err := registry.Ensure(context.Background(), "courses.enroll", "Enroll", "courses")
	require.NoError(t, err)
	second, err := registry.Ensure(context.Background(), "courses.enroll", "Different Name", "elsewhere")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Enroll", second.Name, "existing rows are returned untouched")
	assert.Len(t, repo.perms, 1)
}

func TestRegistryEnsureRejectsEmptyCode(t *testing.T) {
	registry := NewRegistry(newMockRepository(), testLogger())
	_, err := registry.Ensure(context.Background(), "  ", "x", "x")
	require.Error(t, err)
}

func TestRegistryEnsureDefaultsModuleFromCode(t *testing.T) {
	registry := NewRegistry(newMockRepository(), testLogger())
	perm, err := registry.Ensure(context.Background(), "attendance.confirm", "", "")
	require.NoError(t, err)
	assert.Equal(t, "attendance", perm.Module)
	assert.Equal(t, "attendance.confirm", perm.Name)
}

func TestRegistryDeactivateKeepsRow(t *testing.T) {
	repo := newMockRepository()
	registry := NewRegistry(repo, testLogger())
	perm, err := registry.Ensure(context.Background(), "regions.update", "", "")
	require.NoError(t, err)

	require.NoError(t, registry.Deactivate(context.Background(), perm.ID))
	stored, err := repo.GetPermission(context.Background(), perm.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	require.NoError(t, registry.Activate(context.Background(), perm.ID))
	stored, err = repo.GetPermission(context.Background(), perm.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
}

func TestRegistryReconcileEnsuresManifest(t *testing.T) {
	repo := newMockRepository()
	registry := NewRegistry(repo, testLogger())

	require.NoError(t, registry.Reconcile(context.Background()))
	for _, code := range ManifestCodes() {
		_, err := repo.GetPermissionByCode(context.Background(), code)
		require.NoError(t, err, "manifest code %s must exist after reconcile", code)
	}

	// a second run changes nothing
	before := len(repo.perms)
	require.NoError(t, registry.Reconcile(context.Background()))
	assert.Len(t, repo.perms, before)
}

func TestManifestCodesWellFormed(t *testing.T) {
	seen := make(map[string]bool)
	for _, code := range ManifestCodes() {
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
		assert.NotEmpty(t, ModuleOf(code))
		assert.Contains(t, code, ".")
	}
	for _, ns := range Manifest {
		assert.True(t, seen[ns.Namespace+".access"])
	}
}
