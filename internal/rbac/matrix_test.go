package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/recycleops/recycleops/internal/platform/httpx"
)

func TestLoadMatrixBackfillsEmptyRoles(t *testing.T) {
	repo := newMemoryRepo()
	granted := repo.addRole("admin")
	empty := repo.addRole("viewer")
	perm := repo.addPermission("tickets.view", "tickets")
	repo.grants[granted.ID] = []int64{perm.ID}
	svc := NewService(repo)

	matrix, err := svc.LoadMatrix(context.Background())
	require.NoError(t, err)
	require.Len(t, matrix.Roles, 2)
	require.Len(t, matrix.Permissions, 1)
	require.Equal(t, []int64{perm.ID}, matrix.Grants[granted.ID])

	// Roles without grants still appear with an empty, non-nil entry.
	grants, ok := matrix.Grants[empty.ID]
	require.True(t, ok)
	require.NotNil(t, grants)
	require.Empty(t, grants)
}

func TestCommitMatrixAppliesEveryRole(t *testing.T) {
	repo := newMemoryRepo()
	admin := repo.addRole("admin")
	staff := repo.addRole("staff")
	view := repo.addPermission("tickets.view", "tickets")
	create := repo.addPermission("tickets.create", "tickets")
	svc := NewService(repo)

	results := svc.CommitMatrix(context.Background(), map[int64][]int64{
		admin.ID: {view.ID, create.ID},
		staff.ID: {view.ID},
	})

	require.Len(t, results, 2)
	for _, result := range results {
		require.NoError(t, result.Err)
	}
	require.Equal(t, []int64{view.ID, create.ID}, repo.grants[admin.ID])
	require.Equal(t, []int64{view.ID}, repo.grants[staff.ID])
}

func TestCommitMatrixPartialFailure(t *testing.T) {
	repo := newMemoryRepo()
	good := repo.addRole("admin")
	bad := repo.addRole("staff")
	perm := repo.addPermission("tickets.view", "tickets")
	repo.replaceErr[bad.ID] = errors.New("boom")
	svc := NewService(repo)

	results := svc.CommitMatrix(context.Background(), map[int64][]int64{
		good.ID: {perm.ID},
		bad.ID:  {perm.ID},
	})

	// Results come back sorted by role id, one per role.
	require.Len(t, results, 2)
	require.Equal(t, good.ID, results[0].RoleID)
	require.NoError(t, results[0].Err)
	require.Equal(t, bad.ID, results[1].RoleID)
	require.Error(t, results[1].Err)

	// The failed role leaves the successful one committed.
	require.Equal(t, []int64{perm.ID}, repo.grants[good.ID])
	require.Empty(t, repo.grants[bad.ID])
}

func TestCommitMatrixUnknownPermissionFailsOnlyThatRole(t *testing.T) {
	repo := newMemoryRepo()
	good := repo.addRole("admin")
	bad := repo.addRole("staff")
	perm := repo.addPermission("tickets.view", "tickets")
	svc := NewService(repo)

	results := svc.CommitMatrix(context.Background(), map[int64][]int64{
		good.ID: {perm.ID},
		bad.ID:  {9999},
	})

	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	require.ErrorIs(t, results[1].Err, httpx.ErrValidation)
	require.Equal(t, []int64{perm.ID}, repo.grants[good.ID])
}

func TestCommitMatrixManyRoles(t *testing.T) {
	repo := newMemoryRepo()
	perm := repo.addPermission("tickets.view", "tickets")
	grants := make(map[int64][]int64)
	for i := 0; i < 20; i++ {
		role := repo.addRole("role-" + string(rune('a'+i)))
		grants[role.ID] = []int64{perm.ID}
	}
	svc := NewService(repo)

	results := svc.CommitMatrix(context.Background(), grants)
	require.Len(t, results, 20)
	for i, result := range results {
		require.NoError(t, result.Err)
		if i > 0 {
			require.Greater(t, result.RoleID, results[i-1].RoleID)
		}
	}
}
