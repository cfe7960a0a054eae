package rbac

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// commitConcurrency bounds the number of role replacements in flight at once.
const commitConcurrency = 4

// LoadMatrix projects the full Role x Permission grid. Grants is derived
// from each role's current permission list; it is a read-only projection,
// not an entity of its own.
func (s *Service) LoadMatrix(ctx context.Context) (Matrix, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return Matrix{}, err
	}
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return Matrix{}, err
	}
	grants, err := s.repo.ListGrants(ctx)
	if err != nil {
		return Matrix{}, err
	}
	// Roles without grants still get an entry so the grid renders every row.
	for _, role := range roles {
		if _, ok := grants[role.ID]; !ok {
			grants[role.ID] = []int64{}
		}
	}
	return Matrix{Roles: roles, Permissions: perms, Grants: grants}, nil
}

// CommitMatrix replaces every listed role's grant set with exactly the given
// permission ids, in parallel and independently per role. Roles that fail
// leave the others committed; the caller gets one result per role and is
// expected to retry the failed ones. There is no cross-role transaction and
// no version check: when two administrators commit concurrently, the last
// write per role wins.
func (s *Service) CommitMatrix(ctx context.Context, grants map[int64][]int64) []RoleResult {
	results := make([]RoleResult, 0, len(grants))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(commitConcurrency)
	for roleID, permissionIDs := range grants {
		roleID, permissionIDs := roleID, permissionIDs
		g.Go(func() error {
			err := s.SetRolePermissions(ctx, roleID, permissionIDs)
			mu.Lock()
			results = append(results, RoleResult{RoleID: roleID, Err: err})
			mu.Unlock()
			// Errors are reported per role, never propagated: one bad role
			// must not cancel the siblings.
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].RoleID < results[j].RoleID })
	return results
}
