package iam

import (
	"context"
	"fmt"
	"log/slog"
)

// baselinePolicies grants each role its default portal areas. Administrators
// adjust the live matrix from the sysadmin screens; these rows only install
// on a pristine database.
var baselinePolicies = map[Role][]string{
	RoleRegionManager: {"core.access", "regions.access", "individuals.access", "trainers.access", "support.access"},
	RoleSupervisor:    {"core.access", "individuals.access", "trainers.access", "support.access"},
	RoleCoordinator:   {"core.access", "courses.access", "attendance.access", "certificates.access", "support.access"},
	RoleTrainer:       {"core.access", "trainers.access", "courses.access", "certificates.access"},
	RoleOrgRep:        {"core.access", "organizations.access", "courses.access"},
	RoleIndividual:    {"core.access", "individuals.access", "courses.access", "certificates.access"},
}

// SeedBaseline installs the default role policy matrix. It is a no-op when
// any role policy already exists, so operators can run it on every deploy.
func SeedBaseline(ctx context.Context, repo Repository, registry *Registry, logger *slog.Logger) error {
	count, err := repo.CountRolePolicies(ctx)
	if err != nil {
		return fmt.Errorf("iam: seed baseline: %w", err)
	}
	if count > 0 {
		logger.Debug("role policies already present, skipping baseline seed", "count", count)
		return nil
	}
	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for role, codes := range baselinePolicies {
			for _, code := range codes {
				perm, err := registry.Ensure(ctx, code, code, ModuleOf(code))
				if err != nil {
					return err
				}
				if err := tx.UpsertRolePolicy(ctx, role, perm.ID, true); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("iam: seed baseline: %w", err)
	}
	logger.Info("seeded baseline role policies", "roles", len(baselinePolicies))
	return nil
}
