package iam

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Registry manages the permission catalog. Permissions are created lazily the
// first time a route is guarded and eagerly at startup from the manifest; they
// are deactivated rather than deleted so historical policy rows keep meaning.
type Registry struct {
	repo   Repository
	logger *slog.Logger
}

func NewRegistry(repo Repository, logger *slog.Logger) *Registry {
	return &Registry{repo: repo, logger: logger}
}

// Ensure registers a permission code if it does not exist yet and returns the
// stored row. Existing rows are returned untouched, active or not.
func (g *Registry) Ensure(ctx context.Context, code, name, module string) (Permission, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Permission{}, fmt.Errorf("iam: ensure permission: empty code")
	}
	return g.repo.EnsurePermission(ctx, code, name, module)
}

// Deactivate retires a permission. Policy and override rows survive but stop
// influencing resolution until the code is reactivated.
func (g *Registry) Deactivate(ctx context.Context, id int64) error {
	return g.repo.SetPermissionActive(ctx, id, false)
}

// Activate restores a retired permission.
func (g *Registry) Activate(ctx context.Context, id int64) error {
	return g.repo.SetPermissionActive(ctx, id, true)
}

// List returns the catalog, optionally restricted to active rows.
func (g *Registry) List(ctx context.Context, activeOnly bool) ([]Permission, error) {
	return g.repo.ListPermissions(ctx, activeOnly)
}

// Reconcile ensures every manifest code exists and logs registry rows the
// manifest no longer declares. Drift is reported, not repaired: a code may
// belong to a route that was renamed and still carry policy worth reviewing.
func (g *Registry) Reconcile(ctx context.Context) error {
	declared := make(map[string]bool)
	for _, ns := range Manifest {
		accessCode := ns.Namespace + ".access"
		declared[accessCode] = true
		if _, err := g.Ensure(ctx, accessCode, ns.Title+" (access)", ns.Namespace); err != nil {
			return fmt.Errorf("iam: reconcile %s: %w", accessCode, err)
		}
		for _, ep := range ns.Endpoints {
			code := ns.Namespace + "." + ep
			declared[code] = true
			if _, err := g.Ensure(ctx, code, ns.Title+": "+ep, ns.Namespace); err != nil {
				return fmt.Errorf("iam: reconcile %s: %w", code, err)
			}
		}
	}

	existing, err := g.repo.ListPermissions(ctx, false)
	if err != nil {
		return fmt.Errorf("iam: reconcile list: %w", err)
	}
	for _, perm := range existing {
		if !declared[perm.Code] && perm.IsActive {
			g.logger.Warn("permission not declared in manifest",
				"code", perm.Code, "module", perm.Module)
		}
	}
	return nil
}
