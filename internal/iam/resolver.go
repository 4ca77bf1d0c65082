package iam

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

const cacheSize = 50000

// GenerationSource tracks a monotonically increasing cache generation shared
// by every process. Bumping it tells all resolvers to drop their local caches.
type GenerationSource interface {
	Current(ctx context.Context) (int64, error)
	Bump(ctx context.Context) (int64, error)
}

// RedisGeneration stores the generation counter in Redis so invalidation in
// one process is visible to the rest of the fleet.
type RedisGeneration struct {
	client *redis.Client
	key    string
}

func NewRedisGeneration(client *redis.Client) *RedisGeneration {
	return &RedisGeneration{client: client, key: "iam:cache:generation"}
}

func (g *RedisGeneration) Current(ctx context.Context) (int64, error) {
	n, err := g.client.Get(ctx, g.key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (g *RedisGeneration) Bump(ctx context.Context) (int64, error) {
	return g.client.Incr(ctx, g.key).Result()
}

// LocalGeneration is a process-local counter for single-process deployments
// and tests.
type LocalGeneration struct {
	n atomic.Int64
}

func (g *LocalGeneration) Current(context.Context) (int64, error) { return g.n.Load(), nil }
func (g *LocalGeneration) Bump(context.Context) (int64, error)    { return g.n.Add(1), nil }

// Resolver answers "may this subject perform this action" and memoizes the
// answers. User override and role policy lookups are cached separately so an
// override change for one user does not evict unrelated role answers.
type Resolver struct {
	repo   Repository
	gen    GenerationSource
	logger *slog.Logger

	mu        sync.Mutex
	seen      int64
	userCache *lru.Cache[string, Decision]
	roleCache *lru.Cache[string, Decision]
}

func NewResolver(repo Repository, gen GenerationSource, logger *slog.Logger) *Resolver {
	userCache, _ := lru.New[string, Decision](cacheSize)
	roleCache, _ := lru.New[string, Decision](cacheSize)
	return &Resolver{
		repo:      repo,
		gen:       gen,
		logger:    logger,
		userCache: userCache,
		roleCache: roleCache,
	}
}

// HasPermission resolves a permission code for a subject. Resolution order:
// unauthenticated subjects are refused, super admins pass unconditionally,
// then a per-user override wins over the role default, and an absent answer
// at every layer refuses.
func (r *Resolver) HasPermission(ctx context.Context, subject Subject, code string) (bool, error) {
	if !subject.Authenticated {
		return false, nil
	}
	if subject.Role == RoleSuperAdmin {
		return true, nil
	}
	if err := r.syncGeneration(ctx); err != nil {
		// A stale cache must not decide access. Fall through to the
		// database for this call.
		r.logger.Warn("permission cache generation check failed", "error", err)
		return r.resolveUncached(ctx, subject, code)
	}

	userKey := fmt.Sprintf("u:%d:%s", subject.UserID, code)
	override, ok := r.cachedUser(userKey)
	if !ok {
		var err error
		override, err = r.repo.LookupUserOverride(ctx, subject.UserID, code)
		if err != nil {
			return false, fmt.Errorf("iam: lookup user override: %w", err)
		}
		r.storeUser(userKey, override)
	}
	if override != DecisionAbsent {
		return override.Allowed(), nil
	}

	roleKey := fmt.Sprintf("r:%s:%s", subject.Role, code)
	policy, ok := r.cachedRole(roleKey)
	if !ok {
		var err error
		policy, err = r.repo.LookupRolePolicy(ctx, subject.Role, code)
		if err != nil {
			return false, fmt.Errorf("iam: lookup role policy: %w", err)
		}
		r.storeRole(roleKey, policy)
	}
	return policy.Allowed(), nil
}

func (r *Resolver) resolveUncached(ctx context.Context, subject Subject, code string) (bool, error) {
	override, err := r.repo.LookupUserOverride(ctx, subject.UserID, code)
	if err != nil {
		return false, fmt.Errorf("iam: lookup user override: %w", err)
	}
	if override != DecisionAbsent {
		return override.Allowed(), nil
	}
	policy, err := r.repo.LookupRolePolicy(ctx, subject.Role, code)
	if err != nil {
		return false, fmt.Errorf("iam: lookup role policy: %w", err)
	}
	return policy.Allowed(), nil
}

// Invalidate drops every cached decision, locally and across processes.
// Callers invoke it after any policy, override, or permission mutation.
func (r *Resolver) Invalidate(ctx context.Context) error {
	gen, err := r.gen.Bump(ctx)
	if err != nil {
		return fmt.Errorf("iam: bump cache generation: %w", err)
	}
	r.mu.Lock()
	r.seen = gen
	r.userCache.Purge()
	r.roleCache.Purge()
	r.mu.Unlock()
	return nil
}

// syncGeneration purges the local caches when another process has bumped the
// shared generation since the last call.
func (r *Resolver) syncGeneration(ctx context.Context) error {
	gen, err := r.gen.Current(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	if gen != r.seen {
		r.seen = gen
		r.userCache.Purge()
		r.roleCache.Purge()
	}
	r.mu.Unlock()
	return nil
}

func (r *Resolver) cachedUser(key string) (Decision, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userCache.Get(key)
}

func (r *Resolver) storeUser(key string, d Decision) {
	r.mu.Lock()
	r.userCache.Add(key, d)
	r.mu.Unlock()
}

func (r *Resolver) cachedRole(key string) (Decision, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roleCache.Get(key)
}

func (r *Resolver) storeRole(key string, d Decision) {
	r.mu.Lock()
	r.roleCache.Add(key, d)
	r.mu.Unlock()
}
