package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nsinhame/wallhaven-engine/internal/cache"
	"github.com/nsinhame/wallhaven-engine/internal/store"
	"github.com/nsinhame/wallhaven-engine/internal/types"
)

// checkDuplicate implements SPEC_FULL.md 4.8's dedup step: the fast
// local HashCache is consulted first, falling back to the authoritative
// StoreGateway index only on a local miss. Quota exhaustion on the
// gateway lookup fails open — the candidate is treated as unique and
// is never written into HashCache for a hash the gateway never
// confirmed.
func checkDuplicate(ctx context.Context, hashes *cache.HashCache, gateway store.Gateway, logger *slog.Logger, sha string) (matchedID string, duplicate bool) {
	if id, found, err := hashes.Lookup(sha); err != nil {
		logger.Error("hash cache lookup failed", "sha256", sha, "error", err)
	} else if found {
		return id, true
	}

	match, err := gateway.FindByHash(ctx, sha)
	if err != nil {
		if errors.Is(err, types.ErrQuotaExceeded) {
			logger.Warn("dedup index unavailable, failing open", "sha256", sha, "error", err)
			return "", false
		}
		logger.Error("dedup index lookup failed", "sha256", sha, "error", err)
		return "", false
	}
	if match == nil {
		return "", false
	}

	return match.WallpaperID, true
}

// rememberHash records a confirmed-unique hash in the local HashCache
// so future lookups for the same content stay off the store gateway.
func rememberHash(hashes *cache.HashCache, logger *slog.Logger, sha, wallpaperID string) {
	if err := hashes.Insert(sha, wallpaperID); err != nil {
		logger.Error("hash cache insert failed", "sha256", sha, "error", err)
	}
}
