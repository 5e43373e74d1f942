package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/localmarket/storefront/internal/location"
)

const zipCacheTTL = 7 * 24 * time.Hour

// layeredZipResolver answers zip lookups from the Redis cache, then the
// Postgres zip directory, then the remote lookup service. Remote answers are
// written back to both layers. cache and directory may be nil.
type layeredZipResolver struct {
	cache     Cache
	directory zipDirectoryQuerier
	remote    location.ZipResolver
	logger    *slog.Logger
}

func newLayeredZipResolver(cache Cache, directory zipDirectoryQuerier, remote location.ZipResolver, logger *slog.Logger) *layeredZipResolver {
	return &layeredZipResolver{
		cache:     cache,
		directory: directory,
		remote:    remote,
		logger:    logger,
	}
}

func zipCacheKey(zip string) string {
	return "zip:" + zip
}

func (z *layeredZipResolver) Lookup(ctx context.Context, zip string) (location.ZipInfo, error) {
	// 1. Check Redis cache
	if z.cache != nil {
		cached, err := z.cache.Get(ctx, zipCacheKey(zip))
		if err == nil {
			var info location.ZipInfo
			jsonErr := json.Unmarshal([]byte(cached), &info)
			if jsonErr == nil {
				z.logger.Debug("zip cache hit", "zip", zip)
				return info, nil
			}
			z.logger.Warn("error unmarshalling zip from redis", "zip", zip, "error", jsonErr)
		} else if !errors.Is(err, redis.Nil) {
			z.logger.Warn("error getting zip from redis", "zip", zip, "error", err)
		}
	}

	// 2. Check the zip directory
	if z.directory != nil {
		info, err := z.directory.LookupZip(ctx, zip)
		switch {
		case err == nil:
			z.logger.Debug("zip directory hit", "zip", zip)
			z.cacheInfo(ctx, info)
			return info, nil
		case !errors.Is(err, location.ErrNotFound):
			z.logger.Warn("zip directory lookup failed", "zip", zip, "error", err)
		}
	}

	// 3. Ask the lookup service
	info, err := z.remote.Lookup(ctx, zip)
	if err != nil {
		return location.ZipInfo{}, err
	}
	z.cacheInfo(ctx, info)
	if z.directory != nil {
		if err := z.directory.UpsertZip(ctx, info); err != nil {
			z.logger.Warn("could not persist zip to directory", "zip", zip, "error", err)
		}
	}
	return info, nil
}

func (z *layeredZipResolver) cacheInfo(ctx context.Context, info location.ZipInfo) {
	if z.cache == nil {
		return
	}
	if err := z.cache.Set(ctx, zipCacheKey(info.ZipCode), info, zipCacheTTL); err != nil {
		z.logger.Warn("error setting zip to redis", "zip", info.ZipCode, "error", err)
	}
}
