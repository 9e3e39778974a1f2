package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/cycleforge/flasharb/internal/domain"
)

// TokenMetaCache implements domain.TokenMetaCache using JSON-serialized
// metadata records plus a blacklist set.
//
// Key schema:
//
//	token:meta:{address} - string value containing JSON
//	token:blacklist      - set of lowercase addresses
//
// Metadata carries no TTL: the discovery refresher overwrites it on every
// cycle, and a stale record is still more useful to the age check than a
// missing one.
type TokenMetaCache struct {
	rdb *redis.Client
}

// NewTokenMetaCache creates a TokenMetaCache backed by the given Client.
func NewTokenMetaCache(c *Client) *TokenMetaCache {
	return &TokenMetaCache{rdb: c.Underlying()}
}

func tokenMetaKey(address string) string {
	return "token:meta:" + strings.ToLower(address)
}

const blacklistKey = "token:blacklist"

// Set stores one token's metadata record.
func (tc *TokenMetaCache) Set(ctx context.Context, meta domain.TokenMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("redis: marshal token meta %s: %w", meta.Address.Hex(), err)
	}
	if err := tc.rdb.Set(ctx, tokenMetaKey(meta.Address.Hex()), data, 0).Err(); err != nil {
		return fmt.Errorf("redis: set token meta %s: %w", meta.Address.Hex(), err)
	}
	return nil
}

// Get retrieves a token's metadata. It returns domain.ErrNotFound when the
// token has never been discovered.
func (tc *TokenMetaCache) Get(ctx context.Context, address string) (domain.TokenMeta, error) {
	data, err := tc.rdb.Get(ctx, tokenMetaKey(address)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.TokenMeta{}, domain.ErrNotFound
		}
		return domain.TokenMeta{}, fmt.Errorf("redis: get token meta %s: %w", address, err)
	}

	var meta domain.TokenMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.TokenMeta{}, fmt.Errorf("redis: unmarshal token meta %s: %w", address, err)
	}
	return meta, nil
}

// SetBlacklist adds addresses to the blacklist set.
func (tc *TokenMetaCache) SetBlacklist(ctx context.Context, addresses []string) error {
	if len(addresses) == 0 {
		return nil
	}
	members := make([]interface{}, 0, len(addresses))
	for _, a := range addresses {
		members = append(members, strings.ToLower(a))
	}
	if err := tc.rdb.SAdd(ctx, blacklistKey, members...).Err(); err != nil {
		return fmt.Errorf("redis: set blacklist: %w", err)
	}
	return nil
}

// IsBlacklisted reports whether an address is in the blacklist set.
func (tc *TokenMetaCache) IsBlacklisted(ctx context.Context, address string) (bool, error) {
	listed, err := tc.rdb.SIsMember(ctx, blacklistKey, strings.ToLower(address)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: blacklist check %s: %w", address, err)
	}
	return listed, nil
}

// Compile-time interface check.
var _ domain.TokenMetaCache = (*TokenMetaCache)(nil)
