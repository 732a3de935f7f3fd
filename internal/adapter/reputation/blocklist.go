package reputation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/simaogato/securesend-backend/internal/domain"
)

// DefaultFlaggedKey is the Redis set holding addresses flagged on every asset
const DefaultFlaggedKey = "securesend:flagged"

// Blocklist is a reputation source that can also be seeded
type Blocklist interface {
	domain.ReputationChecker
	domain.AddressFlagger
}

var (
	_ Blocklist = (*RedisBlocklist)(nil)
	_ Blocklist = (*MemoryBlocklist)(nil)
)

// normalizeAddress lower-cases hex addresses; base58 addresses are case sensitive
func normalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X") {
		return strings.ToLower(address)
	}
	return address
}

// RedisBlocklist implements domain.ReputationChecker on Redis sets.
// An address is flagged when it is a member of the global set or of the per-asset set "<key>:<SYMBOL>".
type RedisBlocklist struct {
	client redis.UniversalClient
	key    string
}

// NewRedisBlocklist creates a blocklist reading from key; an empty key selects DefaultFlaggedKey
func NewRedisBlocklist(client redis.UniversalClient, key string) (*RedisBlocklist, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if key == "" {
		key = DefaultFlaggedKey
	}

	return &RedisBlocklist{client: client, key: key}, nil
}

func (b *RedisBlocklist) assetKey(assetSymbol string) string {
	return b.key + ":" + domain.NormalizeSymbol(assetSymbol)
}

// CheckReputation returns false when the address is flagged
func (b *RedisBlocklist) CheckReputation(ctx context.Context, assetSymbol, address string) (bool, error) {
	member := normalizeAddress(address)

	pipe := b.client.Pipeline()
	global := pipe.SIsMember(ctx, b.key, member)
	perAsset := pipe.SIsMember(ctx, b.assetKey(assetSymbol), member)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis sismember: %w", err)
	}

	return !global.Val() && !perAsset.Val(), nil
}

// Flag adds an address to the blocklist. An empty assetSymbol flags it on every asset.
func (b *RedisBlocklist) Flag(ctx context.Context, assetSymbol, address string) error {
	key := b.key
	if assetSymbol != "" {
		key = b.assetKey(assetSymbol)
	}

	if err := b.client.SAdd(ctx, key, normalizeAddress(address)).Err(); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

// MemoryBlocklist implements domain.ReputationChecker with in-process sets of flagged addresses
type MemoryBlocklist struct {
	mu       sync.RWMutex
	global   map[string]struct{}
	perAsset map[string]map[string]struct{}
}

// NewMemoryBlocklist creates a blocklist with addresses flagged on every asset
func NewMemoryBlocklist(addresses ...string) *MemoryBlocklist {
	b := &MemoryBlocklist{
		global:   make(map[string]struct{}, len(addresses)),
		perAsset: make(map[string]map[string]struct{}),
	}
	for _, address := range addresses {
		b.global[normalizeAddress(address)] = struct{}{}
	}
	return b
}

// CheckReputation returns false when the address is flagged
func (b *MemoryBlocklist) CheckReputation(ctx context.Context, assetSymbol, address string) (bool, error) {
	member := normalizeAddress(address)

	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, flagged := b.global[member]; flagged {
		return false, nil
	}
	_, flagged := b.perAsset[domain.NormalizeSymbol(assetSymbol)][member]
	return !flagged, nil
}

// Flag adds an address to the blocklist. An empty assetSymbol flags it on every asset.
func (b *MemoryBlocklist) Flag(ctx context.Context, assetSymbol, address string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if assetSymbol == "" {
		b.global[normalizeAddress(address)] = struct{}{}
		return nil
	}

	symbol := domain.NormalizeSymbol(assetSymbol)
	if b.perAsset[symbol] == nil {
		b.perAsset[symbol] = make(map[string]struct{})
	}
	b.perAsset[symbol][normalizeAddress(address)] = struct{}{}
	return nil
}
