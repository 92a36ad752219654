package utils

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"fmt"           // Key formatting
	"time"          // Time durations

	"github.com/google/uuid"       // Lock ownership tokens
	"github.com/redis/go-redis/v9" // Redis client
)

// Cache keys and lifetimes
const (
	WalletCacheTTL       = time.Minute             // Wallet overview, includes a processor lookup
	HistoryCacheTTL      = 5 * time.Minute         // Transaction history pages
	CheckoutFulfilledTTL = 30 * 24 * time.Hour     // Processor retries webhooks for days
	checkoutFulfilledKey = "money:checkout:%s"     // Credited checkout session ids
	walletCacheKey       = "money:wallet:%d"       // Wallet overview per profile
	txHistoryCacheKey    = "money:transactions:%d" // Hash of history pages per profile
)

// WalletCacheKey is the overview cache entry of a profile
func WalletCacheKey(profileID uint) string {
	return fmt.Sprintf(walletCacheKey, profileID)
}

// CheckoutFulfilledKey remembers a checkout session already credited
func CheckoutFulfilledKey(sessionID string) string {
	return fmt.Sprintf(checkoutFulfilledKey, sessionID)
}

// TransactionsCacheKey is the hash holding every cached history page of a profile
func TransactionsCacheKey(profileID uint) string {
	return fmt.Sprintf(txHistoryCacheKey, profileID)
}

// GetCache retrieves a value from Redis and unmarshals it into dest. A nil
// client is a permanent miss.
func GetCache(ctx context.Context, rdb *redis.Client, key string, dest any) (bool, error) {
	if rdb == nil {
		return false, nil // Caching disabled
	}
	val, err := rdb.Get(ctx, key).Result() // Get value from Redis
	if err == redis.Nil {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// SetCache sets a value in Redis with a specified TTL
func SetCache(ctx context.Context, rdb *redis.Client, key string, value any, ttl time.Duration) error {
	if rdb == nil {
		return nil // Caching disabled
	}
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err // Return error if marshaling fails
	}
	return rdb.Set(ctx, key, b, ttl).Err() // Set value in Redis with TTL
}

// DeleteCache deletes keys from Redis
func DeleteCache(ctx context.Context, rdb *redis.Client, keys ...string) error {
	if rdb == nil || len(keys) == 0 {
		return nil // Nothing to invalidate
	}
	return rdb.Del(ctx, keys...).Err() // Delete keys from Redis
}

// GetCacheField reads one field of a hash-backed cache entry
func GetCacheField(ctx context.Context, rdb *redis.Client, key, field string, dest any) (bool, error) {
	if rdb == nil {
		return false, nil // Caching disabled
	}
	val, err := rdb.HGet(ctx, key, field).Result() // Get field from the hash
	if err == redis.Nil {
		return false, nil // Field does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// SetCacheField writes one field of a hash-backed cache entry and refreshes
// the TTL of the whole hash, so deleting key drops every field at once
func SetCacheField(ctx context.Context, rdb *redis.Client, key, field string, value any, ttl time.Duration) error {
	if rdb == nil {
		return nil // Caching disabled
	}
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err
	}
	pipe := rdb.TxPipeline()      // HSET and EXPIRE together
	pipe.HSet(ctx, key, field, b) // Write the field
	pipe.Expire(ctx, key, ttl)    // Refresh the hash TTL
	_, err = pipe.Exec(ctx)
	return err
}

// InvalidateWallets drops the cached overview and history of every profile
func InvalidateWallets(ctx context.Context, rdb *redis.Client, profileIDs ...uint) error {
	keys := make([]string, 0, 2*len(profileIDs))
	for _, id := range profileIDs {
		keys = append(keys, WalletCacheKey(id), TransactionsCacheKey(id))
	}
	return DeleteCache(ctx, rdb, keys...)
}

// releaseScript deletes a lock only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireLock takes a best-effort mutex on key. ok is false when another
// holder has it. release is always safe to call.
func AcquireLock(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) (release func(), ok bool, err error) {
	noop := func() {}
	if rdb == nil {
		return noop, true, nil // Single process, nothing to coordinate
	}
	token := uuid.NewString()                          // Identifies this holder
	ok, err = rdb.SetNX(ctx, key, token, ttl).Result() // Try to take the lock
	if err != nil || !ok {
		return noop, false, err // Held elsewhere or Redis failed
	}
	release = func() {
		// Fresh context so a cancelled job still frees the lock
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, rdb, []string{key}, token).Err()
	}
	return release, true, nil
}
