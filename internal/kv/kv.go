package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key is absent or its entry has expired.
var ErrNotFound = errors.New("kv: key not found")

// ErrConflict is returned by Update when the entry kept changing under the
// read-modify-write and the conflict retry budget ran out.
var ErrConflict = errors.New("kv: concurrent update conflict")

// Store is the durable key-value state shared by the fulfillment pipeline.
// It holds token ledger entries, staged orders and processed-message markers.
//
// Put is a full overwrite. A ttl <= 0 means the entry never expires.
// Update applies fn atomically to the current value; fn receives nil when the
// key is absent and its return value replaces the entry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Update(ctx context.Context, key string, ttl time.Duration, fn func(old []byte) ([]byte, error)) error
	Ping(ctx context.Context) error
	Close() error
}

// LedgerKey returns the KV key holding a grant's token balance.
func LedgerKey(grantID string) string { return grantID }

// StagedOrderKey returns the KV key under which the producer stages order details.
func StagedOrderKey(paymentRef string) string { return "order:" + paymentRef }

// ProcessedKey returns the dedup marker key for a queue message id.
func ProcessedKey(messageID string) string { return "processed:" + messageID }
