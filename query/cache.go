package query

import (
	"fmt"
	"strings"

	"github.com/voltgrid/receipt-engine/cache"
	"github.com/voltgrid/receipt-engine/receipt"
)

// ShardCache memoizes the filtered records of one shard under one
// filter. The key is the canonical serialization of the date plus every
// filter field, so two requests that filter identically share entries
// regardless of pagination. A disabled cache misses on every get and
// drops every set, which keeps the engine code branch-free.
type ShardCache struct {
	entries *cache.Cache[string, []*receipt.Metadata]
	enabled bool
}

// NewShardCache builds a shard cache. With enabled=false the cache is
// inert and opts are ignored.
func NewShardCache(opts cache.Options, enabled bool) (*ShardCache, error) {
	if !enabled {
		return &ShardCache{enabled: false}, nil
	}
	entries, err := cache.New[string, []*receipt.Metadata](opts)
	if err != nil {
		return nil, err
	}
	return &ShardCache{entries: entries, enabled: true}, nil
}

// Key derives the canonical cache key for a date and filter.
func (c *ShardCache) Key(date string, r *Request) string {
	var b strings.Builder
	b.WriteString(date)
	b.WriteByte('|')
	b.WriteString(r.SessionID)
	b.WriteByte('|')
	b.WriteString(r.ConsumerID)
	b.WriteByte('|')
	b.WriteString(r.CardLastFour)
	b.WriteByte('|')
	b.WriteString(r.ReceiptNumber)
	b.WriteByte('|')
	if r.AmountMin != nil {
		fmt.Fprintf(&b, "%g", *r.AmountMin)
	}
	b.WriteByte('|')
	if r.AmountMax != nil {
		fmt.Fprintf(&b, "%g", *r.AmountMax)
	}
	return b.String()
}

// Get returns the cached records for key.
func (c *ShardCache) Get(key string) ([]*receipt.Metadata, bool) {
	if !c.enabled {
		return nil, false
	}
	return c.entries.Get(key)
}

// Set stores the filtered records for key.
func (c *ShardCache) Set(key string, records []*receipt.Metadata) {
	if !c.enabled {
		return
	}
	c.entries.Set(key, records)
}

// Clear drains the cache.
func (c *ShardCache) Clear() {
	if c.enabled {
		c.entries.Clear()
	}
}

// Enabled reports whether the cache is live.
func (c *ShardCache) Enabled() bool {
	return c.enabled
}
