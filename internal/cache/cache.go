// Package cache memoizes external calls keyed by the exact request payload.
//
// A Cache is scoped to one caller identity (one SUT, one annotator) and one
// directory. Entries are never invalidated: once a response is stored for a
// request, every later lookup with an equal request returns it.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Cache is a key/value store for encoded responses.
type Cache interface {
	// Get returns the value stored under key, if any.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Put stores value under key.
	Put(ctx context.Context, key string, value []byte) error
	// Stats reports lookups made through GetOrCall.
	Stats() Stats
	flight() *singleflight.Group
	counters() *counters
}

// Stats counts cache hits and misses.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Key derives the storage key of a request: the SHA-256 of its Go type and
// its JSON encoding. encoding/json emits struct fields in declaration order
// and sorts map keys, so equal values always produce the same key.
func Key(request any) (string, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("encoding cache key for %T: %w", request, err)
	}
	h := sha256.New()
	fmt.Fprintf(h, "%T\n", request)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

type flightResult struct {
	value []byte
	hit   bool
}

// GetOrCall returns the response stored for req, or calls fn, stores its
// result and returns it. Concurrent lookups of the same request share a
// single call. Errors from fn are returned as-is and nothing is stored.
// A caller that joined a call cancelled by another caller's context retries
// once with its own context.
func GetOrCall[Req, Resp any](ctx context.Context, c Cache, req Req, fn func(context.Context, Req) (Resp, error)) (Resp, error) {
	var zero Resp

	key, err := Key(req)
	if err != nil {
		return zero, err
	}

	var computed Resp
	var ran, owner bool
	call := func() (any, error) {
		ran = true
		data, ok, err := c.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return flightResult{value: data, hit: true}, nil
		}

		resp, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}
		data, err = json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("encoding cached response %T: %w", resp, err)
		}
		if err := c.Put(ctx, key, data); err != nil {
			return nil, err
		}
		computed = resp
		owner = true
		return flightResult{value: data}, nil
	}
	v, err, _ := c.flight().Do(key, call)
	if err != nil && !ran && ctx.Err() == nil && isContextError(err) {
		v, err, _ = c.flight().Do(key, call)
	}
	if err != nil {
		return zero, err
	}

	res := v.(flightResult)
	if res.hit {
		c.counters().hits.Add(1)
	} else {
		c.counters().misses.Add(1)
	}
	if owner {
		return computed, nil
	}

	var resp Resp
	if err := json.Unmarshal(res.value, &resp); err != nil {
		return zero, fmt.Errorf("decoding cached response into %T: %w", resp, err)
	}
	return resp, nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// NoCache never stores anything, so every lookup calls through.
type NoCache struct {
	group singleflight.Group
	count counters
}

// NewNoCache returns a Cache that always misses.
func NewNoCache() *NoCache {
	return &NoCache{}
}

func (*NoCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (*NoCache) Put(context.Context, string, []byte) error          { return nil }
func (c *NoCache) Stats() Stats                                      { return c.count.snapshot() }
func (c *NoCache) flight() *singleflight.Group                       { return &c.group }
func (c *NoCache) counters() *counters                               { return &c.count }
