// Package cache provides a Redis-backed lookup cache.
//
// Key strategy:
//   - Successful lookups:  nfe:lookup:v1:{access key} → TTL 12 h
//
// Failed lookups are never cached so a fixed token or a recovered provider is seen at once.
package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/rezonia/nfe-conferencia/internal/model"
)

const (
	LookupTTL = 12 * time.Hour

	lookupPrefix = "nfe:lookup:v1:"
)

// Entry is the reduced outcome of a successful lookup
type Entry struct {
	Header   model.InvoiceHeader `json:"header"`
	Items    []model.LineItem    `json:"items"`
	Method   string              `json:"method"`
	Warnings []string            `json:"warnings,omitempty"`
	StoredAt time.Time           `json:"stored_at"`
}

// Client wraps redis.Client with lookup helpers.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a new cache Client.
// addr example: "localhost:6379"
func New(addr, password string, db int) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Client{rdb: rdb, ttl: LookupTTL}
}

// WithTTL returns a copy of the client using ttl for new entries
func (c *Client) WithTTL(ttl time.Duration) *Client {
	return &Client{rdb: c.rdb, ttl: ttl}
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error { return c.rdb.Close() }

// LookupKey returns the cache key for an access key.
func LookupKey(accessKey string) string {
	return lookupPrefix + accessKey
}

// GetLookup returns the cached entry for an access key, or nil on miss.
func (c *Client) GetLookup(ctx context.Context, accessKey string) (*Entry, error) {
	val, err := c.rdb.Get(ctx, LookupKey(accessKey)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// SetLookup stores an entry with the client TTL.
func (c *Client) SetLookup(ctx context.Context, accessKey string, e *Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, LookupKey(accessKey), b, c.ttl).Err()
}

// DeleteLookup removes a cached lookup.
func (c *Client) DeleteLookup(ctx context.Context, accessKey string) error {
	return c.rdb.Del(ctx, LookupKey(accessKey)).Err()
}
