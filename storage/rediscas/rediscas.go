// Package rediscas stores snapshots in Redis under their fingerprint.
package rediscas

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/ipfs/go-cid"

	"xdao.co/resultledger/cidutil"
	"xdao.co/resultledger/storage"
)

// DefaultPrefix namespaces snapshot keys.
const DefaultPrefix = "resultledger:snapshot:"

// CAS keeps each snapshot at Prefix+cid. Writes use SETNX so a stored
// snapshot is never overwritten.
type CAS struct {
	Client *redis.Client
	Prefix string
}

var _ storage.CAS = (*CAS)(nil)

// New wraps client using DefaultPrefix.
func New(client *redis.Client) *CAS {
	return &CAS{Client: client, Prefix: DefaultPrefix}
}

// Dial connects to addr and checks the connection with PING.
func Dial(ctx context.Context, addr, password string, db int) (*CAS, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, storage.Unavailable("redis ping", err)
	}
	return New(rdb), nil
}

func (c *CAS) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

func (c *CAS) key(id cid.Cid) string {
	return c.Prefix + id.String()
}

func (c *CAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, err := cidutil.Fingerprint(data)
	if err != nil {
		return cid.Undef, err
	}
	ok, err := c.Client.SetNX(ctx, c.key(id), data, 0).Result()
	if err != nil {
		return cid.Undef, c.mapErr("redis put", err)
	}
	if ok {
		return id, nil
	}

	existing, err := c.Client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		return cid.Undef, c.mapErr("redis put", err)
	}
	if string(existing) != string(data) {
		return cid.Undef, storage.ErrImmutable
	}
	return id, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := c.Client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, c.mapErr("redis get", err)
	}
	if !cidutil.Matches(id, b) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	n, err := c.Client.Exists(ctx, c.key(id)).Result()
	return err == nil && n > 0
}

func (c *CAS) mapErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return storage.FromContext(op, err)
	}
	return storage.Unavailable(op, fmt.Errorf("%s: %w", c.Client.Options().Addr, err))
}
