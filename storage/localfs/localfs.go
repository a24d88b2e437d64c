// Package localfs keeps result snapshots as read-only files on local disk.
package localfs

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"xdao.co/resultledger/cidutil"
	"xdao.co/resultledger/storage"
)

// CAS stores each snapshot at <root>/<fp[:2]>/<fp>, where fp is the
// snapshot's fingerprint. Files are written once and never replaced.
type CAS struct {
	root string
}

var _ storage.CAS = (*CAS)(nil)

// New opens the snapshot directory at root, creating it when missing.
func New(root string) (*CAS, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &CAS{root: root}, nil
}

// Put writes data to a temporary file in the shard directory and links it
// into place, so readers never see a partial snapshot. An existing file with
// the same fingerprint must hold the same bytes.
func (c *CAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, storage.FromContext("localfs put", err)
	}
	id, err := cidutil.Fingerprint(data)
	if err != nil {
		return cid.Undef, err
	}
	path := c.pathFor(id)
	if c.Has(ctx, id) {
		return c.existing(ctx, id, data)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, err
	}

	tmp, err := writeTemp(filepath.Dir(path), data)
	if err != nil {
		return cid.Undef, err
	}
	defer os.Remove(tmp)

	// Link fails when path exists, so a concurrent writer cannot be clobbered.
	if err := os.Link(tmp, path); err != nil {
		if os.IsExist(err) {
			return c.existing(ctx, id, data)
		}
		return cid.Undef, err
	}
	return id, nil
}

func (c *CAS) existing(ctx context.Context, id cid.Cid, data []byte) (cid.Cid, error) {
	stored, err := c.Get(ctx, id)
	if err != nil || !bytes.Equal(stored, data) {
		return cid.Undef, storage.ErrImmutable
	}
	return id, nil
}

func writeTemp(dir string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(name, 0o444)
	}
	if err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

// Get reads a snapshot and rejects files whose bytes no longer hash to id.
func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	if err := ctx.Err(); err != nil {
		return nil, storage.FromContext("localfs get", err)
	}
	b, err := os.ReadFile(c.pathFor(id))
	switch {
	case os.IsNotExist(err):
		return nil, storage.ErrNotFound
	case err != nil:
		return nil, err
	case !cidutil.Matches(id, b):
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() || ctx.Err() != nil {
		return false
	}
	_, err := os.Stat(c.pathFor(id))
	return err == nil
}

func (c *CAS) pathFor(id cid.Cid) string {
	fp := id.String()
	if len(fp) < 2 {
		return filepath.Join(c.root, fp)
	}
	return filepath.Join(c.root, fp[:2], fp)
}
