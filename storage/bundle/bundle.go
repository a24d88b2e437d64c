// Package bundle moves published snapshots between fingerprint stores as a
// deterministic TAR archive.
//
// Layout:
//
//	snapshots/<cid>   raw snapshot bytes
//	index.json        optional; result id -> cid labels
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/resultledger/cidutil"
	"xdao.co/resultledger/storage"
)

// FormatVersion is the index.json schema version.
const FormatVersion = 1

const snapshotDir = "snapshots/"

var epoch0 = time.Unix(0, 0).UTC()

// ExportOptions controls Export.
type ExportOptions struct {
	// Labels maps result ids to the fingerprint of their published snapshot.
	// Every labelled fingerprint is exported even if absent from ids.
	Labels map[string]cid.Cid
	// IncludeIndex writes index.json.
	IncludeIndex bool
}

// Export writes the snapshots for ids to w.
//
// Entry order is lexicographic and headers are normalized, so the same input
// always yields the same bytes. Every snapshot is checked against its
// fingerprint before it is written.
func Export(ctx context.Context, w io.Writer, cas storage.CAS, ids []cid.Cid, opts ExportOptions) error {
	if cas == nil {
		return fmt.Errorf("bundle: nil store")
	}

	uniq := make(map[string]cid.Cid, len(ids)+len(opts.Labels))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}
	labelNames := make([]string, 0, len(opts.Labels))
	for name, id := range opts.Labels {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("bundle: empty label")
		}
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
		labelNames = append(labelNames, name)
	}
	sort.Strings(labelNames)

	keys := make([]string, 0, len(uniq))
	for k := range uniq {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tar.NewWriter(w)
	entries := make([]indexEntry, 0, len(keys))
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			_ = tw.Close()
			return storage.FromContext("bundle export", err)
		}
		id := uniq[k]
		b, err := cas.Get(ctx, id)
		if err != nil {
			_ = tw.Close()
			return fmt.Errorf("bundle: get %s: %w", k, err)
		}
		if !cidutil.Matches(id, b) {
			_ = tw.Close()
			return storage.ErrCIDMismatch
		}
		if err := writeFile(tw, snapshotDir+k, b); err != nil {
			_ = tw.Close()
			return err
		}
		entries = append(entries, indexEntry{CID: k, Size: len(b)})
	}

	if opts.IncludeIndex {
		idx := Index{
			Version:   FormatVersion,
			Snapshots: entries,
		}
		for _, name := range labelNames {
			idx.Results = append(idx.Results, indexLabel{ResultID: name, CID: opts.Labels[name].String()})
		}
		b, err := json.Marshal(idx)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, "index.json", append(b, '\n')); err != nil {
			_ = tw.Close()
			return err
		}
	}
	return tw.Close()
}

// ImportOptions controls Import.
type ImportOptions struct {
	// IgnoreUnknown skips entries outside the bundle layout instead of failing.
	IgnoreUnknown bool
}

// Index is the decoded form of index.json.
type Index struct {
	Version   int          `json:"version"`
	Snapshots []indexEntry `json:"snapshots"`
	Results   []indexLabel `json:"results,omitempty"`
}

type indexEntry struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

type indexLabel struct {
	ResultID string `json:"result_id"`
	CID      string `json:"cid"`
}

// Labels returns the result id labels recorded in the index.
func (idx *Index) Labels() map[string]string {
	if idx == nil {
		return nil
	}
	out := make(map[string]string, len(idx.Results))
	for _, l := range idx.Results {
		out[l.ResultID] = l.CID
	}
	return out
}

// Import reads a bundle from r and stores every snapshot in cas. Each
// snapshot must hash to the fingerprint in its entry name. The decoded index
// is returned when the bundle carries one.
func Import(ctx context.Context, r io.Reader, cas storage.CAS, opts ImportOptions) (*Index, error) {
	if cas == nil {
		return nil, fmt.Errorf("bundle: nil store")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	var idx *Index

	for {
		h, err := tr.Next()
		if err == io.EOF {
			return idx, nil
		}
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, storage.FromContext("bundle import", err)
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return nil, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return nil, fmt.Errorf("bundle: unexpected entry type %v (%s)", h.Typeflag, name)
		}

		if name == "index.json" {
			var decoded Index
			if err := json.NewDecoder(tr).Decode(&decoded); err != nil {
				return nil, fmt.Errorf("bundle: index.json: %w", err)
			}
			idx = &decoded
			continue
		}
		if !strings.HasPrefix(name, snapshotDir) {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return nil, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		key := strings.TrimPrefix(name, snapshotDir)
		id, err := cidutil.Parse(key)
		if err != nil {
			return nil, storage.ErrInvalidCID
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("bundle: duplicate snapshot entry: %s", key)
		}
		seen[key] = struct{}{}

		payload, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		if !cidutil.Matches(id, payload) {
			return nil, storage.ErrCIDMismatch
		}
		got, err := cas.Put(ctx, payload)
		if err != nil {
			return nil, err
		}
		if !got.Equals(id) {
			return nil, storage.ErrCIDMismatch
		}
	}
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
