package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/resultledger/cidutil"
	"xdao.co/resultledger/storage"
)

// CAS is a fingerprint store backed by a Kubo node's HTTP RPC API.
//
// Snapshots are stored as raw blocks with explicit CID parameters so the
// identifier returned by the node matches cidutil.Fingerprint. Bytes read back
// are re-hashed; transport reachability is not validity.
//
// Transport failures and non-2xx answers other than "not found" are reported
// as storage.ErrUnavailable.
type CAS struct {
	api    string
	pin    bool
	client *http.Client
}

type Options struct {
	// API is the RPC base URL. If empty, http://127.0.0.1:5001 is used.
	API string
	// Pin asks the node to pin every stored snapshot.
	Pin bool
	// Client overrides the HTTP client. Timeouts come from the request context.
	Client *http.Client
}

var _ storage.CAS = (*CAS)(nil)

func New(opts Options) *CAS {
	api := strings.TrimRight(opts.API, "/")
	if api == "" {
		api = "http://127.0.0.1:5001"
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &CAS{api: api, pin: opts.Pin, client: client}
}

type blockPutReply struct {
	Key  string `json:"Key"`
	Size int    `json:"Size"`
}

type rpcError struct {
	Message string `json:"Message"`
	Code    int    `json:"Code"`
	Type    string `json:"Type"`
}

func (c *CAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, err := cidutil.Fingerprint(data)
	if err != nil {
		return cid.Undef, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("data", "snapshot.json")
	if err != nil {
		return cid.Undef, err
	}
	if _, err := part.Write(data); err != nil {
		return cid.Undef, err
	}
	if err := mw.Close(); err != nil {
		return cid.Undef, err
	}

	q := url.Values{}
	q.Set("cid-codec", "raw")
	q.Set("mhtype", "sha2-256")
	q.Set("mhlen", "32")
	q.Set("pin", fmt.Sprintf("%t", c.pin))

	out, err := c.call(ctx, "block/put", q, mw.FormDataContentType(), &body)
	if err != nil {
		return cid.Undef, err
	}
	var reply blockPutReply
	if err := json.Unmarshal(out, &reply); err != nil {
		return cid.Undef, fmt.Errorf("ipfs: unexpected block/put output: %w", err)
	}
	got, err := cid.Decode(strings.TrimSpace(reply.Key))
	if err != nil {
		return cid.Undef, fmt.Errorf("ipfs: unexpected block/put key: %w", err)
	}
	if !got.Equals(id) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	q := url.Values{}
	q.Set("arg", id.String())
	out, err := c.call(ctx, "block/get", q, "", nil)
	if err != nil {
		return nil, err
	}
	if !cidutil.Matches(id, out) {
		return nil, storage.ErrCIDMismatch
	}
	return out, nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	q := url.Values{}
	q.Set("arg", id.String())
	q.Set("offline", "true")
	_, err := c.call(ctx, "block/stat", q, "", nil)
	return err == nil
}

func (c *CAS) call(ctx context.Context, cmd string, q url.Values, contentType string, body io.Reader) ([]byte, error) {
	endpoint := c.api + "/api/v0/" + cmd + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, storage.Unavailable("ipfs "+cmd, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, storage.Unavailable("ipfs "+cmd, err)
	}
	if resp.StatusCode/100 == 2 {
		return out, nil
	}

	var rerr rpcError
	_ = json.Unmarshal(out, &rerr)
	msg := strings.TrimSpace(rerr.Message)
	if msg == "" {
		msg = strings.TrimSpace(string(out))
	}
	if isLikelyNotFound(msg) {
		return nil, storage.ErrNotFound
	}
	return nil, storage.Unavailable("ipfs "+cmd, errors.New(resp.Status+": "+msg))
}

func isLikelyNotFound(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "block was not found")
}
