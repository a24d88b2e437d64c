package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Fingerprint returns the CIDv1 (raw + sha2-256) derived from data.
//
// Every fingerprint store backend must return exactly this identifier for the
// bytes it was given.
func Fingerprint(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// FingerprintString is Fingerprint rendered in its default multibase form.
// It returns "" only if hashing fails, which cannot happen for sha2-256.
func FingerprintString(data []byte) string {
	id, err := Fingerprint(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// Parse decodes a stored fingerprint id and rejects anything that is not a
// CIDv1 raw + sha2-256 identifier.
func Parse(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, fmt.Errorf("cidutil: undefined cid")
	}
	pref := id.Prefix()
	if pref.Version != 1 || pref.Codec != cid.Raw || pref.MhType != multihash.SHA2_256 {
		return cid.Undef, fmt.Errorf("cidutil: unsupported cid prefix %v", pref)
	}
	return id, nil
}

// Matches reports whether data hashes to id.
func Matches(id cid.Cid, data []byte) bool {
	got, err := Fingerprint(data)
	if err != nil {
		return false
	}
	return got.Equals(id)
}
