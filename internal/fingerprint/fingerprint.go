package fingerprint

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
)

// DefaultAlgorithm is used when the engine configuration leaves the
// fingerprint algorithm unset.
const DefaultAlgorithm = "sha256"

// Compute returns the canonical DefaultAlgorithm digest of payload.
func Compute(payload any) (string, error) {
	return ComputeWith(DefaultAlgorithm, payload)
}

// ComputeWith hashes the canonical serialization of payload with the named
// algorithm and returns the lowercase hex digest.
//
// Canonicalization sorts mapping keys lexicographically at every depth and
// serializes without insignificant whitespace, so payloads differing only in
// key insertion order produce byte-identical digests. Array order is
// significant. Volatile fields (timestamps, nonces) must be excluded by the
// caller before hashing.
func ComputeWith(algorithm string, payload any) (string, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return "", err
	}
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Canonicalize returns the compact canonical serialization of payload.
//
// The payload is round-tripped through JSON: structs and maps come back as
// generic mappings, which the encoder emits with sorted keys. Numbers are
// decoded as json.Number so their textual representation survives unchanged.
func Canonicalize(payload any) ([]byte, error) {
	raw, err := marshalCompact(payload)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: payload not serializable: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("fingerprint: payload not serializable: %w", err)
	}
	return marshalCompact(tree)
}

// Supported reports whether algorithm names a hash this package can compute.
func Supported(algorithm string) bool {
	_, err := newHash(algorithm)
	return err == nil
}

func newHash(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case "sha256":
		return sha256.New(), nil
	case "sha224":
		return sha256.New224(), nil
	case "sha384":
		return sha512.New384(), nil
	case "sha512":
		return sha512.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "md5":
		return md5.New(), nil
	}
	return nil, fmt.Errorf("fingerprint: unsupported algorithm %q", algorithm)
}

func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
