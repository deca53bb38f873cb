// Package digest wraps github.com/opencontainers/go-digest with the
// restricted grammar this registry accepts: algorithm:hex, sha256 only,
// lowercase hex of exactly 64 characters. Digest values are immutable and
// comparable by value.
package digest

import (
	"errors"
	"fmt"
	"hash"
	"io"
	"regexp"

	godigest "github.com/opencontainers/go-digest"
)

// Algorithm identifies a supported digest algorithm.
type Algorithm string

// Canonical is the only algorithm this registry accepts. Additional
// algorithms (sha512, blake3, ...) could be added here without touching
// callers, which only ever see the opaque Digest type.
const Canonical Algorithm = "sha256"

var (
	// ErrDigestInvalidFormat is returned when a digest string doesn't match
	// "alg:hex".
	ErrDigestInvalidFormat = errors.New("digest: invalid format")

	// ErrDigestUnsupported is returned for a well-formed digest whose
	// algorithm this registry does not recognize.
	ErrDigestUnsupported = errors.New("digest: unsupported algorithm")
)

var sha256Hex = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Digest is a content digest in canonical "alg:hex" form.
type Digest string

// Parse validates s and returns it as a Digest. Uppercase hex, wrong length,
// and unrecognized algorithms are all rejected.
func Parse(s string) (Digest, error) {
	d := godigest.Digest(s)
	if err := d.Validate(); err != nil {
		if err == godigest.ErrDigestUnsupported {
			return "", ErrDigestUnsupported
		}
		return "", ErrDigestInvalidFormat
	}

	if d.Algorithm().String() != string(Canonical) {
		return "", ErrDigestUnsupported
	}

	if !sha256Hex.MatchString(d.Encoded()) {
		return "", ErrDigestInvalidFormat
	}

	return Digest(s), nil
}

// Algorithm returns the algorithm portion of the digest.
func (d Digest) Algorithm() Algorithm {
	return Algorithm(godigest.Digest(d).Algorithm().String())
}

// Hex returns the hex-encoded portion of the digest.
func (d Digest) Hex() string {
	return godigest.Digest(d).Encoded()
}

// String returns the digest in "alg:hex" form.
func (d Digest) String() string {
	return string(d)
}

// Validate reports whether d is well-formed and uses a supported algorithm.
func (d Digest) Validate() error {
	_, err := Parse(string(d))
	return err
}

// Digester accumulates a streaming hash and yields the canonical digest of
// everything written to Hash() so far.
type Digester interface {
	Hash() hash.Hash
	Digest() Digest
}

type digester struct {
	alg  Algorithm
	hash hash.Hash
}

// NewCanonicalDigester returns a Digester for the canonical algorithm.
func NewCanonicalDigester() Digester {
	return &digester{alg: Canonical, hash: godigest.Canonical.Hash()}
}

func (d *digester) Hash() hash.Hash { return d.hash }

func (d *digester) Digest() Digest {
	return Digest(fmt.Sprintf("%s:%x", d.alg, d.hash.Sum(nil)))
}

// FromBytes computes the canonical digest of p.
func FromBytes(p []byte) Digest {
	return Digest(godigest.Canonical.FromBytes(p).String())
}

// FromReader computes the canonical digest of the entire stream r, reading
// it to completion. Callers uploading large blobs should prefer a
// Digester fed incrementally alongside the write path instead of buffering
// through this helper.
func FromReader(r io.Reader) (Digest, error) {
	d, err := godigest.Canonical.FromReader(r)
	if err != nil {
		return "", err
	}
	return Digest(d.String()), nil
}
