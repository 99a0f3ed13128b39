package engine

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
	"github.com/zeebo/xxh3"
)

// HashAlgorithm names a content hash. Hash strings carry it as a prefix
// ("blake3:<hex>") so hashes of different algorithms never compare equal.
type HashAlgorithm string

const (
	HashBLAKE3 HashAlgorithm = "blake3"
	HashXXH3   HashAlgorithm = "xxh3"
)

// ParseHashAlgorithm validates a user-supplied algorithm name. The empty
// string selects BLAKE3.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	switch HashAlgorithm(strings.ToLower(s)) {
	case "", HashBLAKE3:
		return HashBLAKE3, nil
	case HashXXH3:
		return HashXXH3, nil
	default:
		return "", fmt.Errorf("unknown hash algorithm %q (want blake3 or xxh3)", s)
	}
}

// AlgorithmOf returns the algorithm prefix of a hash string, or "" if the
// string has none.
func AlgorithmOf(h string) HashAlgorithm {
	alg, _, ok := strings.Cut(h, ":")
	if !ok {
		return ""
	}
	return HashAlgorithm(alg)
}

// digester is the part of a streaming hasher HashReader needs.
type digester interface {
	io.Writer
	Sum(b []byte) []byte
}

// xxh3Digest exposes the 128-bit XXH3 digest through Sum.
type xxh3Digest struct{ h *xxh3.Hasher }

func (x xxh3Digest) Write(p []byte) (int, error) { return x.h.Write(p) }

func (x xxh3Digest) Sum(b []byte) []byte {
	sum := x.h.Sum128().Bytes()
	return append(b, sum[:]...)
}

func newHasher(alg HashAlgorithm) (digester, error) {
	switch alg {
	case HashBLAKE3, "":
		return blake3.New(), nil
	case HashXXH3:
		return xxh3Digest{h: xxh3.New()}, nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", alg)
	}
}

// HashFile computes the content hash of the file at path, returning
// "<alg>:<hex digest>".
func HashFile(path string, alg HashAlgorithm) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return HashReader(f, alg)
}

// HashReader hashes everything read from r.
func HashReader(r io.Reader, alg HashAlgorithm) (string, error) {
	if alg == "" {
		alg = HashBLAKE3
	}
	h, err := newHasher(alg)
	if err != nil {
		return "", err
	}
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return string(alg) + ":" + hex.EncodeToString(h.Sum(nil)), nil
}
