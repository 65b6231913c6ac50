package filehandle

import (
	"crypto/md5"  //nolint:gosec // MD5 used for checksum verification, not security
	"crypto/sha1" //nolint:gosec // SHA1 used for checksum verification, not security
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// DigestEncoding selects how a finalized digest is rendered as a string.
type DigestEncoding string

const (
	// DigestHex renders the digest as lowercase hexadecimal.
	DigestHex DigestEncoding = "hex"
	// DigestBase64 renders the digest as standard padded base64.
	DigestBase64 DigestEncoding = "base64"
	// DigestLatin1 maps every digest byte to the Unicode code point of the same value.
	DigestLatin1 DigestEncoding = "latin1"
)

// NewHasher creates a new hash.Hash for the given algorithm.
// Returns an error if the algorithm is not supported.
func NewHasher(algorithm ChecksumAlgorithm) (hash.Hash, error) {
	switch ChecksumAlgorithm(strings.ToLower(string(algorithm))) {
	case ChecksumMD5:
		return md5.New(), nil //nolint:gosec // MD5 used for checksum verification, not security
	case ChecksumSHA1:
		return sha1.New(), nil //nolint:gosec // SHA1 used for checksum verification, not security
	case ChecksumSHA256:
		return sha256.New(), nil
	case ChecksumSHA512:
		return sha512.New(), nil
	case ChecksumCRC32:
		return crc32.NewIEEE(), nil
	case ChecksumXXHash:
		return xxhash.New(), nil
	case ChecksumBLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported checksum algorithm: %s", ErrNotSupported, algorithm)
	}
}

// EncodeDigest renders sum using the given encoding.
func EncodeDigest(sum []byte, encoding DigestEncoding) (string, error) {
	switch DigestEncoding(strings.ToLower(string(encoding))) {
	case DigestHex, "":
		return hex.EncodeToString(sum), nil
	case DigestBase64:
		return base64.StdEncoding.EncodeToString(sum), nil
	case DigestLatin1, "binary":
		runes := make([]rune, len(sum))
		for i, b := range sum {
			runes[i] = rune(b)
		}
		return string(runes), nil
	default:
		return "", fmt.Errorf("%w: unsupported digest encoding: %s", ErrNotSupported, encoding)
	}
}

// hashSink adapts a hash.Hash to the stream sink contract.
type hashSink struct {
	hash.Hash
}

func (hashSink) Close() error { return nil }

// multiHashSink feeds every chunk to several hashers at once.
type multiHashSink struct {
	algorithms []ChecksumAlgorithm
	hashers    []hash.Hash
}

func newMultiHashSink(algorithms []ChecksumAlgorithm) (*multiHashSink, error) {
	if len(algorithms) == 0 {
		return nil, fmt.Errorf("%w: no algorithms specified", ErrInvalidArgument)
	}
	s := &multiHashSink{
		algorithms: algorithms,
		hashers:    make([]hash.Hash, 0, len(algorithms)),
	}
	for _, algo := range algorithms {
		h, err := NewHasher(algo)
		if err != nil {
			return nil, err
		}
		s.hashers = append(s.hashers, h)
	}
	return s, nil
}

func (s *multiHashSink) Write(p []byte) (int, error) {
	for _, h := range s.hashers {
		// hash.Hash.Write never returns an error
		h.Write(p)
	}
	return len(p), nil
}

func (s *multiHashSink) Close() error { return nil }

func (s *multiHashSink) sums() map[ChecksumAlgorithm]string {
	results := make(map[ChecksumAlgorithm]string, len(s.hashers))
	for i, h := range s.hashers {
		results[s.algorithms[i]] = hex.EncodeToString(h.Sum(nil))
	}
	return results
}
