package store

import (
	"fmt"

	"github.com/minio/highwayhash"

	"github.com/VectorBits/permscan/src/internal/report"
)

var key = []byte("0123456789ABCDEF0123456789ABCDEF")

func Hash(data []byte) (uint64, error) {
	hash, err := highwayhash.New64(key)
	if err != nil {
		return 0, err
	}
	_, err = hash.Write(data)
	return hash.Sum64(), err
}

// Digest fingerprints the static part of an entry. Storage values do not
// contribute, so the digest only moves when the analysis result does.
func Digest(entry *report.Entry) (string, error) {
	data, err := entry.StaticJSON()
	if err != nil {
		return "", err
	}
	sum, err := Hash(data)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", sum), nil
}
