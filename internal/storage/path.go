package storage

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"path"
)

// ChunkSize is the read block used for hashing and streaming downloads.
const ChunkSize = 8 * 1024

// BlobPath derives the canonical storage location for an uploaded file. Two
// uploads with identical bytes collide on the same path on purpose; the
// extension comes from the original filename, not from the content.
func BlobPath(org, course, blockType, blockID, sha1Hex, filename string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s%s", org, course, blockType, blockID, sha1Hex, path.Ext(filename))
}

// HashReader computes the hex SHA-1 fingerprint of the reader's content and
// rewinds it so the caller can still persist the original bytes. SHA-1 is
// used for content addressing, not for security.
func HashReader(r io.ReadSeeker) (string, error) {
	digest := sha1.New()
	buf := make([]byte, ChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			digest.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}
