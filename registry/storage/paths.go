package storage

import (
	"path"

	digestpkg "github.com/distribution-core/registry/digest"
)

// blobDataPath returns the path of a committed blob's content, fanning out
// on the first two hex characters to keep any one directory from growing
// unbounded.
func blobDataPath(dgst digestpkg.Digest) string {
	hex := dgst.Hex()
	return path.Join("/blobs", string(dgst.Algorithm()), hex[:2], hex, "data")
}

// blobContainerPath returns the directory holding a blob's data file.
func blobContainerPath(dgst digestpkg.Digest) string {
	hex := dgst.Hex()
	return path.Join("/blobs", string(dgst.Algorithm()), hex[:2], hex)
}

// stagingPath returns the path of an in-flight upload's staged bytes.
func stagingPath(sessionID string) string {
	return path.Join("/staging", sessionID)
}
