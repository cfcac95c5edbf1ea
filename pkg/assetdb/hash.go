package assetdb

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// ComputeStateHash derives the scan-journal state digest from
// (filepath, mtime_ns, size). It changes iff the file's on-disk content
// or timestamp changed, letting incremental scans skip untouched files.
func ComputeStateHash(filepath string, mtimeNs int64, sizeBytes int64) string {
	h := sha256.New()
	h.Write([]byte(filepath))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(mtimeNs, 10)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(sizeBytes, 10)))
	return hex.EncodeToString(h.Sum(nil))
}
