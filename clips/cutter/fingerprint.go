package cutter

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// Fingerprint hashes (sourceBasename, formatted_start, formatted_end),
// truncated to 12 hex characters (spec §4.J). Identical (source, start,
// end) triples always produce the same fingerprint.
func Fingerprint(sourcePath string, startSeconds, endSeconds float64) string {
	base := filepath.Base(sourcePath)
	payload := fmt.Sprintf("%s|%.3f|%.3f", base, startSeconds, endSeconds)
	sum := md5.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])[:12]
}
