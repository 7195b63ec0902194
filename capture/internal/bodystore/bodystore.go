// Package bodystore implements the hybrid, content-addressed body storage
// described in spec.md §4.5: small bodies are embedded inline in the journal
// record, larger ones are written once per content hash under bodies/.
package bodystore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/domlens/apiscout/capture"
)

// Store writes externalized bodies under a run directory's bodies/
// subdirectory. The zero value is not usable; construct with New.
type Store struct {
	runDir          string
	maxBodyBytes    int64
	inlineBodyBytes int64
}

// New returns a Store rooted at runDir, which must already exist.
func New(runDir string, maxBodyBytes, inlineBodyBytes int64) *Store {
	return &Store{runDir: runDir, maxBodyBytes: maxBodyBytes, inlineBodyBytes: inlineBodyBytes}
}

// Placement is where a body ended up.
type Placement struct {
	Hash          string
	InlineBody    capture.Value // set iff the body was embedded inline
	BodyPath      string        // set iff the body was externalized, relative to runDir
	OmittedReason string        // set iff neither of the above (write failure or oversize)
}

// Place decides and executes the placement of one parsed-and-redacted body.
// rawBytes is the original (pre-redaction) body, used only for the
// content-addressed hash and the size decision; redacted is what actually
// gets written or embedded.
func (s *Store) Place(rawBytes []byte, redacted capture.Value) Placement {
	hash := capture.HashBytes(rawBytes)
	size := int64(len(rawBytes))

	if size <= s.inlineBodyBytes {
		return Placement{Hash: hash, InlineBody: redacted}
	}
	if size <= s.maxBodyBytes {
		path, err := s.writeExternal(hash, redacted)
		if err != nil {
			return Placement{Hash: hash, OmittedReason: capture.OmittedUnavailable}
		}
		return Placement{Hash: hash, BodyPath: path}
	}
	return Placement{Hash: hash, OmittedReason: capture.OmittedMaxBodyBytes}
}

// writeExternal writes redacted to bodies/<hash>.json exactly once per
// hash; if the file already exists, it is left untouched (content-addressed
// dedup, spec.md §4.5).
func (s *Store) writeExternal(hash string, redacted capture.Value) (string, error) {
	bodiesDir := filepath.Join(s.runDir, "bodies")
	if err := os.MkdirAll(bodiesDir, 0o755); err != nil {
		return "", fmt.Errorf("bodystore: mkdir bodies: %w", err)
	}

	relPath := filepath.Join("bodies", hash+".json")
	absPath := filepath.Join(s.runDir, relPath)

	if _, err := os.Stat(absPath); err == nil {
		return relPath, nil
	}

	data, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return "", fmt.Errorf("bodystore: marshal body %s: %w", hash, err)
	}

	tmp := absPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("bodystore: write body %s: %w", hash, err)
	}
	if err := os.Rename(tmp, absPath); err != nil {
		os.Remove(tmp)
		if _, statErr := os.Stat(absPath); statErr == nil {
			// A concurrent writer for the same hash won the race; that's fine.
			return relPath, nil
		}
		return "", fmt.Errorf("bodystore: finalize body %s: %w", hash, err)
	}

	return relPath, nil
}
