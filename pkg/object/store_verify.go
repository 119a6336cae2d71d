package object

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// VerifySummary reports the outcome of Store.Verify.
type VerifySummary struct {
	LooseObjects int
	Corrupt      []Hash
}

// Verify rehashes every loose object. Objects that fail to decompress,
// parse or hash back to their file name are collected in Corrupt; the
// returned error is non-nil only when the store itself cannot be listed.
func (s *Store) Verify() (*VerifySummary, error) {
	report := &VerifySummary{}

	hashes, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, h := range hashes {
		report.LooseObjects++
		objType, content, err := s.Read(h)
		if err != nil {
			report.Corrupt = append(report.Corrupt, h)
			continue
		}
		if actual := HashObject(objType, content); actual != h {
			report.Corrupt = append(report.Corrupt, h)
		}
	}
	return report, nil
}

// List returns every loose object id in the store, sorted.
func (s *Store) List() ([]Hash, error) {
	objectsDir := filepath.Join(s.root, "objects")
	fanoutDirs, err := os.ReadDir(objectsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read objects dir: %w", err)
	}

	hashes := make([]Hash, 0)
	for _, fanoutDir := range fanoutDirs {
		if !fanoutDir.IsDir() {
			continue
		}
		prefix := fanoutDir.Name()
		if !isHexHashComponent(prefix, 2) {
			continue
		}

		objectEntries, err := os.ReadDir(filepath.Join(objectsDir, prefix))
		if err != nil {
			return nil, fmt.Errorf("read objects fanout %s: %w", prefix, err)
		}
		for _, objectEntry := range objectEntries {
			if objectEntry.IsDir() {
				continue
			}
			suffix := objectEntry.Name()
			if !isHexHashComponent(suffix, 2*HashSize-2) {
				continue
			}
			hashes = append(hashes, Hash(prefix+suffix))
		}
	}

	sort.Slice(hashes, func(i, j int) bool {
		return hashes[i] < hashes[j]
	})
	return hashes, nil
}

func isHexHashComponent(s string, expectedLen int) bool {
	if len(s) != expectedLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
