// Package content implements the filesystem-backed raw content store:
// one blob per fetched URL, addressed by company and a hash of the URL,
// with a bounded retention sweep.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
)

// ErrNotFound is returned when Get is asked for a path that doesn't exist.
var ErrNotFound = errors.New("content not found")

// Store is a content-addressed blob store rooted at a configured
// directory. Paths follow raw/{company}/{hash(url)}.
type Store struct {
	root   string
	logger arbor.ILogger
}

// New builds a Store rooted at root, creating the directory if needed.
func New(root string, logger arbor.ILogger) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create content store root %s: %w", root, err)
	}
	return &Store{root: root, logger: logger}, nil
}

// PathFor computes the relative storage path for a company+URL pair
// without touching disk. This is the path recorded on extract messages.
func PathFor(company, url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join("raw", company, hex.EncodeToString(sum[:]))
}

// Put writes body to the blob addressed by company+url, overwriting any
// existing content at that path (idempotent: re-crawling the same URL
// just replaces the same file).
func (s *Store) Put(company, url string, body []byte) (string, error) {
	relPath := PathFor(company, url)
	fullPath := filepath.Join(s.root, relPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create content directory for %s: %w", relPath, err)
	}
	if err := os.WriteFile(fullPath, body, 0644); err != nil {
		return "", fmt.Errorf("failed to write content %s: %w", relPath, err)
	}
	return relPath, nil
}

// Get reads the blob at the given relative path (as returned by Put, or
// recorded on an ExtractMessage).
func (s *Store) Get(relPath string) ([]byte, error) {
	fullPath := filepath.Join(s.root, relPath)
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read content %s: %w", relPath, err)
	}
	return data, nil
}

// SweepOnce deletes blobs whose modification time is older than
// retention, walking the whole store root once. Returns the number of
// files removed.
func (s *Store) SweepOnce(retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)
	removed := 0

	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if rmErr := os.Remove(path); rmErr != nil {
				s.logger.Warn().Err(rmErr).Str("path", path).Msg("failed to remove expired content blob")
				return nil
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to sweep content store: %w", err)
	}
	return removed, nil
}

// RunSweepLoop periodically calls SweepOnce until ctx is cancelled. Meant
// to be launched as a single background goroutine at startup.
func (s *Store) RunSweepLoop(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepOnce(retention)
			if err != nil {
				s.logger.Warn().Err(err).Msg("content store sweep failed")
				continue
			}
			if n > 0 {
				s.logger.Info().Int("removed", n).Msg("content store sweep removed expired blobs")
			}
		}
	}
}
