package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store writes downloaded files under a single destination root.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: filepath.Clean(root)}
}

func (s *Store) Root() string {
	return s.root
}

// Path returns where a peer-supplied file name lands under the root.
func (s *Store) Path(name string) string {
	return JoinUnder(s.root, name)
}

// Prepare sanitizes name and creates any missing parent directories.
// It returns the destination path without creating the file itself.
func (s *Store) Prepare(name string) (string, error) {
	full := s.Path(name)
	if !IsWithin(s.root, full) {
		return full, fmt.Errorf("path %s escapes %s", full, s.root)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return full, fmt.Errorf("failed to create directory for %s: %w", full, err)
	}
	return full, nil
}

// Create prepares name and truncates or creates the destination file.
func (s *Store) Create(name string) (*os.File, string, error) {
	full, err := s.Prepare(name)
	if err != nil {
		return nil, full, err
	}

	f, err := os.Create(full)
	if err != nil {
		return nil, full, fmt.Errorf("failed to create file %s: %w", full, err)
	}
	return f, full, nil
}

// Remove deletes a partially written file; missing files are not an error.
func (s *Store) Remove(full string) error {
	if !IsWithin(s.root, full) {
		return fmt.Errorf("path %s escapes %s", full, s.root)
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// HashingWriter tees writes into a SHA-256 digest.
type HashingWriter struct {
	w io.Writer
	h hash.Hash
}

func NewHashingWriter(w io.Writer) *HashingWriter {
	return &HashingWriter{w: w, h: sha256.New()}
}

func (hw *HashingWriter) Write(p []byte) (int, error) {
	n, err := hw.w.Write(p)
	hw.h.Write(p[:n])
	return n, err
}

// Sum returns the lowercase hex digest of everything written so far.
func (hw *HashingWriter) Sum() string {
	return hex.EncodeToString(hw.h.Sum(nil))
}

// HashFile returns the hex SHA-256 of r's contents.
func HashFile(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChecksumMatches compares two hex digests case-insensitively.
func ChecksumMatches(expected, actual string) bool {
	return strings.EqualFold(strings.TrimSpace(expected), actual)
}
