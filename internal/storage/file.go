package storage

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrTooLarge is returned by SaveUpload when the stream exceeds maxSize.
var ErrTooLarge = errors.New("file too large")

var unsafeNameRe = regexp.MustCompile(`[^\p{L}\p{N}._ -]+`)

type SavedFile struct {
	Path      string
	SizeBytes int64
}

// SaveUpload stores an uploaded e-book under baseDir/<random>/<name>, keeping
// the sanitized upload name since output files are named after it.
func SaveUpload(baseDir string, originalName string, data io.Reader, maxSize int64) (SavedFile, error) {
	if baseDir == "" {
		return SavedFile{}, fmt.Errorf("empty storage directory")
	}

	token, err := randomHex(8)
	if err != nil {
		return SavedFile{}, fmt.Errorf("generate directory name: %w", err)
	}
	dir := filepath.Join(baseDir, token)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return SavedFile{}, fmt.Errorf("create storage directory: %w", err)
	}

	fullPath := filepath.Join(dir, sanitizeName(originalName))
	out, err := os.Create(fullPath)
	if err != nil {
		return SavedFile{}, fmt.Errorf("create file: %w", err)
	}
	defer out.Close()

	reader := data
	if maxSize > 0 {
		reader = io.LimitReader(data, maxSize+1)
	}

	n, err := io.Copy(out, reader)
	if err != nil {
		_ = os.RemoveAll(dir)
		return SavedFile{}, fmt.Errorf("write file: %w", err)
	}
	if maxSize > 0 && n > maxSize {
		_ = os.RemoveAll(dir)
		return SavedFile{}, ErrTooLarge
	}

	return SavedFile{Path: fullPath, SizeBytes: n}, nil
}

func sanitizeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	stem = strings.TrimSpace(unsafeNameRe.ReplaceAllString(stem, "_"))
	if stem == "" || stem == "." {
		stem = "book"
	}
	if ext == "" {
		ext = ".epub"
	}
	return stem + strings.ToLower(ext)
}

func randomHex(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid length")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", buf), nil
}
