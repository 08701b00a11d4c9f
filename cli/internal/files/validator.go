// Package files checks files before they are shared into a call.
package files

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// MaxSize caps a single shared file. Every byte is pushed through the data
// channel of every connected peer.
const MaxSize = 2 * 1024 * 1024 * 1024

var (
	ErrNotExist  = errors.New("file does not exist")
	ErrDirectory = errors.New("is a directory")
	ErrEmpty     = errors.New("file is empty")
	ErrTooLarge  = errors.New("file is too large")
)

// FileInfo describes a file about to be shared.
type FileInfo struct {
	// Path is the absolute path to the file
	Path string

	// Name is the filename sent to peers
	Name string

	Size int64

	// Type is the MIME type, application/octet-stream when unknown
	Type string
}

// Validate checks that path names a readable, non-empty regular file.
func Validate(path string) (FileInfo, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return FileInfo{}, fmt.Errorf("no file specified")
	}
	if strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("%s: %w", path, ErrNotExist)
		}
		return FileInfo{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}
	switch {
	case stat.IsDir():
		return FileInfo{}, fmt.Errorf("%s: %w", path, ErrDirectory)
	case stat.Size() == 0:
		return FileInfo{}, fmt.Errorf("%s: %w", path, ErrEmpty)
	case stat.Size() > MaxSize:
		return FileInfo{}, fmt.Errorf("%s: %w", path, ErrTooLarge)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	file.Close()

	mimeType := mime.TypeByExtension(filepath.Ext(absPath))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return FileInfo{
		Path: absPath,
		Name: filepath.Base(absPath),
		Size: stat.Size(),
		Type: mimeType,
	}, nil
}
