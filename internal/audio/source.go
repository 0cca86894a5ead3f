package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"
)

// Common errors for Source implementations
var (
	ErrEmptySource = errors.New("audio source is empty")
)

// Source is the logical origin of encoded audio bytes. Sources are re-openable:
// every Open returns a fresh reader positioned at byte 0. The engine never owns
// the bytes behind a source.
type Source interface {
	// Name identifies the source; it is used as the cache key and for format
	// detection by extension
	Name() string

	// Open returns a new reader over the encoded bytes. The caller closes it.
	Open() (io.ReadSeekCloser, error)
}

// FileSource represents an audio source backed by a file
type FileSource struct {
	fs   afero.Fs
	path string
}

// NewFileSource creates a new FileSource for the given path on fs.
// A nil fs means the OS filesystem.
func NewFileSource(fs afero.Fs, path string) *FileSource {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	slog.Debug("creating new FileSource", "path", path)
	return &FileSource{
		fs:   fs,
		path: path,
	}
}

// Name returns the file path
func (s *FileSource) Name() string {
	return s.path
}

// Open opens the file for reading
func (s *FileSource) Open() (io.ReadSeekCloser, error) {
	if s.path == "" {
		slog.Error("FileSource has empty path")
		return nil, fmt.Errorf("%w: file path is empty", ErrIO)
	}

	file, err := s.fs.Open(s.path)
	if err != nil {
		slog.Error("failed to open file", "path", s.path, "error", err)
		return nil, fmt.Errorf("%w: failed to open file: %v", ErrIO, err)
	}

	slog.Debug("FileSource opened", "path", s.path)
	return file, nil
}

// MemorySource represents an audio source held in memory
type MemorySource struct {
	name string
	data []byte
}

// NewMemorySource creates a source over data. The name should carry a file
// extension when magic-byte detection alone is not enough.
func NewMemorySource(name string, data []byte) *MemorySource {
	slog.Debug("creating new MemorySource", "name", name, "size_bytes", len(data))
	return &MemorySource{
		name: name,
		data: data,
	}
}

// Name returns the name given at construction
func (s *MemorySource) Name() string {
	return s.name
}

// Open returns a reader over the in-memory bytes
func (s *MemorySource) Open() (io.ReadSeekCloser, error) {
	if len(s.data) == 0 {
		return nil, fmt.Errorf("%w: %s: %w", ErrIO, s.name, ErrEmptySource)
	}
	return nopSeekCloser{bytes.NewReader(s.data)}, nil
}

type nopSeekCloser struct {
	io.ReadSeeker
}

func (nopSeekCloser) Close() error { return nil }
