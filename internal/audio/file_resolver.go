package audio

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/afero"
)

// DefaultExtensions lists the file extensions tried when a path has none, in
// priority order
var DefaultExtensions = []string{".wav", ".mp3", ".ogg", ".flac", ".aiff", ".aif"}

// FileResolver turns a user-supplied path into a FileSource, trying each
// supported extension when the path itself does not exist
type FileResolver struct {
	fs         afero.Fs
	extensions []string
}

// NewFileResolver creates a resolver over fs. A nil fs means the OS filesystem.
func NewFileResolver(fs afero.Fs, extensions []string) *FileResolver {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	slog.Debug("creating file resolver",
		"extensions", extensions,
		"extension_count", len(extensions))

	return &FileResolver{
		fs:         fs,
		extensions: extensions,
	}
}

// Resolve returns a source for path, or for the first path+extension that
// exists
func (f *FileResolver) Resolve(path string) (*FileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path cannot be empty", ErrIO)
	}

	if f.isFile(path) {
		return NewFileSource(f.fs, path), nil
	}

	for i, ext := range f.extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		candidate := path + ext
		if f.isFile(candidate) {
			slog.Debug("file resolved by extension",
				"path", path,
				"resolved_path", candidate,
				"extension_index", i)
			return NewFileSource(f.fs, candidate), nil
		}
	}

	slog.Warn("file resolution failed",
		"path", path,
		"extensions_tried", f.extensions)
	return nil, fmt.Errorf("%w: no file found for %s with extensions %v", ErrIO, path, f.extensions)
}

func (f *FileResolver) isFile(path string) bool {
	info, err := f.fs.Stat(path)
	return err == nil && !info.IsDir()
}
