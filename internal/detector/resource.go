package detector

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
)

// ErrResourceNotFound is returned when a classifier resource exists neither
// in the embedded resources nor on disk.
var ErrResourceNotFound = errors.New("classifier resource not found")

// ResolveResource returns a filesystem path for a classifier resource.
//
// OpenCV only loads cascades from files, so a resource found in resources
// is copied to a temporary file; cleanup removes it and must be called once
// the classifier is closed. A resource found on disk is used in place and
// cleanup does nothing.
func ResolveResource(resources fs.FS, name string) (string, func(), error) {
	noop := func() {}

	if name == "" {
		return "", noop, fmt.Errorf("%w: empty resource name", ErrResourceNotFound)
	}

	if resources != nil {
		data, err := fs.ReadFile(resources, strings.TrimPrefix(name, "/"))
		if err == nil {
			p, err := ExtractResource(path.Base(name), data)
			if err != nil {
				return "", noop, err
			}
			return p, func() { os.Remove(p) }, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", noop, fmt.Errorf("read resource %s: %w", name, err)
		}
	}

	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		return name, noop, nil
	}

	return "", noop, fmt.Errorf("%w: %s", ErrResourceNotFound, name)
}

// ExtractResource writes data to a new temporary file whose name ends in
// base and returns its path.
func ExtractResource(base string, data []byte) (string, error) {
	f, err := os.CreateTemp("", "cascade_*_"+base)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write resource %s: %w", base, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close resource %s: %w", base, err)
	}

	return f.Name(), nil
}
