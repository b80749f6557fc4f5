package anomaly

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/factmap/pkg/constants"
	"github.com/agentstation/factmap/pkg/errors"
)

// Document is the on-disk layout of a report file.
type Document struct {
	Anomalies []Report `yaml:"anomalies"`
}

// File appends reports to a YAML document on disk.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile creates a sink writing to path. The file is created on the first
// report.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the file the sink writes to.
func (f *File) Path() string {
	return f.path
}

// Report appends r to the file.
func (f *File) Report(_ context.Context, r Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := ReadFile(f.path)
	if err != nil {
		return err
	}
	doc.Anomalies = append(doc.Anomalies, r)

	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.WrapParse("yaml", f.path, err)
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
			return errors.WrapIO("create", dir, err)
		}
	}
	if err := os.WriteFile(f.path, data, constants.FilePermissions); err != nil {
		return errors.WrapIO("write", f.path, err)
	}
	return nil
}

// ReadFile loads a report file. A missing file yields an empty document.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if os.IsNotExist(err) {
		return &Document{}, nil
	}
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	return &doc, nil
}
