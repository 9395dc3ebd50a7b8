// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileSink rewrites a JSON status file. Readers never see a partial file.
type FileSink struct {
	path string
}

// NewFileSink writes to path
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, ErrDisabled
	}
	return &FileSink{path: path}, nil
}

// Name returns "file"
func (f *FileSink) Name() string {
	return "file"
}

// Path returns the status file path
func (f *FileSink) Path() string {
	return f.path
}

// Export writes st to a temp file in the same directory and renames it
func (f *FileSink) Export(ctx context.Context, st Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".status-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing status: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", f.path, err)
	}
	return nil
}

// Close is a no-op
func (f *FileSink) Close() error {
	return nil
}
