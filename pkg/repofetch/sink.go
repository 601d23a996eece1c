// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package repofetch

import (
	"fmt"
	"os"
	"path/filepath"
)

// SinkService is the collaborator contract responsible for persisting
// downloaded file content. Implementations must be safe for concurrent use
// by multiple goroutines writing distinct paths.
type SinkService interface {
	// Exists reports whether destPath is already present, for the
	// skip-if-exists-and-not-overwrite check.
	Exists(destPath string) (bool, error)
	// EnsureDir creates destPath (and parents) if it does not exist.
	EnsureDir(destPath string) error
	// Save writes content to destPath atomically (temp file + rename).
	Save(destPath string, content []byte) error
	// ResolvePath computes the on-disk destination for a repository path,
	// honoring preserveStructure.
	ResolvePath(destination, repoPath string, preserveStructure bool) string
}

// filesystemSink is the concrete SinkService writing to the local
// filesystem. Writes are staged to a ".part" sibling and renamed into
// place so a crash mid-write never leaves a corrupt file indistinguishable
// from a complete one.
type filesystemSink struct {
	dirPerm  os.FileMode
	filePerm os.FileMode
}

// NewFilesystemSink builds the default local-disk Sink Service.
func NewFilesystemSink() SinkService {
	return &filesystemSink{dirPerm: 0o755, filePerm: 0o644}
}

func (s *filesystemSink) Exists(destPath string) (bool, error) {
	_, err := os.Stat(destPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &TransportError{Op: "stat " + destPath, Cause: err}
}

func (s *filesystemSink) EnsureDir(destPath string) error {
	if err := os.MkdirAll(destPath, s.dirPerm); err != nil {
		return &TransportError{Op: "mkdir " + destPath, Cause: err}
	}
	return nil
}

func (s *filesystemSink) Save(destPath string, content []byte) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return &TransportError{Op: "mkdir " + dir, Cause: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(destPath)+".*.part")
	if err != nil {
		return &TransportError{Op: "creating temp file in " + dir, Cause: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &TransportError{Op: "writing " + tmpName, Cause: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &TransportError{Op: "closing " + tmpName, Cause: err}
	}
	if err := os.Chmod(tmpName, s.filePerm); err != nil {
		os.Remove(tmpName)
		return &TransportError{Op: "chmod " + tmpName, Cause: err}
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return &TransportError{Op: fmt.Sprintf("rename %s -> %s", tmpName, destPath), Cause: err}
	}
	return nil
}

func (s *filesystemSink) ResolvePath(destination, repoPath string, preserveStructure bool) string {
	if preserveStructure {
		return filepath.Join(destination, filepath.FromSlash(repoPath))
	}
	return filepath.Join(destination, filepath.Base(repoPath))
}
