// Package store reads and writes the per-device artifacts produced by a deployment.
package store

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/damianoneill/netdeploy/log"
)

// Kind identifies an artifact directory.
type Kind string

const (
	Configs Kind = "configs"
	Backups Kind = "backup"
	Diffs   Kind = "diffs"
)

// Store maps artifact kinds onto directories.
type Store struct {
	dirs map[Kind]string
}

// New creates a store using the given directories; a kind missing from dirs uses its own name,
// relative to the working directory.
func New(dirs map[Kind]string) *Store {
	s := &Store{dirs: map[Kind]string{Configs: string(Configs), Backups: string(Backups), Diffs: string(Diffs)}}
	for k, d := range dirs {
		if d != "" {
			s.dirs[k] = d
		}
	}
	return s
}

// Path delivers the location of an artifact. Names must stay within the kind's directory.
func (s *Store) Path(kind Kind, name string) (string, error) {
	switch {
	case name == "":
		return "", errors.Errorf("empty %s artifact name", kind)
	case strings.ContainsAny(name, `/\`):
		return "", errors.Errorf("%s artifact name %q contains a path separator", kind, name)
	case strings.Contains(name, ".."):
		return "", errors.Errorf("%s artifact name %q contains ..", kind, name)
	}
	return filepath.Join(s.dirs[kind], name), nil
}

// Write stores content as the named artifact, creating its directory if needed.
func (s *Store) Write(kind Kind, name, content string) (string, error) {
	path, err := s.Path(kind, name)
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(s.dirs[kind], 0o750); err != nil {
		return "", errors.Wrapf(err, "create %s directory failed", kind)
	}
	if err = os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", errors.Wrapf(err, "write %s failed", path)
	}
	log.Debugf("wrote %s (%s)", path, humanize.Bytes(uint64(len(content))))
	return path, nil
}

// Read delivers the content of the named artifact.
func (s *Store) Read(kind Kind, name string) (string, error) {
	path, err := s.Path(kind, name)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(path) // nolint: gosec
	if err != nil {
		return "", errors.Wrapf(err, "read %s failed", path)
	}
	return string(b), nil
}
