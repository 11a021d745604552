// Package cache keeps the vendor session in a file between runs.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/anicoll/homgar-integration/internal/pkg/homgar"
)

const defaultFileName = "session.json"

type File struct {
	path string
}

// New returns a file store at path. An empty path resolves to the user cache directory.
func New(path string) (*File, error) {
	if path == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "homgar", defaultFileName)
	}
	return &File{path: path}, nil
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Load() (homgar.SessionState, error) {
	state := homgar.SessionState{}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return state, err
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return homgar.SessionState{}, err
	}
	return state, nil
}

// Save writes through a temp file so a crash never leaves a torn cache.
func (f *File) Save(state homgar.SessionState) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
