package realm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/saslgate/internal/logger"
)

// FilePrincipal is one entry of a realm file.
type FilePrincipal struct {
	Name string `yaml:"name"`

	// Password is a stored value as accepted by VerifyPassword. Prefer
	// bcrypt hashes produced by `saslgate hash-password`.
	Password string `yaml:"password"`

	// MayActAs lists identities this principal may request as
	// authorization identity. "*" allows any.
	MayActAs []string `yaml:"may_act_as,omitempty"`

	Disabled bool `yaml:"disabled,omitempty"`
}

// FileContents is the YAML document of a realm file.
type FileContents struct {
	Principals []FilePrincipal `yaml:"principals"`
}

type fileState struct {
	principals map[string]FilePrincipal
}

// FileRealm serves principals from a YAML file. Watch reloads the file
// when it changes; a file that fails to parse keeps the previous contents.
type FileRealm struct {
	path  string
	state atomic.Pointer[fileState]
}

// LoadFileRealm reads the realm file at path.
func LoadFileRealm(path string) (*FileRealm, error) {
	r := &FileRealm{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func parseFile(data []byte) (*fileState, error) {
	var contents FileContents
	if err := yaml.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("parse realm file: %w", err)
	}
	st := &fileState{principals: make(map[string]FilePrincipal, len(contents.Principals))}
	for i, p := range contents.Principals {
		if p.Name == "" {
			return nil, fmt.Errorf("realm file: principal #%d has no name", i+1)
		}
		if _, dup := st.principals[p.Name]; dup {
			return nil, fmt.Errorf("realm file: duplicate principal %q", p.Name)
		}
		st.principals[p.Name] = p
	}
	return st, nil
}

// Reload re-reads the file.
func (r *FileRealm) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read realm file: %w", err)
	}
	st, err := parseFile(data)
	if err != nil {
		return err
	}
	r.state.Store(st)
	return nil
}

// Len returns the number of principals currently loaded.
func (r *FileRealm) Len() int { return len(r.state.Load().principals) }

func (r *FileRealm) Name() string { return "file" }

func (r *FileRealm) VerifyPassword(_ context.Context, principal string, password []byte) (bool, error) {
	p, ok := r.state.Load().principals[principal]
	if !ok || p.Disabled {
		return false, fmt.Errorf("%w: %s", ErrNotFound, principal)
	}
	return VerifyPassword(password, []byte(p.Password)), nil
}

func (r *FileRealm) Authorize(_ context.Context, authn, authz string) (bool, error) {
	p, ok := r.state.Load().principals[authn]
	if !ok || p.Disabled {
		return false, nil
	}
	return slices.Contains(p.MayActAs, authz) || slices.Contains(p.MayActAs, "*"), nil
}

// Watch reloads the realm whenever the file is written, created or
// renamed into place, until ctx ends. onReload, when not nil, is called
// after every reload attempt with its outcome.
//
// The parent directory is watched rather than the file so editors and
// config management tools that replace the file atomically are seen.
func (r *FileRealm) Watch(ctx context.Context, onReload func(error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create realm watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(r.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch realm file: %w", err)
	}

	target := filepath.Clean(r.path)
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				err := r.Reload()
				if err != nil {
					logger.Warn("realm reload failed, keeping previous principals", logger.KeyPath, r.path, logger.Err(err))
				} else {
					logger.Info("realm reloaded", logger.KeyPath, r.path, logger.KeyCount, r.Len())
				}
				if onReload != nil {
					onReload(err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("realm watcher error", logger.KeyPath, r.path, logger.Err(err))
			}
		}
	}()
	return nil
}

// WriteFileRealm saves contents to path with owner-only permissions,
// replacing any existing file.
func WriteFileRealm(path string, contents FileContents) error {
	data, err := yaml.Marshal(contents)
	if err != nil {
		return fmt.Errorf("encode realm file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create realm directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".realm-*")
	if err != nil {
		return fmt.Errorf("create realm file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write realm file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write realm file: %w", err)
	}
	// Replace atomically so a watching FileRealm never reads a partial file.
	return os.Rename(tmp.Name(), path)
}
