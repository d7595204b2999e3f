package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/restbridge/internal/errdef"
	"github.com/unkn0wn-root/restbridge/internal/restfile"
)

// Storage is the persistence contract the orchestrator consumes. Values of
// secret environment variables are hydrated transparently before they are
// handed out.
type Storage interface {
	Collections() ([]*restfile.Collection, error)
	CollectionByName(name string) (*restfile.Collection, bool, error)
	SaveCollection(c *restfile.Collection) error
	DeleteCollection(id string) error

	Environments() ([]*restfile.Environment, error)
	SaveEnvironment(e *restfile.Environment) error
	DeleteEnvironment(id string) error

	ActiveEnvironment() (*restfile.Environment, error)
	SetActiveEnvironmentID(id string) error
}

type FileStore struct {
	dir   string
	vault *Vault

	mu           sync.RWMutex
	loaded       bool
	collections  []*restfile.Collection
	environments []*restfile.Environment
	activeEnvID  string
}

type stateFile struct {
	ActiveEnvironmentID string `json:"activeEnvironmentId"`
}

func NewFileStore(dir string, vault *Vault) *FileStore {
	return &FileStore{dir: dir, vault: vault}
}

func (s *FileStore) collectionsPath() string  { return filepath.Join(s.dir, "collections.json") }
func (s *FileStore) environmentsPath() string { return filepath.Join(s.dir, "environments.json") }
func (s *FileStore) statePath() string        { return filepath.Join(s.dir, "state.json") }

func (s *FileStore) Collections() ([]*restfile.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(); err != nil {
		return nil, err
	}
	out := make([]*restfile.Collection, len(s.collections))
	copy(out, s.collections)
	return out, nil
}

func (s *FileStore) CollectionByName(name string) (*restfile.Collection, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(); err != nil {
		return nil, false, err
	}
	for _, c := range s.collections {
		if strings.EqualFold(c.Name, name) || c.ID == name {
			return c, true, nil
		}
	}
	return nil, false, nil
}

func (s *FileStore) SaveCollection(c *restfile.Collection) error {
	if c == nil || strings.TrimSpace(c.Name) == "" {
		return errdef.New(errdef.CodeValidation, "collection name is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	replaced := false
	for i, existing := range s.collections {
		if existing.ID == c.ID {
			s.collections[i] = c
			replaced = true
			break
		}
	}
	if !replaced {
		s.collections = append(s.collections, c)
	}
	return s.persistCollectionsLocked()
}

func (s *FileStore) DeleteCollection(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(); err != nil {
		return err
	}
	for i, c := range s.collections {
		if c.ID == id {
			s.collections = append(s.collections[:i], s.collections[i+1:]...)
			return s.persistCollectionsLocked()
		}
	}
	return nil
}

func (s *FileStore) Environments() ([]*restfile.Environment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(); err != nil {
		return nil, err
	}
	out := make([]*restfile.Environment, len(s.environments))
	copy(out, s.environments)
	return out, nil
}

func (s *FileStore) SaveEnvironment(e *restfile.Environment) error {
	if e == nil || strings.TrimSpace(e.Name) == "" {
		return errdef.New(errdef.CodeValidation, "environment name is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	if err := s.stashSecretsLocked(e); err != nil {
		return err
	}

	replaced := false
	for i, existing := range s.environments {
		if existing.ID == e.ID {
			s.environments[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		s.environments = append(s.environments, e)
	}
	return s.persistEnvironmentsLocked()
}

// DeleteEnvironment removes the environment and every vault value stored
// under it, and clears the active id when it pointed here.
func (s *FileStore) DeleteEnvironment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(); err != nil {
		return err
	}
	for i, e := range s.environments {
		if e.ID != id {
			continue
		}
		s.environments = append(s.environments[:i], s.environments[i+1:]...)
		if s.vault != nil {
			if err := s.vault.DeletePrefix(id + "/"); err != nil {
				return err
			}
		}
		if s.activeEnvID == id {
			s.activeEnvID = ""
			if err := s.persistStateLocked(); err != nil {
				return err
			}
		}
		return s.persistEnvironmentsLocked()
	}
	return nil
}

func (s *FileStore) ActiveEnvironment() (*restfile.Environment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(); err != nil {
		return nil, err
	}
	if s.activeEnvID == "" {
		return nil, nil
	}
	for _, e := range s.environments {
		if e.ID == s.activeEnvID {
			return e, nil
		}
	}
	return nil, nil
}

// At most one environment is active at a time; an empty id deactivates all.
func (s *FileStore) SetActiveEnvironmentID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(); err != nil {
		return err
	}
	if id != "" {
		found := false
		for _, e := range s.environments {
			if e.ID == id {
				found = true
				break
			}
		}
		if !found {
			return errdef.New(errdef.CodeValidation, "unknown environment id %s", id)
		}
	}
	s.activeEnvID = id
	return s.persistStateLocked()
}

// stashSecretsLocked moves secret values into the vault and blanks them in
// the JSON representation; hydrate reverses it on load.
func (s *FileStore) stashSecretsLocked(e *restfile.Environment) error {
	if s.vault == nil {
		return nil
	}
	for i, v := range e.Variables {
		if !v.Secret {
			continue
		}
		if err := s.vault.Set(e.ID+"/"+v.Name, v.Value); err != nil {
			return err
		}
		e.Variables[i].Value = ""
	}
	return nil
}

func (s *FileStore) hydrateSecretsLocked() error {
	if s.vault == nil {
		return nil
	}
	for _, e := range s.environments {
		for i, v := range e.Variables {
			if !v.Secret {
				continue
			}
			value, ok, err := s.vault.Get(e.ID + "/" + v.Name)
			if err != nil {
				return err
			}
			if ok {
				e.Variables[i].Value = value
			}
		}
	}
	return nil
}

func (s *FileStore) ensureLoadedLocked() error {
	if s.loaded {
		return nil
	}
	if err := readJSONFile(s.collectionsPath(), &s.collections); err != nil {
		return err
	}
	if err := readJSONFile(s.environmentsPath(), &s.environments); err != nil {
		return err
	}
	var state stateFile
	if err := readJSONFile(s.statePath(), &state); err != nil {
		return err
	}
	s.activeEnvID = state.ActiveEnvironmentID
	if err := s.hydrateSecretsLocked(); err != nil {
		return err
	}

	sort.SliceStable(s.collections, func(i, j int) bool {
		return s.collections[i].Name < s.collections[j].Name
	})
	s.loaded = true
	return nil
}

func (s *FileStore) persistCollectionsLocked() error {
	return writeJSONFile(s.collectionsPath(), s.collections)
}

func (s *FileStore) persistEnvironmentsLocked() error {
	return writeJSONFile(s.environmentsPath(), s.environments)
}

func (s *FileStore) persistStateLocked() error {
	return writeJSONFile(s.statePath(), stateFile{ActiveEnvironmentID: s.activeEnvID})
}

func readJSONFile(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errdef.Wrap(errdef.CodeStorage, err, "read %s", filepath.Base(path))
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "parse %s", filepath.Base(path))
	}
	return nil
}

func writeJSONFile(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "create store dir")
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "encode %s", filepath.Base(path))
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "write %s", filepath.Base(tmp))
	}
	if err := os.Rename(tmp, path); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "replace %s", filepath.Base(path))
	}
	return nil
}
