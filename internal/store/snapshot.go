package store

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/restbridge/internal/errdef"
	"github.com/unkn0wn-root/restbridge/internal/restfile"
)

type snapshotVariable struct {
	Name    string `yaml:"name"`
	Value   string `yaml:"value"`
	Enabled bool   `yaml:"enabled"`
	Secret  bool   `yaml:"secret,omitempty"`
}

type environmentSnapshot struct {
	Name      string             `yaml:"name"`
	Variables []snapshotVariable `yaml:"variables"`
}

// ExportEnvironmentYAML writes an environment as a YAML snapshot that can be
// shared or checked in. Secret values are written in the clear on purpose:
// the caller decides whether an export should include them.
func ExportEnvironmentYAML(e *restfile.Environment, path string) error {
	if e == nil {
		return errdef.New(errdef.CodeValidation, "environment is nil")
	}
	snapshot := environmentSnapshot{Name: e.Name}
	for _, v := range e.Variables {
		snapshot.Variables = append(snapshot.Variables, snapshotVariable(v))
	}

	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "encode environment snapshot")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "create snapshot dir")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "write snapshot %s", path)
	}
	return nil
}

// ImportEnvironmentYAML reads a snapshot back into a fresh environment
// (no id; saving assigns one).
func ImportEnvironmentYAML(path string) (*restfile.Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read snapshot %s", path)
	}
	var snapshot environmentSnapshot
	if err := yaml.Unmarshal(data, &snapshot); err != nil {
		return nil, errdef.Wrap(errdef.CodeParse, err, "parse snapshot %s", path)
	}
	if strings.TrimSpace(snapshot.Name) == "" {
		snapshot.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	env := &restfile.Environment{Name: snapshot.Name}
	for _, v := range snapshot.Variables {
		env.Variables = append(env.Variables, restfile.EnvVariable(v))
	}
	return env, nil
}
