package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/unkn0wn-root/restbridge/internal/errdef"
	"github.com/unkn0wn-root/restbridge/internal/restfile"
)

func TestFileStoreCollectionsPersistAcrossInstances(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := NewFileStore(dir, nil)

	collection := &restfile.Collection{
		Name: "Orders",
		Requests: []*restfile.Request{
			{Method: "GET", URL: "https://{{HOST}}/orders"},
		},
	}
	if err := first.SaveCollection(collection); err != nil {
		t.Fatalf("save: %v", err)
	}
	if collection.ID == "" {
		t.Fatalf("expected an assigned id")
	}

	second := NewFileStore(dir, nil)
	loaded, ok, err := second.CollectionByName("orders")
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if loaded.ID != collection.ID || len(loaded.Requests) != 1 {
		t.Fatalf("unexpected collection %+v", loaded)
	}
}

func TestFileStoreSaveCollectionReplacesById(t *testing.T) {
	t.Parallel()

	store := NewFileStore(t.TempDir(), nil)
	c := &restfile.Collection{Name: "Orders"}
	if err := store.SaveCollection(c); err != nil {
		t.Fatalf("save: %v", err)
	}

	c.Requests = []*restfile.Request{{Method: "GET", URL: "https://x/"}}
	if err := store.SaveCollection(c); err != nil {
		t.Fatalf("resave: %v", err)
	}

	all, err := store.Collections()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 || len(all[0].Requests) != 1 {
		t.Fatalf("expected in-place replacement, got %d collections", len(all))
	}
}

func TestFileStoreRejectsBlankNames(t *testing.T) {
	t.Parallel()

	store := NewFileStore(t.TempDir(), nil)
	if err := store.SaveCollection(&restfile.Collection{Name: "  "}); !errdef.IsCode(err, errdef.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := store.SaveEnvironment(&restfile.Environment{}); !errdef.IsCode(err, errdef.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFileStoreActiveEnvironment(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewFileStore(dir, nil)

	env := &restfile.Environment{Name: "dev"}
	if err := store.SaveEnvironment(env); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := store.SetActiveEnvironmentID("does-not-exist"); !errdef.IsCode(err, errdef.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := store.SetActiveEnvironmentID(env.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	reopened := NewFileStore(dir, nil)
	active, err := reopened.ActiveEnvironment()
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active == nil || active.ID != env.ID {
		t.Fatalf("active environment not persisted: %+v", active)
	}

	if err := reopened.DeleteEnvironment(env.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	active, err = reopened.ActiveEnvironment()
	if err != nil {
		t.Fatalf("active after delete: %v", err)
	}
	if active != nil {
		t.Fatalf("deleting the active environment must deactivate it, got %+v", active)
	}
}

func TestFileStoreSecretsNeverTouchDiskInClear(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewFileStore(dir, NewVault(dir))

	env := &restfile.Environment{
		Name: "prod",
		Variables: []restfile.EnvVariable{
			{Name: "HOST", Value: "api.example.com", Enabled: true},
			{Name: "API_KEY", Value: "super-secret", Enabled: true, Secret: true},
		},
	}
	if err := store.SaveEnvironment(env); err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "environments.json"))
	if err != nil {
		t.Fatalf("read environments.json: %v", err)
	}
	if strings.Contains(string(raw), "super-secret") {
		t.Fatalf("secret value leaked into environments.json")
	}

	var persisted []restfile.Environment
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("parse environments.json: %v", err)
	}
	if persisted[0].Variables[1].Value != "" {
		t.Fatalf("secret value must be blanked on disk, got %q", persisted[0].Variables[1].Value)
	}

	reopened := NewFileStore(dir, NewVault(dir))
	envs, err := reopened.Environments()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if value, ok := envs[0].Lookup("API_KEY"); !ok || value != "super-secret" {
		t.Fatalf("secret not hydrated from vault: %q %v", value, ok)
	}

	if err := reopened.DeleteEnvironment(env.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	vault := NewVault(dir)
	if _, ok, err := vault.Get(env.ID + "/API_KEY"); err != nil || ok {
		t.Fatalf("vault entry must be removed with the environment: ok=%v err=%v", ok, err)
	}
}

func TestVaultRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	vault := NewVault(dir)
	if err := vault.Set("env-1/TOKEN", "hunter2"); err != nil {
		t.Fatalf("set: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "vault.json"))
	if err != nil {
		t.Fatalf("read vault.json: %v", err)
	}
	if strings.Contains(string(raw), "hunter2") {
		t.Fatalf("vault stores values in the clear")
	}

	fresh := NewVault(dir)
	value, ok, err := fresh.Get("env-1/TOKEN")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if value != "hunter2" {
		t.Fatalf("unexpected value %q", value)
	}

	if err := fresh.DeletePrefix("env-1/"); err != nil {
		t.Fatalf("delete prefix: %v", err)
	}
	if _, ok, _ := fresh.Get("env-1/TOKEN"); ok {
		t.Fatalf("expected entry gone after DeletePrefix")
	}
}

func TestEnvironmentSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	env := &restfile.Environment{
		ID:   "env-9",
		Name: "staging",
		Variables: []restfile.EnvVariable{
			{Name: "HOST", Value: "stage.example.com", Enabled: true},
			{Name: "FLAG", Value: "off", Enabled: false},
		},
	}

	path := filepath.Join(t.TempDir(), "staging.yaml")
	if err := ExportEnvironmentYAML(env, path); err != nil {
		t.Fatalf("export: %v", err)
	}

	loaded, err := ImportEnvironmentYAML(path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if loaded.ID != "" {
		t.Fatalf("imported snapshot must not carry an id, got %q", loaded.ID)
	}
	if loaded.Name != "staging" || len(loaded.Variables) != 2 {
		t.Fatalf("unexpected snapshot %+v", loaded)
	}
	if loaded.Variables[1].Enabled {
		t.Fatalf("enabled flag lost in round trip")
	}
}
