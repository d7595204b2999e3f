package porter

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/unkn0wn-root/restbridge/internal/errdef"
	"github.com/unkn0wn-root/restbridge/internal/parser"
	"github.com/unkn0wn-root/restbridge/internal/restfile"
	"github.com/unkn0wn-root/restbridge/internal/store"
	"github.com/unkn0wn-root/restbridge/internal/vars"
)

type FileSystem interface {
	ReadFile(path string) ([]byte, error)
}

type OSFileSystem struct{}

func (OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

type Service struct {
	Store store.Storage
	FS    FileSystem
}

func (s *Service) fs() FileSystem {
	if s.FS == nil {
		return OSFileSystem{}
	}
	return s.FS
}

// ImportSummary reports what an import created and which variables the user
// still has to fill in.
type ImportSummary struct {
	Collection  *restfile.Collection
	Environment *restfile.Environment

	// Three-way partition of every variable name the imported requests use.
	FileDefined    []string // declared in the file, carried into the environment
	AlreadyDefined []string // present in some existing environment, not duplicated
	Missing        []string // defined nowhere; created as empty placeholders

	ParseErrors []restfile.ParseError
}

// ImportFile reads a .http/.rest file and creates a collection from it,
// plus an environment named after the collection when the file declares or
// misses variables. Validation happens before any mutation, and a failed
// environment save rolls the collection back so no partial state survives.
func (s *Service) ImportFile(
	ctx context.Context,
	path, collectionName string,
) (*ImportSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	collectionName = strings.TrimSpace(collectionName)
	if collectionName == "" {
		return nil, errdef.New(errdef.CodeValidation, "collection name is empty")
	}
	if s.Store == nil {
		return nil, errdef.New(errdef.CodeStorage, "porter: storage not configured")
	}

	data, err := s.fs().ReadFile(path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read %s", path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := parser.Parse(path, data)
	if len(doc.Requests) == 0 {
		return nil, errdef.New(errdef.CodeValidation, "no requests found in %s", path)
	}

	summary := &ImportSummary{
		Collection: &restfile.Collection{
			Name:     collectionName,
			Requests: doc.Requests,
		},
		ParseErrors: doc.Errors,
	}
	if err := s.analyzeVariables(doc, summary); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.Store.SaveCollection(summary.Collection); err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "save collection %s", collectionName)
	}
	if summary.Environment != nil {
		if err := s.Store.SaveEnvironment(summary.Environment); err != nil {
			// roll back so a failed import leaves nothing half-saved
			_ = s.Store.DeleteCollection(summary.Collection.ID)
			return nil, errdef.Wrap(errdef.CodeStorage, err, "save environment %s", collectionName)
		}
	}
	return summary, nil
}

// analyzeVariables partitions the union of used variable names into
// file-declared, already-defined-elsewhere and missing, then builds the
// conditional environment from the first and last groups.
func (s *Service) analyzeVariables(doc *restfile.Document, summary *ImportSummary) error {
	used := make(map[string]struct{})
	for _, req := range doc.Requests {
		for _, name := range vars.ExtractRequestNames(req) {
			used[name] = struct{}{}
		}
	}
	if len(used) == 0 {
		return nil
	}

	existing, err := s.existingEnvironmentNames()
	if err != nil {
		return err
	}

	names := make([]string, 0, len(used))
	for name := range used {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		switch {
		case hasKey(doc.Variables, name):
			summary.FileDefined = append(summary.FileDefined, name)
		case existing[strings.ToLower(name)]:
			summary.AlreadyDefined = append(summary.AlreadyDefined, name)
		default:
			summary.Missing = append(summary.Missing, name)
		}
	}

	if len(summary.FileDefined) == 0 && len(summary.Missing) == 0 {
		return nil
	}

	env := &restfile.Environment{Name: summary.Collection.Name}
	for _, name := range summary.FileDefined {
		env.Variables = append(env.Variables, restfile.EnvVariable{
			Name:    name,
			Value:   doc.Variables[name],
			Enabled: true,
		})
	}
	for _, name := range summary.Missing {
		env.Variables = append(env.Variables, restfile.EnvVariable{
			Name:    name,
			Enabled: true,
		})
	}
	summary.Environment = env
	return nil
}

func (s *Service) existingEnvironmentNames() (map[string]bool, error) {
	envs, err := s.Store.Environments()
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "list environments")
	}
	defined := make(map[string]bool)
	for _, env := range envs {
		for _, v := range env.Variables {
			defined[strings.ToLower(v.Name)] = true
		}
	}
	return defined, nil
}

func hasKey(variables restfile.FileVariables, name string) bool {
	_, ok := variables[name]
	return ok
}
