package restwriter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/unkn0wn-root/restbridge/internal/restfile"
	"github.com/unkn0wn-root/restbridge/internal/vars"
)

type Options struct {
	OverwriteExisting bool
	HeaderComment     string

	// RewriteForExport turns plain {{name}} placeholders into
	// {{$dotenv name}} so the file works without this tool's
	// environment concept.
	RewriteForExport bool
}

func WriteDocument(ctx context.Context, doc *restfile.Document, dst string, opts Options) error {
	if doc == nil {
		return errors.New("writer: document is nil")
	}
	if strings.TrimSpace(dst) == "" {
		return errors.New("writer: destination path is empty")
	}

	content := Render(doc, opts)
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeFile(dst, content, opts.OverwriteExisting)
}

// WriteRendered writes pre-rendered content with the same atomic
// temp-then-rename discipline as WriteDocument.
func WriteRendered(dst, content string, overwrite bool) error {
	if strings.TrimSpace(dst) == "" {
		return errors.New("writer: destination path is empty")
	}
	return writeFile(dst, content, overwrite)
}

func writeFile(dst, content string, overwrite bool) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("writer: create directory: %w", err)
	}

	if !overwrite {
		if _, err := os.Stat(dst); err == nil {
			return fmt.Errorf("writer: destination %s already exists", dst)
		}
	}

	tmp, err := os.CreateTemp(dir, "restbridge-*.http")
	if err != nil {
		return fmt.Errorf("writer: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := io.WriteString(tmp, content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writer: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writer: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("writer: rename temp file: %w", err)
	}
	return nil
}

func Render(doc *restfile.Document, opts Options) string {
	var b strings.Builder

	renderHeader(&b, opts.HeaderComment)
	renderFileVariables(&b, doc.Variables, opts)

	if len(doc.Variables) > 0 {
		b.WriteString("\n")
	}

	idx := 0
	for _, req := range doc.Requests {
		if req == nil {
			continue
		}
		if idx > 0 {
			b.WriteString("\n")
		}
		renderRequest(&b, req, opts)
		idx++
	}

	return b.String()
}

func renderHeader(b *strings.Builder, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		b.WriteString("# ")
		b.WriteString(strings.TrimSpace(line))
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func renderFileVariables(b *strings.Builder, variables restfile.FileVariables, opts Options) {
	for _, name := range sortedKeys(variables) {
		fmt.Fprintf(b, "@%s = %s\n", name, exportText(variables[name], opts))
	}
}

func renderRequest(b *strings.Builder, req *restfile.Request, opts Options) {
	b.WriteString("### ")
	b.WriteString(req.Title())
	b.WriteString("\n")

	if req.Name != "" {
		b.WriteString("# @name ")
		b.WriteString(req.Name)
		b.WriteString("\n")
	}
	renderDescription(b, req.Description)
	renderAuth(b, req.Auth, opts)

	m := strings.TrimSpace(req.Method)
	if m == "" {
		m = "GET"
	}
	fmt.Fprintf(b, "%s %s\n", m, exportText(strings.TrimSpace(req.URL), opts))

	// headers keep their stored order; duplicates are written as-is
	for _, h := range req.Headers {
		b.WriteString(exportText(h.Name, opts))
		b.WriteString(": ")
		b.WriteString(exportText(h.Value, opts))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if strings.TrimSpace(req.Body) != "" {
		body := exportText(req.Body, opts)
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
	}
}

func renderDescription(b *strings.Builder, desc string) {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return
	}
	for _, line := range strings.Split(desc, "\n") {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		b.WriteString("# @description ")
		b.WriteString(t)
		b.WriteString("\n")
	}
}

func renderAuth(b *strings.Builder, auth *restfile.AuthSpec, opts Options) {
	if auth == nil || auth.Type == "" {
		return
	}
	switch strings.ToLower(auth.Type) {
	case "basic":
		b.WriteString("# @auth basic ")
		b.WriteString(exportText(strings.TrimSpace(auth.Params["username"]), opts))
		b.WriteString(" ")
		b.WriteString(exportText(strings.TrimSpace(auth.Params["password"]), opts))
	case "bearer":
		b.WriteString("# @auth bearer ")
		b.WriteString(exportText(strings.TrimSpace(auth.Params["token"]), opts))
	case "apikey", "api-key":
		place := strings.TrimSpace(auth.Params["placement"])
		if place == "" {
			place = "header"
		}
		name := strings.TrimSpace(auth.Params["name"])
		if name == "" {
			name = "X-API-Key"
		}
		b.WriteString("# @auth apikey ")
		b.WriteString(place)
		b.WriteString(" ")
		b.WriteString(exportText(name, opts))
		b.WriteString(" ")
		b.WriteString(exportText(strings.TrimSpace(auth.Params["value"]), opts))
	default:
		return
	}
	b.WriteString("\n")
}

func exportText(text string, opts Options) string {
	if !opts.RewriteForExport {
		return text
	}
	return TransformVariablesForExport(text)
}

// TransformVariablesForExport rewrites plain {{name}} references into
// {{$dotenv name}}. Dynamic names and chain references pass through
// untouched, using the same classification as the extractor.
func TransformVariablesForExport(text string) string {
	return vars.ReplacePlaceholders(text, func(name string) (string, bool) {
		if name == "" || vars.IsDynamicName(name) || vars.IsChainName(name) {
			return "", false
		}
		return "{{$dotenv " + name + "}}", true
	})
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
