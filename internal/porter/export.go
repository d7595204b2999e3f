package porter

import (
	"context"
	"strings"

	"github.com/unkn0wn-root/restbridge/internal/errdef"
	"github.com/unkn0wn-root/restbridge/internal/restfile"
	"github.com/unkn0wn-root/restbridge/internal/restwriter"
)

type ExportOptions struct {
	// RewriteDotenv applies the {{name}} -> {{$dotenv name}} transform so
	// the exported file works without this tool's environments.
	RewriteDotenv     bool
	OverwriteExisting bool
	HeaderComment     string
}

const collectionBanner = "##############################################"

// ExportCollections serializes the named collections into one .http file.
// Multi-collection output is joined by comment banners so the sections stay
// readable; the banners parse back as unnamed separators.
func (s *Service) ExportCollections(
	ctx context.Context,
	names []string,
	dst string,
	opts ExportOptions,
) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(names) == 0 {
		return errdef.New(errdef.CodeValidation, "no collections selected")
	}
	if strings.TrimSpace(dst) == "" {
		return errdef.New(errdef.CodeValidation, "destination path is empty")
	}
	if s.Store == nil {
		return errdef.New(errdef.CodeStorage, "porter: storage not configured")
	}

	collections := make([]*restfile.Collection, 0, len(names))
	for _, name := range names {
		collection, ok, err := s.Store.CollectionByName(strings.TrimSpace(name))
		if err != nil {
			return errdef.Wrap(errdef.CodeStorage, err, "load collection %s", name)
		}
		if !ok {
			return errdef.New(errdef.CodeValidation, "collection %q not found", name)
		}
		collections = append(collections, collection)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	content := RenderCollections(collections, opts)
	return restwriter.WriteRendered(dst, content, opts.OverwriteExisting)
}

func RenderCollections(collections []*restfile.Collection, opts ExportOptions) string {
	renderOpts := restwriter.Options{
		RewriteForExport: opts.RewriteDotenv,
	}

	var b strings.Builder
	for i, collection := range collections {
		if i > 0 {
			b.WriteString("\n")
		}
		if len(collections) > 1 {
			b.WriteString(collectionBanner)
			b.WriteString("\n# Collection: ")
			b.WriteString(collection.Name)
			b.WriteString("\n")
			b.WriteString(collectionBanner)
			b.WriteString("\n\n")
		}

		doc := &restfile.Document{
			Variables: collection.Variables,
			Requests:  collection.Requests,
		}
		sectionOpts := renderOpts
		if i == 0 {
			sectionOpts.HeaderComment = opts.HeaderComment
		}
		b.WriteString(restwriter.Render(doc, sectionOpts))
	}
	return b.String()
}
