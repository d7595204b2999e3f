package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/unkn0wn-root/restbridge/internal/chain"
	"github.com/unkn0wn-root/restbridge/internal/config"
	"github.com/unkn0wn-root/restbridge/internal/history"
	"github.com/unkn0wn-root/restbridge/internal/httpclient"
	"github.com/unkn0wn-root/restbridge/internal/porter"
	"github.com/unkn0wn-root/restbridge/internal/restfile"
	"github.com/unkn0wn-root/restbridge/internal/store"
	"github.com/unkn0wn-root/restbridge/internal/vars"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var (
		importPath  string
		importName  string
		exportNames string
		outPath     string
		rewrite     bool
		overwrite   bool
		comment     string
		sendTarget  string
		envName     string
		envFile     string
		timeout     time.Duration
		insecure    bool
		follow      bool
		proxyURL    string
		listAll     bool
		activateEnv string
		historyN    int
		historyFor  string
		envOut      string
		envIn       string
		showVersion bool
	)

	flag.StringVar(&importPath, "import", "", "Path to .http/.rest file to import as a collection")
	flag.StringVar(&importName, "name", "", "Collection name for -import (defaults to the file name)")
	flag.StringVar(
		&exportNames,
		"export",
		"",
		"Comma separated collection names to export into one .http file",
	)
	flag.StringVar(&outPath, "out", "", "Destination path for -export and -export-env")
	flag.BoolVar(
		&rewrite,
		"dotenv",
		false,
		"Rewrite {{name}} placeholders to {{$dotenv name}} on export",
	)
	flag.BoolVar(&overwrite, "overwrite", false, "Overwrite the destination file if it exists")
	flag.StringVar(&comment, "comment", "", "Header comment for exported files")
	flag.StringVar(
		&sendTarget,
		"send",
		"",
		"Request to send, as COLLECTION/REQUEST; COLLECTION alone runs every request in order",
	)
	flag.StringVar(&envName, "env", "", "Environment name to resolve against")
	flag.StringVar(&envFile, "env-file", "", "Path to a dotenv file")
	flag.DurationVar(&timeout, "timeout", 0, "Request timeout (0 uses the configured default)")
	flag.BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification")
	flag.BoolVar(&follow, "follow", true, "Follow redirects")
	flag.StringVar(&proxyURL, "proxy", "", "HTTP proxy URL")
	flag.BoolVar(&listAll, "list", false, "List stored collections and environments")
	flag.StringVar(&activateEnv, "activate", "", "Set the active environment by name")
	flag.IntVar(&historyN, "history", 0, "Show the N most recent sends")
	flag.StringVar(&historyFor, "request", "", "Filter -history by request name or URL")
	flag.StringVar(&envOut, "export-env", "", "Environment name to export as a YAML snapshot")
	flag.StringVar(&envIn, "import-env", "", "Path to a YAML environment snapshot to import")
	flag.BoolVar(&showVersion, "version", false, "Show restbridge version")
	flag.Parse()

	if showVersion {
		fmt.Printf("restbridge %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		os.Exit(0)
	}

	settings, _, err := config.LoadSettings()
	if err != nil {
		log.Printf("settings load error: %v", err)
		settings = config.DefaultSettings()
	}

	storage := store.NewFileStore(config.StoreDir(), store.NewVault(config.StoreDir()))
	svc := &porter.Service{Store: storage}

	ctx := context.Background()

	switch {
	case importPath != "":
		runImport(ctx, svc, importPath, importName)
	case exportNames != "":
		runExport(ctx, svc, exportNames, outPath, porter.ExportOptions{
			RewriteDotenv:     rewrite,
			OverwriteExisting: overwrite,
			HeaderComment:     comment,
		})
	case sendTarget != "":
		opts := httpclient.Options{
			Timeout:            timeout,
			FollowRedirects:    follow,
			InsecureSkipVerify: insecure,
			ProxyURL:           proxyURL,
		}
		if opts.Timeout <= 0 {
			opts.Timeout = time.Duration(settings.TimeoutSeconds) * time.Second
		}
		if envName == "" {
			envName = settings.DefaultEnvironment
		}
		runSend(ctx, storage, settings, sendTarget, envName, envFile, opts)
	case listAll:
		runList(storage)
	case activateEnv != "":
		runActivate(storage, activateEnv)
	case historyN > 0:
		runHistory(settings, historyN, historyFor)
	case envOut != "":
		runExportEnv(storage, envOut, outPath)
	case envIn != "":
		runImportEnv(storage, envIn)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runImport(ctx context.Context, svc *porter.Service, path, name string) {
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	summary, err := svc.ImportFile(ctx, path, name)
	if err != nil {
		log.Fatalf("import: %v", err)
	}

	fmt.Printf("Imported %q: %d requests\n", summary.Collection.Name, len(summary.Collection.Requests))
	for _, perr := range summary.ParseErrors {
		fmt.Printf("  warning: line %d: %s\n", perr.Line, perr.Message)
	}
	if summary.Environment != nil {
		fmt.Printf("Created environment %q with %d variables\n",
			summary.Environment.Name, len(summary.Environment.Variables))
	}
	printNames("  from file:      ", summary.FileDefined)
	printNames("  already defined:", summary.AlreadyDefined)
	printNames("  needs a value:  ", summary.Missing)
}

func printNames(label string, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Printf("%s %s\n", label, strings.Join(names, ", "))
}

func runExport(
	ctx context.Context,
	svc *porter.Service,
	rawNames, dst string,
	opts porter.ExportOptions,
) {
	if dst == "" {
		log.Fatalf("export: -out is required")
	}
	names := splitNames(rawNames)
	if err := svc.ExportCollections(ctx, names, dst, opts); err != nil {
		log.Fatalf("export: %v", err)
	}
	fmt.Printf("Exported %s to %s\n", strings.Join(names, ", "), dst)
}

func runSend(
	ctx context.Context,
	storage store.Storage,
	settings config.Settings,
	target, envName, envFile string,
	opts httpclient.Options,
) {
	collectionName, requestName, _ := strings.Cut(target, "/")
	collection, ok, err := storage.CollectionByName(strings.TrimSpace(collectionName))
	if err != nil {
		log.Fatalf("load collection: %v", err)
	}
	if !ok {
		log.Fatalf("collection %q not found", collectionName)
	}

	env := resolveEnvironment(storage, envName)
	dotenv := loadDotEnv(envFile, settings.DotEnvName)

	requests := collection.Requests
	if requestName = strings.TrimSpace(requestName); requestName != "" {
		req := findRequest(collection, requestName)
		if req == nil {
			log.Fatalf("request %q not found in %q", requestName, collection.Name)
		}
		requests = []*restfile.Request{req}
	}

	historyStore, err := history.Open(config.HistoryPath(), settings.HistoryLimit)
	if err != nil {
		log.Printf("history unavailable: %v", err)
	} else {
		defer func() {
			_ = historyStore.Close()
		}()
	}

	client := httpclient.NewClient()
	responses := chain.NewMemoryStore()
	for _, req := range requests {
		resolver := vars.NewResolver(vars.Context{
			Collection:  collection.Variables,
			Environment: env,
			DotEnv:      dotenv,
			Responses:   responses,
		})

		resp, err := client.Execute(ctx, req, resolver, opts)
		if err != nil {
			log.Fatalf("send %s: %v", req.Title(), err)
		}
		if req.Name != "" {
			responses.Put(req.Name, &chain.Response{
				Status:     resp.Status,
				StatusCode: resp.StatusCode,
				Headers:    resp.Headers,
				Body:       resp.Body,
			})
		}
		if historyStore != nil {
			recordSend(historyStore, env, req, resp)
		}
		printResponse(req, resp, len(requests) > 1)
	}
}

func resolveEnvironment(storage store.Storage, name string) *restfile.Environment {
	if name = strings.TrimSpace(name); name != "" {
		envs, err := storage.Environments()
		if err != nil {
			log.Fatalf("load environments: %v", err)
		}
		for _, env := range envs {
			if strings.EqualFold(env.Name, name) {
				return env
			}
		}
		log.Fatalf("environment %q not found", name)
	}

	env, err := storage.ActiveEnvironment()
	if err != nil {
		log.Fatalf("load active environment: %v", err)
	}
	return env
}

func loadDotEnv(explicit, defaultName string) map[string]string {
	path := explicit
	if path == "" {
		if defaultName == "" {
			return nil
		}
		path = defaultName
	}

	values, err := vars.LoadDotEnv(path)
	if err != nil {
		log.Printf("dotenv load error: %v", err)
		return nil
	}
	return values
}

func findRequest(collection *restfile.Collection, name string) *restfile.Request {
	for _, req := range collection.Requests {
		if strings.EqualFold(req.Name, name) {
			return req
		}
	}
	for _, req := range collection.Requests {
		if strings.EqualFold(req.Title(), name) {
			return req
		}
	}
	return nil
}

func recordSend(
	historyStore *history.Store,
	env *restfile.Environment,
	req *restfile.Request,
	resp *httpclient.Response,
) {
	entry := history.Entry{
		ExecutedAt:  time.Now(),
		RequestName: req.Title(),
		Method:      req.Method,
		URL:         resp.EffectiveURL,
		Status:      resp.Status,
		StatusCode:  resp.StatusCode,
		Duration:    resp.Duration,
		BodySnippet: snippet(resp.Body),
	}
	if env != nil {
		entry.Environment = env.Name
	}
	if err := historyStore.Append(entry); err != nil {
		log.Printf("history append error: %v", err)
	}
}

const snippetLimit = 512

func snippet(body []byte) string {
	if len(body) > snippetLimit {
		body = body[:snippetLimit]
	}
	return string(body)
}

func printResponse(req *restfile.Request, resp *httpclient.Response, banner bool) {
	if banner {
		fmt.Printf("### %s\n", req.Title())
	}
	fmt.Printf("%s (%s)\n", resp.Status, resp.Duration.Round(time.Millisecond))
	for _, name := range resp.Unresolved {
		fmt.Printf("warning: unresolved variable {{%s}}\n", name)
	}
	if len(resp.Body) > 0 {
		fmt.Println(string(resp.Body))
	}
}

func runList(storage store.Storage) {
	collections, err := storage.Collections()
	if err != nil {
		log.Fatalf("list collections: %v", err)
	}
	environments, err := storage.Environments()
	if err != nil {
		log.Fatalf("list environments: %v", err)
	}
	active, err := storage.ActiveEnvironment()
	if err != nil {
		log.Printf("active environment: %v", err)
	}

	fmt.Println("Collections:")
	for _, c := range collections {
		fmt.Printf("  %s (%d requests)\n", c.Name, len(c.Requests))
	}
	if len(collections) == 0 {
		fmt.Println("  (none)")
	}

	fmt.Println("Environments:")
	for _, e := range environments {
		marker := " "
		if active != nil && active.ID == e.ID {
			marker = "*"
		}
		fmt.Printf(" %s %s (%d variables)\n", marker, e.Name, len(e.Variables))
	}
	if len(environments) == 0 {
		fmt.Println("  (none)")
	}
}

func runActivate(storage store.Storage, name string) {
	envs, err := storage.Environments()
	if err != nil {
		log.Fatalf("load environments: %v", err)
	}
	for _, env := range envs {
		if strings.EqualFold(env.Name, name) {
			if err := storage.SetActiveEnvironmentID(env.ID); err != nil {
				log.Fatalf("activate: %v", err)
			}
			fmt.Printf("Active environment: %s\n", env.Name)
			return
		}
	}
	log.Fatalf("environment %q not found", name)
}

func runHistory(settings config.Settings, limit int, requestFilter string) {
	historyStore, err := history.Open(config.HistoryPath(), settings.HistoryLimit)
	if err != nil {
		log.Fatalf("open history: %v", err)
	}
	defer func() {
		_ = historyStore.Close()
	}()

	var entries []history.Entry
	if requestFilter != "" {
		entries, err = historyStore.ByRequest(requestFilter, limit)
	} else {
		entries, err = historyStore.Recent(limit)
	}
	if err != nil {
		log.Fatalf("read history: %v", err)
	}

	for _, entry := range entries {
		fmt.Printf("%s  %-6s %-40s %s (%s)\n",
			entry.ExecutedAt.Format(time.DateTime),
			entry.Method,
			entry.URL,
			entry.Status,
			entry.Duration.Round(time.Millisecond))
	}
	if len(entries) == 0 {
		fmt.Println("(no history)")
	}
}

func runExportEnv(storage store.Storage, name, dst string) {
	if dst == "" {
		log.Fatalf("export-env: -out is required")
	}
	envs, err := storage.Environments()
	if err != nil {
		log.Fatalf("load environments: %v", err)
	}
	for _, env := range envs {
		if strings.EqualFold(env.Name, name) {
			if err := store.ExportEnvironmentYAML(env, dst); err != nil {
				log.Fatalf("export-env: %v", err)
			}
			fmt.Printf("Exported environment %s to %s\n", env.Name, dst)
			return
		}
	}
	log.Fatalf("environment %q not found", name)
}

func runImportEnv(storage store.Storage, path string) {
	env, err := store.ImportEnvironmentYAML(path)
	if err != nil {
		log.Fatalf("import-env: %v", err)
	}
	if err := storage.SaveEnvironment(env); err != nil {
		log.Fatalf("import-env: %v", err)
	}
	fmt.Printf("Imported environment %s (%d variables)\n", env.Name, len(env.Variables))
}

func splitNames(raw string) []string {
	parts := strings.Split(raw, ",")
	names := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		lower := strings.ToLower(name)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		names = append(names, name)
	}
	return names
}
