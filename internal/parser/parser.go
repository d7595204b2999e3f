package parser

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/unkn0wn-root/restbridge/internal/restfile"
)

var (
	variableLineRe = regexp.MustCompile(`^@([A-Za-z0-9_.-]+)\s*[:=]\s*(.*)$`)
	methodTokenRe  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)
)

var knownMethods = map[string]struct{}{
	"GET": {}, "POST": {}, "PUT": {}, "PATCH": {}, "DELETE": {},
	"HEAD": {}, "OPTIONS": {}, "TRACE": {}, "CONNECT": {},
}

// Parse reads a .http/.rest document. Malformed request blocks are recorded
// on the document and skipped; they never abort the rest of the file.
func Parse(path string, data []byte) *restfile.Document {
	scanner := bufio.NewScanner(bytes.NewReader(normalizeNewlines(data)))
	scanner.Buffer(make([]byte, 0, 1024), 1024*1024)

	doc := &restfile.Document{
		Path:      path,
		Raw:       data,
		Variables: make(restfile.FileVariables),
	}
	builder := newDocumentBuilder(doc)

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		builder.processLine(lineNumber, scanner.Text())
	}
	builder.flushRequest(lineNumber)

	return doc
}

func normalizeNewlines(data []byte) []byte {
	return bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
}

type documentBuilder struct {
	doc     *restfile.Document
	request *requestBuilder
}

type requestBuilder struct {
	startLine   int
	name        string
	description string
	method      string
	url         string
	headers     []restfile.Header
	headersDone bool
	bodyLines   []string
	auth        *restfile.AuthSpec
	invalid     bool
}

func newDocumentBuilder(doc *restfile.Document) *documentBuilder {
	return &documentBuilder{doc: doc}
}

func (b *documentBuilder) addError(line int, message string) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return
	}
	b.doc.Errors = append(b.doc.Errors, restfile.ParseError{Line: line, Message: msg})
}

func (b *documentBuilder) processLine(lineNumber int, line string) {
	trimmed := strings.TrimSpace(line)

	if strings.HasPrefix(trimmed, "###") {
		b.flushRequest(lineNumber - 1)
		b.request = &requestBuilder{startLine: lineNumber}
		if name := strings.TrimSpace(strings.TrimLeft(trimmed, "#")); name != "" {
			b.request.name = name
		}
		return
	}

	if b.request != nil && b.request.invalid {
		return
	}

	// after the blank header separator everything is body, verbatim -
	// comment markers and blank lines included
	if b.request != nil && b.request.method != "" && b.request.headersDone {
		b.request.bodyLines = append(b.request.bodyLines, line)
		return
	}

	if trimmed == "" {
		if b.request != nil && b.request.method != "" {
			b.request.headersDone = true
		}
		return
	}

	if commentText, ok := stripComment(trimmed); ok {
		b.handleComment(lineNumber, commentText)
		return
	}

	if matches := variableLineRe.FindStringSubmatch(trimmed); matches != nil {
		if b.request == nil || b.request.method == "" {
			b.doc.Variables[matches[1]] = strings.TrimSpace(matches[2])
			return
		}
	}

	if b.request != nil && b.request.method != "" {
		b.handleHeaderLine(lineNumber, line)
		return
	}

	// outside a ### block only known verbs open a request, so stray prose
	// never turns into one; inside a block the first content line is the
	// request line and unrecognised methods are preserved as written
	if method, url, ok := parseRequestLine(line, b.request == nil); ok {
		if b.request == nil {
			b.request = &requestBuilder{startLine: lineNumber}
		}
		b.request.method = method
		b.request.url = url
		return
	}

	if b.request != nil {
		b.addError(lineNumber, "expected METHOD URL")
		b.request.invalid = true
	}
}

func stripComment(trimmed string) (string, bool) {
	switch {
	case strings.HasPrefix(trimmed, "//"):
		return strings.TrimSpace(trimmed[2:]), true
	case strings.HasPrefix(trimmed, "#"):
		return strings.TrimSpace(trimmed[1:]), true
	default:
		return "", false
	}
}

func (b *documentBuilder) handleComment(line int, text string) {
	if !strings.HasPrefix(text, "@") {
		return
	}
	key, rest := splitDirective(strings.TrimSpace(text[1:]))
	if key == "" {
		return
	}

	switch strings.ToLower(key) {
	case "name":
		if rest == "" {
			b.addError(line, "@name requires a value")
			return
		}
		b.ensureRequest(line).name = rest
	case "description":
		req := b.ensureRequest(line)
		if req.description != "" {
			req.description += "\n"
		}
		req.description += rest
	case "auth":
		auth, errMsg := parseAuthDirective(rest)
		if errMsg != "" {
			b.addError(line, errMsg)
			return
		}
		b.ensureRequest(line).auth = auth
	}
}

func (b *documentBuilder) ensureRequest(line int) *requestBuilder {
	if b.request == nil {
		b.request = &requestBuilder{startLine: line}
	}
	return b.request
}

func (b *documentBuilder) handleHeaderLine(lineNumber int, line string) {
	idx := strings.Index(line, ":")
	if idx == -1 {
		b.addError(lineNumber, "malformed header line")
		return
	}
	name := strings.TrimSpace(line[:idx])
	if name == "" {
		b.addError(lineNumber, "empty header name")
		return
	}
	// duplicates stay as separate entries in file order
	b.request.headers = append(b.request.headers, restfile.Header{
		Name:  name,
		Value: strings.TrimSpace(line[idx+1:]),
	})
}

func (b *documentBuilder) flushRequest(endLine int) {
	req := b.request
	b.request = nil
	if req == nil {
		return
	}
	if req.method == "" {
		if req.invalid || len(req.headers) > 0 || len(req.bodyLines) > 0 {
			b.addError(req.startLine, "request block has no METHOD URL line")
		}
		return
	}
	b.doc.Requests = append(b.doc.Requests, &restfile.Request{
		Name:        req.name,
		Description: req.description,
		Method:      req.method,
		URL:         req.url,
		Headers:     req.headers,
		Body:        req.bodyText(),
		Auth:        req.auth,
		LineRange:   restfile.LineRange{Start: req.startLine, End: endLine},
	})
}

// bodyText keeps internal blank lines but drops trailing ones, which only
// separate the block from the next banner.
func (r *requestBuilder) bodyText() string {
	lines := r.bodyLines
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n")
}

func parseRequestLine(line string, knownOnly bool) (method, url string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", "", false
	}
	token := fields[0]
	if !methodTokenRe.MatchString(token) {
		return "", "", false
	}

	method = token
	_, known := knownMethods[strings.ToUpper(token)]
	if known {
		method = strings.ToUpper(token)
	} else if knownOnly {
		return "", "", false
	}

	rest := fields[1:]
	if len(rest) > 1 && strings.HasPrefix(strings.ToUpper(rest[len(rest)-1]), "HTTP/") {
		rest = rest[:len(rest)-1]
	}
	return method, strings.Join(rest, " "), true
}

func splitDirective(directive string) (string, string) {
	fields := strings.Fields(directive)
	if len(fields) == 0 {
		return "", ""
	}
	key := fields[0]
	rest := strings.TrimSpace(strings.TrimPrefix(directive, key))
	return key, rest
}

func parseAuthDirective(rest string) (*restfile.AuthSpec, string) {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return nil, "@auth requires a type"
	}
	kind := strings.ToLower(fields[0])
	args := fields[1:]

	switch kind {
	case "bearer":
		if len(args) != 1 {
			return nil, "@auth bearer expects a token"
		}
		return &restfile.AuthSpec{Type: "bearer", Params: map[string]string{
			"token": args[0],
		}}, ""
	case "basic":
		if len(args) != 2 {
			return nil, "@auth basic expects username and password"
		}
		return &restfile.AuthSpec{Type: "basic", Params: map[string]string{
			"username": args[0],
			"password": args[1],
		}}, ""
	case "apikey", "api-key":
		if len(args) != 3 {
			return nil, "@auth apikey expects placement, name and value"
		}
		placement := strings.ToLower(args[0])
		if placement != "header" && placement != "query" {
			return nil, "@auth apikey placement must be header or query"
		}
		return &restfile.AuthSpec{Type: "apikey", Params: map[string]string{
			"placement": placement,
			"name":      args[1],
			"value":     args[2],
		}}, ""
	default:
		return nil, "unsupported @auth type " + kind
	}
}
