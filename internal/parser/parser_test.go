package parser

import (
	"strings"
	"testing"
)

func TestParseFileVariablesAndRequest(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"@host = api.example.com",
		"@token: secret",
		"",
		"GET https://{{host}}/items",
		"Accept: application/json",
	}, "\n")

	doc := Parse("items.http", []byte(input))
	if len(doc.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", doc.Errors)
	}
	if doc.Variables["host"] != "api.example.com" || doc.Variables["token"] != "secret" {
		t.Fatalf("unexpected variables %v", doc.Variables)
	}
	if len(doc.Requests) != 1 {
		t.Fatalf("expected one request, got %d", len(doc.Requests))
	}

	req := doc.Requests[0]
	if req.Method != "GET" || req.URL != "https://{{host}}/items" {
		t.Fatalf("unexpected request line %s %s", req.Method, req.URL)
	}
	if value, ok := req.HeaderValue("Accept"); !ok || value != "application/json" {
		t.Fatalf("unexpected Accept header %q", value)
	}
}

func TestParseSeparatorsAndDirectives(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"### Login",
		"# @name login",
		"# @description Signs the user in",
		"POST https://example.com/login",
		"Content-Type: application/json",
		"",
		`{"user": "{{user}}"}`,
		"",
		"### ",
		"// @auth bearer {{token}}",
		"GET https://example.com/me",
	}, "\n")

	doc := Parse("auth.http", []byte(input))
	if len(doc.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", doc.Errors)
	}
	if len(doc.Requests) != 2 {
		t.Fatalf("expected two requests, got %d", len(doc.Requests))
	}

	login := doc.Requests[0]
	if login.Name != "login" {
		t.Fatalf("expected @name to win, got %q", login.Name)
	}
	if login.Description != "Signs the user in" {
		t.Fatalf("unexpected description %q", login.Description)
	}
	if login.Body != `{"user": "{{user}}"}` {
		t.Fatalf("unexpected body %q", login.Body)
	}

	me := doc.Requests[1]
	if me.Auth == nil || me.Auth.Type != "bearer" || me.Auth.Params["token"] != "{{token}}" {
		t.Fatalf("unexpected auth %+v", me.Auth)
	}
}

func TestParseBannerNameFallback(t *testing.T) {
	t.Parallel()

	input := "### Fetch Profile\nGET https://example.com/profile\n"
	doc := Parse("p.http", []byte(input))
	if len(doc.Requests) != 1 {
		t.Fatalf("expected one request, got %d", len(doc.Requests))
	}
	if doc.Requests[0].Name != "Fetch Profile" {
		t.Fatalf("expected banner text as name, got %q", doc.Requests[0].Name)
	}
}

func TestParseDuplicateHeadersKeepOrder(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"GET https://example.com/",
		"Set-Cookie: a=1",
		"Accept: text/plain",
		"Set-Cookie: b=2",
	}, "\n")

	doc := Parse("cookies.http", []byte(input))
	req := doc.Requests[0]
	if len(req.Headers) != 3 {
		t.Fatalf("expected three header entries, got %d", len(req.Headers))
	}
	if req.Headers[0].Value != "a=1" || req.Headers[2].Value != "b=2" {
		t.Fatalf("duplicate headers out of order: %+v", req.Headers)
	}
}

func TestParseBodyKeepsInternalBlankLines(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"POST https://example.com/upload",
		"Content-Type: text/plain",
		"",
		"first",
		"",
		"# not a comment in body",
		"last",
		"",
		"",
	}, "\n")

	doc := Parse("upload.http", []byte(input))
	want := "first\n\n# not a comment in body\nlast"
	if doc.Requests[0].Body != want {
		t.Fatalf("unexpected body %q", doc.Requests[0].Body)
	}
}

func TestParseMalformedBlockSkippedNotFatal(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"### broken",
		"not-a-request-line",
		"Header: value",
		"",
		"### good",
		"GET https://example.com/ok",
	}, "\n")

	doc := Parse("mixed.http", []byte(input))
	if len(doc.Requests) != 1 {
		t.Fatalf("expected only the valid request, got %d", len(doc.Requests))
	}
	if doc.Requests[0].URL != "https://example.com/ok" {
		t.Fatalf("unexpected surviving request %q", doc.Requests[0].URL)
	}
	if len(doc.Errors) == 0 {
		t.Fatalf("expected a recorded parse error")
	}
}

func TestParseCustomMethodInsideBlock(t *testing.T) {
	t.Parallel()

	input := "### custom\nPURGE https://cache.example.com/key\n"
	doc := Parse("purge.http", []byte(input))
	if len(doc.Requests) != 1 {
		t.Fatalf("expected one request, got %d", len(doc.Requests))
	}
	if doc.Requests[0].Method != "PURGE" {
		t.Fatalf("expected method preserved, got %q", doc.Requests[0].Method)
	}
}

func TestParseStrayProseOutsideBlocksIgnored(t *testing.T) {
	t.Parallel()

	input := "some stray words\n\nGET https://example.com/\n"
	doc := Parse("stray.http", []byte(input))
	if len(doc.Requests) != 1 {
		t.Fatalf("expected one request, got %d", len(doc.Requests))
	}
	if len(doc.Errors) != 0 {
		t.Fatalf("stray prose outside a block must not error: %v", doc.Errors)
	}
}

func TestParseRequestLineVersionSuffixDropped(t *testing.T) {
	t.Parallel()

	doc := Parse("v.http", []byte("GET https://example.com/a HTTP/1.1\n"))
	if doc.Requests[0].URL != "https://example.com/a" {
		t.Fatalf("expected HTTP version stripped, got %q", doc.Requests[0].URL)
	}
}

func TestParseLowercaseKnownMethodNormalized(t *testing.T) {
	t.Parallel()

	doc := Parse("l.http", []byte("post https://example.com/x\n"))
	if len(doc.Requests) != 1 || doc.Requests[0].Method != "POST" {
		t.Fatalf("expected lowercase verb accepted and normalized, got %+v", doc.Requests)
	}
}
