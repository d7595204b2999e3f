package vars

import (
	"net/http"
	"strings"
	"testing"

	"github.com/unkn0wn-root/restbridge/internal/chain"
	"github.com/unkn0wn-root/restbridge/internal/restfile"
)

func TestExpandStatic(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(Context{
		Collection: map[string]string{
			"svc.http": "http://localhost:8080",
			"token":    "abc123",
		},
	})

	expanded, unresolved := resolver.Expand("{{svc.http}}/api?token={{token}}")
	if len(unresolved) != 0 {
		t.Fatalf("unexpected unresolved names: %v", unresolved)
	}
	if expanded != "http://localhost:8080/api?token=abc123" {
		t.Fatalf("unexpected expansion %q", expanded)
	}
}

func TestExpandPrecedence(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(Context{
		Collection: map[string]string{"X": "1"},
		Environment: &restfile.Environment{
			Name: "dev",
			Variables: []restfile.EnvVariable{
				{Name: "X", Value: "2", Enabled: true},
				{Name: "Y", Value: "env-y", Enabled: true},
			},
		},
		DotEnv: map[string]string{"X": "3", "Z": "dotenv-z"},
	})

	expanded, unresolved := resolver.Expand("{{X}} {{Y}} {{Z}}")
	if len(unresolved) != 0 {
		t.Fatalf("unexpected unresolved names: %v", unresolved)
	}
	if expanded != "1 env-y dotenv-z" {
		t.Fatalf("expected collection to win over environment and dotenv, got %q", expanded)
	}
}

func TestExpandSkipsDisabledEnvironmentEntries(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(Context{
		Environment: &restfile.Environment{
			Name: "dev",
			Variables: []restfile.EnvVariable{
				{Name: "HOST", Value: "off.example", Enabled: false},
			},
		},
		DotEnv: map[string]string{"HOST": "dotenv.example"},
	})

	expanded, unresolved := resolver.Expand("{{HOST}}")
	if len(unresolved) != 0 {
		t.Fatalf("unexpected unresolved names: %v", unresolved)
	}
	if expanded != "dotenv.example" {
		t.Fatalf("disabled entry must not resolve, got %q", expanded)
	}
}

func TestExpandMissingPassesThroughVerbatim(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(Context{
		Collection: map[string]string{"host": "example.com"},
	})

	expanded, unresolved := resolver.Expand("https://{{host}}/{{UNSET}}")
	if expanded != "https://example.com/{{UNSET}}" {
		t.Fatalf("unexpected expansion %q", expanded)
	}
	if len(unresolved) != 1 || unresolved[0] != "UNSET" {
		t.Fatalf("expected UNSET reported once, got %v", unresolved)
	}
}

func TestExpandDynamicFreshPerOccurrence(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(Context{})
	expanded, unresolved := resolver.Expand("{{$guid}}/{{$guid}}")
	if len(unresolved) != 0 {
		t.Fatalf("unexpected unresolved names: %v", unresolved)
	}

	parts := strings.Split(expanded, "/")
	if len(parts) != 2 {
		t.Fatalf("unexpected expansion %q", expanded)
	}
	if parts[0] == parts[1] {
		t.Fatalf("expected two distinct guids, got %q twice", parts[0])
	}
	for _, part := range parts {
		if len(part) != 36 {
			t.Fatalf("expected uuid-style length 36, got %d (%q)", len(part), part)
		}
	}
}

func TestExpandDynamicShadowedByProvider(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(Context{
		Collection: map[string]string{"$timestamp": "shadowed"},
	})

	expanded, _ := resolver.Expand("{{ $timestamp }}")
	if expanded != "shadowed" {
		t.Fatalf("expected provider value to shadow dynamic, got %q", expanded)
	}
}

func TestExpandDotEnvDirective(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(Context{
		Collection: map[string]string{"API_KEY": "from-collection"},
		DotEnv:     map[string]string{"API_KEY": "from-dotenv"},
	})

	expanded, _ := resolver.Expand("{{$dotenv API_KEY}}")
	if expanded != "from-dotenv" {
		t.Fatalf("$dotenv must bypass the provider chain, got %q", expanded)
	}

	_, unresolved := resolver.Expand("{{$dotenv NOPE}}")
	if len(unresolved) != 1 {
		t.Fatalf("expected $dotenv miss to be reported, got %v", unresolved)
	}
}

func TestExpandOSEnvDirective(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(Context{
		LookupEnv: func(name string) (string, bool) {
			if name == "HOME_DIR" {
				return "/home/tester", true
			}
			return "", false
		},
	})

	expanded, unresolved := resolver.Expand("{{$env:HOME_DIR}}")
	if len(unresolved) != 0 {
		t.Fatalf("unexpected unresolved names: %v", unresolved)
	}
	if expanded != "/home/tester" {
		t.Fatalf("unexpected expansion %q", expanded)
	}
}

func TestExpandChainReference(t *testing.T) {
	t.Parallel()

	responses := chain.NewMemoryStore()
	responses.Put("login", &chain.Response{
		Status:     "200 OK",
		StatusCode: 200,
		Headers:    http.Header{"X-Request-Id": []string{"req-1"}},
		Body:       []byte(`{"token":"jwt-abc","user":{"id":7}}`),
	})

	resolver := NewResolver(Context{Responses: responses})

	cases := []struct {
		input string
		want  string
	}{
		{"{{login.response.body.token}}", "jwt-abc"},
		{"{{login.response.body.user.id}}", "7"},
		{"{{login.response.status}}", "200"},
		{"{{login.response.headers.X-Request-Id}}", "req-1"},
	}
	for _, tc := range cases {
		expanded, unresolved := resolver.Expand(tc.input)
		if len(unresolved) != 0 {
			t.Fatalf("%s: unexpected unresolved names: %v", tc.input, unresolved)
		}
		if expanded != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.input, tc.want, expanded)
		}
	}

	_, unresolved := resolver.Expand("{{logout.response.body.token}}")
	if len(unresolved) != 1 {
		t.Fatalf("expected unknown request reference to stay unresolved, got %v", unresolved)
	}
}

func TestUnresolvedReportsWithoutExpanding(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(Context{
		Collection: map[string]string{"known": "v"},
	})

	names := resolver.Unresolved("{{known}} {{missing}} {{missing}} {{$guid}}")
	if len(names) != 1 || names[0] != "missing" {
		t.Fatalf("expected [missing], got %v", names)
	}
}
