package vars

import (
	"reflect"
	"testing"

	"github.com/unkn0wn-root/restbridge/internal/restfile"
)

func TestExtractNamesSkipsDynamicAndChain(t *testing.T) {
	t.Parallel()

	names := ExtractNames("{{$guid}} {{a.b.c}} {{plain}} {{ }} {{plain}}")
	if !reflect.DeepEqual(names, []string{"plain"}) {
		t.Fatalf("expected [plain], got %v", names)
	}
}

func TestExtractNamesPreservesFirstSeenOrder(t *testing.T) {
	t.Parallel()

	names := ExtractNames("{{b}}/{{a}}", "{{c}} {{a}}")
	if !reflect.DeepEqual(names, []string{"b", "a", "c"}) {
		t.Fatalf("expected first-seen order, got %v", names)
	}
}

func TestExtractRequestNamesCoversAllFields(t *testing.T) {
	t.Parallel()

	req := &restfile.Request{
		Method: "POST",
		URL:    "https://{{host}}/items",
		Headers: []restfile.Header{
			{Name: "X-{{headerName}}", Value: "Bearer {{token}}"},
		},
		Body: `{"owner": "{{owner}}"}`,
		Auth: &restfile.AuthSpec{
			Type:   "apikey",
			Params: map[string]string{"value": "{{apiKey}}"},
		},
	}

	names := ExtractRequestNames(req)
	want := map[string]bool{
		"host": true, "headerName": true, "token": true, "owner": true, "apiKey": true,
	}
	if len(names) != len(want) {
		t.Fatalf("expected %d names, got %v", len(want), names)
	}
	for _, name := range names {
		if !want[name] {
			t.Fatalf("unexpected name %q in %v", name, names)
		}
	}
}

func TestReplacePlaceholdersKeepsUnhandledTokens(t *testing.T) {
	t.Parallel()

	out := ReplacePlaceholders("{{a}} {{$guid}}", func(name string) (string, bool) {
		if name == "a" {
			return "{{$dotenv a}}", true
		}
		return "", false
	})
	if out != "{{$dotenv a}} {{$guid}}" {
		t.Fatalf("unexpected rewrite %q", out)
	}
}
