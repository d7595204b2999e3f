package history

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T, maxEntries int) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"), maxEntries)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestAppendAndRecent(t *testing.T) {
	t.Parallel()

	store := openTestStore(t, 10)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		err := store.Append(Entry{
			ExecutedAt:  base.Add(time.Duration(i) * time.Minute),
			Environment: "dev",
			RequestName: fmt.Sprintf("req-%d", i),
			Method:      "GET",
			URL:         fmt.Sprintf("https://example.com/%d", i),
			Status:      "200 OK",
			StatusCode:  200,
			Duration:    150 * time.Millisecond,
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries, err := store.Recent(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].RequestName != "req-2" || entries[1].RequestName != "req-1" {
		t.Fatalf("expected newest first, got %s then %s",
			entries[0].RequestName, entries[1].RequestName)
	}
	if entries[0].Duration != 150*time.Millisecond {
		t.Fatalf("duration not preserved: %v", entries[0].Duration)
	}
	if !entries[0].ExecutedAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("timestamp not preserved: %v", entries[0].ExecutedAt)
	}
}

func TestAppendPrunesOldEntries(t *testing.T) {
	t.Parallel()

	store := openTestStore(t, 5)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 8; i++ {
		err := store.Append(Entry{
			ExecutedAt: base.Add(time.Duration(i) * time.Second),
			Method:     "GET",
			URL:        fmt.Sprintf("https://example.com/%d", i),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries, err := store.Recent(0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected prune to keep 5, got %d", len(entries))
	}
	if entries[len(entries)-1].URL != "https://example.com/3" {
		t.Fatalf("oldest surviving entry wrong: %s", entries[len(entries)-1].URL)
	}
}

func TestByRequestMatchesNameOrURL(t *testing.T) {
	t.Parallel()

	store := openTestStore(t, 10)
	seed := []Entry{
		{RequestName: "login", Method: "POST", URL: "https://example.com/login"},
		{RequestName: "login", Method: "POST", URL: "https://example.com/login"},
		{RequestName: "profile", Method: "GET", URL: "https://example.com/me"},
	}
	for _, entry := range seed {
		if err := store.Append(entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	byName, err := store.ByRequest("login", 0)
	if err != nil {
		t.Fatalf("by name: %v", err)
	}
	if len(byName) != 2 {
		t.Fatalf("expected 2 login entries, got %d", len(byName))
	}

	byURL, err := store.ByRequest("https://example.com/me", 0)
	if err != nil {
		t.Fatalf("by url: %v", err)
	}
	if len(byURL) != 1 || byURL[0].RequestName != "profile" {
		t.Fatalf("unexpected url match %+v", byURL)
	}

	all, err := store.ByRequest("  ", 0)
	if err != nil {
		t.Fatalf("blank filter: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("blank filter should fall back to Recent, got %d", len(all))
	}
}
