package scripts

import (
	"path/filepath"
	"testing"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "scripts.json"), "test-signing-secret")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return r
}

func TestRepositorySaveLoadRoundTrip(t *testing.T) {
	r := newTestRepo(t)

	saved, err := r.Save("My Script", "result = 1 + 1", "adds two numbers", "alice", "")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Version != 1 {
		t.Fatalf("got version %d, want 1", saved.Version)
	}

	loaded, err := r.Load("My Script")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Code != "result = 1 + 1" {
		t.Fatalf("got code %q", loaded.Code)
	}
	if loaded.ID != "my_script" {
		t.Fatalf("got sanitized id %q, want my_script", loaded.ID)
	}
}

func TestRepositorySaveBumpsVersion(t *testing.T) {
	r := newTestRepo(t)

	if _, err := r.Save("s", "a", "", "", ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second, err := r.Save("s", "b", "", "", "")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("got version %d, want 2", second.Version)
	}
}

func TestRepositoryDetectsTamper(t *testing.T) {
	r := newTestRepo(t)
	if _, err := r.Save("s", "result = 1", "", "", ""); err != nil {
		t.Fatalf("Save: %v", err)
	}

	r.mu.Lock()
	r.idx.Scripts["s"].Code = "result = 2"
	r.mu.Unlock()

	_, err := r.Load("s")
	if err == nil {
		t.Fatal("expected tamper detection to fail Load")
	}
}

func TestRepositoryLoadByPath(t *testing.T) {
	r := newTestRepo(t)
	if _, err := r.Save("daily", "result = 1", "", "", "/team/reports"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	found, err := r.LoadByPath("/team/reports/daily")
	if err != nil {
		t.Fatalf("LoadByPath: %v", err)
	}
	if found.Name != "daily" {
		t.Fatalf("got name %q, want daily", found.Name)
	}

	if _, err := r.LoadByPath("/nope"); err == nil {
		t.Fatal("expected LoadByPath on unknown path to fail")
	}
}

// TestRepositoryLoadByPathSplitsFolderAndName covers spec scenario 6:
// folderPath is saved without the script name, and loadByPath must
// split the lookup path at its last "/" to recover (folderPath, name),
// matching exactly first and falling back to a case-insensitive match.
func TestRepositoryLoadByPathSplitsFolderAndName(t *testing.T) {
	r := newTestRepo(t)
	if _, err := r.Save("Calc", "result = 1", "", "", "Finance/Tax"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	exact, err := r.LoadByPath("/Finance/Tax/Calc")
	if err != nil {
		t.Fatalf("LoadByPath exact: %v", err)
	}
	if exact.Name != "Calc" {
		t.Fatalf("got name %q, want Calc", exact.Name)
	}

	insensitive, err := r.LoadByPath("finance/tax/calc")
	if err != nil {
		t.Fatalf("LoadByPath case-insensitive: %v", err)
	}
	if insensitive.Name != "Calc" {
		t.Fatalf("got name %q, want Calc", insensitive.Name)
	}
}

func TestRepositoryDeleteIsIdempotent(t *testing.T) {
	r := newTestRepo(t)
	if _, err := r.Save("s", "result = 1", "", "", ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := r.Delete("s"); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	if err := r.Delete("s"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := r.Load("s"); err == nil {
		t.Fatal("expected Load after Delete to fail")
	}
}

func TestRepositoryListSortedByName(t *testing.T) {
	r := newTestRepo(t)
	for _, name := range []string{"zebra", "apple", "mango"} {
		if _, err := r.Save(name, "result = 1", "", "", ""); err != nil {
			t.Fatalf("Save(%s): %v", name, err)
		}
	}
	list := r.List()
	if len(list) != 3 {
		t.Fatalf("got %d scripts, want 3", len(list))
	}
	if list[0].Name != "apple" || list[1].Name != "mango" || list[2].Name != "zebra" {
		t.Fatalf("got list order %v, want sorted by name", []string{list[0].Name, list[1].Name, list[2].Name})
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"My Script":        "my_script",
		"  leading/trail ": "leading_trail",
		"a___b":            "a_b",
		"Already-clean":    "already-clean",
	}
	for in, want := range cases {
		if got := sanitize(in); got != want {
			t.Errorf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
