package scanner

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHashFileIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.bin")
	if err := os.WriteFile(path, []byte("the same bytes every time"), 0o644); err != nil {
		t.Fatal(err)
	}

	first, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	second, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("hash not stable: %s vs %s", first, second)
	}
	if first == "" {
		t.Error("empty hash")
	}

	if err := os.WriteFile(path, []byte("different bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	changed, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if changed == first {
		t.Error("hash did not change with content")
	}
}

func TestCollectFindsVideoFilesOnly(t *testing.T) {
	root := t.TempDir()
	mustWrite := func(rel string) {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	mustWrite("movies/alpha.mkv")
	mustWrite("movies/beta.mp4")
	mustWrite("movies/notes.txt")
	mustWrite("movies/.hidden.mkv")
	mustWrite("movies/alpha.vpo_backup.mkv")
	mustWrite(".stash/gamma.mkv")

	s := New(nil, nil, nil)
	paths, err := s.collect([]string{root})
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]bool{
		filepath.Join(root, "movies/alpha.mkv"): true,
		filepath.Join(root, "movies/beta.mp4"):  true,
	}
	if len(paths) != len(want) {
		t.Fatalf("collected %v, want %v", paths, want)
	}
	for _, p := range paths {
		if !want[p] {
			t.Errorf("unexpected path %s", p)
		}
	}
}

func TestCollectAcceptsSingleFile(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "movie.mkv")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(nil, nil, nil)
	paths, err := s.collect([]string{file})
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0] != file {
		t.Errorf("paths = %v", paths)
	}
}
