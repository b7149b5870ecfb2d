package usdz

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// createMembers writes numbered fixture files and returns their paths.
func createMembers(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(names))
	for i, name := range names {
		path := filepath.Join(dir, name)
		content := make([]byte, 100+i*37)
		for j := range content {
			content[j] = byte(i)
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			t.Fatalf("writing fixture %s: %v", name, err)
		}
		paths = append(paths, path)
	}
	return paths
}

func TestPackExtractRoundTrip(t *testing.T) {
	dir := t.TempDir()
	files := createMembers(t, dir, "subject.usda", "texture.png", "extra.usda")
	archive := filepath.Join(dir, "subject.usdz")

	if err := Pack(archive, files); err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	outDir := filepath.Join(dir, "out")
	extracted, err := Extract(archive, outDir)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	var got, want []string
	for _, p := range extracted {
		got = append(got, filepath.Base(p))
	}
	for _, p := range files {
		want = append(want, filepath.Base(p))
	}
	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("extracted %d members, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("member %d = %q, want %q", i, got[i], want[i])
		}
	}

	// Member contents survive the round trip.
	original, _ := os.ReadFile(files[1])
	roundTripped, err := os.ReadFile(filepath.Join(outDir, "texture.png"))
	if err != nil {
		t.Fatalf("reading extracted member: %v", err)
	}
	if string(original) != string(roundTripped) {
		t.Error("member content changed through pack/extract")
	}
}

func TestPackRootLayerFirst(t *testing.T) {
	dir := t.TempDir()
	files := createMembers(t, dir, "root.usda", "b.png", "a.png")
	archive := filepath.Join(dir, "out.usdz")

	if err := Pack(archive, files); err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	names, err := List(archive)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) == 0 || names[0] != "root.usda" {
		t.Errorf("first member = %v, want root.usda", names)
	}
}

func TestPackAlignsPayloads(t *testing.T) {
	dir := t.TempDir()
	// Odd-sized members so alignment actually has to pad.
	files := createMembers(t, dir, "subject.usda", "a.png", "b.png", "c.png")
	archive := filepath.Join(dir, "out.usdz")

	if err := Pack(archive, files); err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	r, err := zip.OpenReader(archive)
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Method != zip.Store {
			t.Errorf("member %s is compressed; usdz members must be stored", f.Name)
		}
		offset, err := f.DataOffset()
		if err != nil {
			t.Fatalf("DataOffset(%s): %v", f.Name, err)
		}
		if offset%payloadAlignment != 0 {
			t.Errorf("member %s payload at offset %d, not %d-byte aligned", f.Name, offset, payloadAlignment)
		}
	}
}

func TestPackNoMembers(t *testing.T) {
	if err := Pack(filepath.Join(t.TempDir(), "x.usdz"), nil); !errors.Is(err, ErrBadArchive) {
		t.Errorf("Pack with no members: err = %v, want ErrBadArchive", err)
	}
}

func TestExtractRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.usdz")
	if err := os.WriteFile(bad, []byte("not a zip at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Extract(bad, dir); !errors.Is(err, ErrBadArchive) {
		t.Errorf("Extract on garbage: err = %v, want ErrBadArchive", err)
	}
}

func TestExtractRejectsEscapingNames(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.usdz")

	out, err := os.Create(archive)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(out)
	w, _ := zw.Create("../escape.txt")
	w.Write([]byte("nope"))
	zw.Close()
	out.Close()

	if _, err := Extract(archive, filepath.Join(dir, "out")); !errors.Is(err, ErrBadArchive) {
		t.Errorf("Extract with escaping member: err = %v, want ErrBadArchive", err)
	}
}
