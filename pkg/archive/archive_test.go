package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func makeArchive(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	writeFile(t, filepath.Join(dataDir, "netmush.kv"), "kv store bytes")
	writeFile(t, filepath.Join(dataDir, "mod_mail.db"), "+V1\n*** END OF DUMP ***\n")
	writeFile(t, filepath.Join(root, "storage.yaml"), "backend: bolt\n")
	writeFile(t, filepath.Join(root, "dump.flat"), "+T1\n***END OF DUMP***\n")

	path, err := Create(Params{
		DataDir:      dataDir,
		StoreFile:    "netmush.kv",
		FlatfilePath: filepath.Join(root, "dump.flat"),
		ConfigPath:   filepath.Join(root, "storage.yaml"),
		ArchiveDir:   filepath.Join(root, "archive"),
		DBName:       "testmush",
		ObjectCount:  42,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return root, path
}

func TestCreateAndList(t *testing.T) {
	root, path := makeArchive(t)
	if !strings.HasSuffix(path, ".tar.gz") {
		t.Errorf("unexpected archive name %s", path)
	}

	archives, err := List(filepath.Join(root, "archive"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(archives) != 1 {
		t.Fatalf("got %d archives, want 1", len(archives))
	}
	ai := archives[0]
	if ai.DBName != "testmush" || ai.Objects != 42 {
		t.Errorf("manifest metadata: name %q objects %d", ai.DBName, ai.Objects)
	}
	if ai.Size == 0 {
		t.Error("archive size is zero")
	}
}

func TestManifestChecksums(t *testing.T) {
	_, path := makeArchive(t)
	m, err := readManifest(path)
	if err != nil {
		t.Fatalf("readManifest: %v", err)
	}
	want := []string{"data/netmush.kv", "data/mod_mail.db", "dump/dump.flat", "conf/storage.yaml"}
	for _, name := range want {
		entry, ok := m.Files[name]
		if !ok {
			t.Errorf("manifest missing %s", name)
			continue
		}
		if len(entry.SHA256) != 64 || entry.Size == 0 {
			t.Errorf("%s: bad entry %+v", name, entry)
		}
	}
	if len(m.Files) != len(want) {
		t.Errorf("manifest has %d files, want %d", len(m.Files), len(want))
	}
}

func TestRestore(t *testing.T) {
	_, path := makeArchive(t)
	dest := t.TempDir()

	res, err := Restore(RestoreParams{
		ArchivePath:  path,
		DataDir:      filepath.Join(dest, "data"),
		FlatfileDest: filepath.Join(dest, "dump"),
		ConfigDest:   filepath.Join(dest, "storage.yaml"),
		Stdin:        strings.NewReader(""),
		Stdout:       os.Stderr,
	})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if res.FilesRestored != 4 {
		t.Errorf("restored %d files, want 4", res.FilesRestored)
	}

	got, err := os.ReadFile(filepath.Join(dest, "data", "netmush.kv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "kv store bytes" {
		t.Errorf("store content %q", got)
	}
	if _, err := os.Stat(filepath.Join(dest, "data", "mod_mail.db")); err != nil {
		t.Errorf("module file not restored: %v", err)
	}
	cfg, err := os.ReadFile(filepath.Join(dest, "storage.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if string(cfg) != "backend: bolt\n" {
		t.Errorf("config content %q", cfg)
	}
}

func TestRestoreKeepsDifferingConfig(t *testing.T) {
	_, path := makeArchive(t)
	dest := t.TempDir()
	cfgDest := filepath.Join(dest, "storage.yaml")
	writeFile(t, cfgDest, "backend: map\n")

	res, err := Restore(RestoreParams{
		ArchivePath: path,
		ConfigDest:  cfgDest,
		Stdin:       strings.NewReader("K\n"),
		Stdout:      os.Stderr,
	})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got, err := os.ReadFile(cfgDest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "backend: map\n" {
		t.Errorf("config was overwritten: %q", got)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a kept-config warning")
	}
}

func TestRestoreRejectsGarbage(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.tar.gz")
	writeFile(t, bad, "not a gzip file")
	if _, err := Restore(RestoreParams{ArchivePath: bad}); err == nil {
		t.Fatal("expected error for garbage archive")
	}
}
