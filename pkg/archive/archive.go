// Package archive creates and restores .tar.gz backups of a game
// database: the key-value store file, the module flatfiles that ride
// alongside it, an optional flatfile dump, and the storage config. A
// manifest with SHA-256 checksums travels inside every archive so a
// restore can detect corruption before touching anything.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Manifest describes the contents of an archive.
type Manifest struct {
	Version   int                  `json:"version"`
	Server    string               `json:"server"`
	Timestamp string               `json:"timestamp"`
	DBName    string               `json:"db_name"`
	Objects   int                  `json:"objects"`
	Files     map[string]FileEntry `json:"files"`
}

// FileEntry describes a single file within the archive.
type FileEntry struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
	Type   string `json:"type"` // "kv", "module", "flatfile", "conf"
}

// Params holds all inputs needed to create an archive. The store must
// be closed while the archive runs; files are copied as-is.
type Params struct {
	DataDir      string // Directory holding the KV store and module files
	StoreFile    string // KV store file name within DataDir (empty = skip)
	FlatfilePath string // Optional flatfile dump to include (empty = skip)
	ConfigPath   string // Optional storage config file (empty = skip)
	ArchiveDir   string // Output directory for the archive
	DBName       string // Database name for the manifest
	ObjectCount  int    // Number of objects for the manifest
}

// Create writes a .tar.gz archive of the database files and returns
// the archive path.
func Create(params Params) (string, error) {
	if err := os.MkdirAll(params.ArchiveDir, 0755); err != nil {
		return "", fmt.Errorf("archive: create dir %s: %w", params.ArchiveDir, err)
	}

	filename := fmt.Sprintf("archive-%s.tar.gz", time.Now().Format("20060102-150405"))
	archivePath := filepath.Join(params.ArchiveDir, filename)

	manifest := Manifest{
		Version:   1,
		Server:    "mushdb",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DBName:    params.DBName,
		Objects:   params.ObjectCount,
		Files:     make(map[string]FileEntry),
	}

	outFile, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("archive: create %s: %w", archivePath, err)
	}
	defer outFile.Close()

	gw := gzip.NewWriter(outFile)
	defer gw.Close()
	tw := tar.NewWriter(gw)
	defer tw.Close()

	if params.StoreFile != "" {
		src := filepath.Join(params.DataDir, params.StoreFile)
		if _, err := os.Stat(src); err == nil {
			entry, err := addFileToTar(tw, src, "data/"+params.StoreFile)
			if err != nil {
				return "", err
			}
			entry.Type = "kv"
			manifest.Files["data/"+params.StoreFile] = entry
		}
	}

	// Module flatfiles follow the mod_<name>.db naming convention.
	mods, err := filepath.Glob(filepath.Join(params.DataDir, "mod_*.db"))
	if err != nil {
		return "", fmt.Errorf("archive: glob modules: %w", err)
	}
	for _, mod := range mods {
		archName := "data/" + filepath.Base(mod)
		entry, err := addFileToTar(tw, mod, archName)
		if err != nil {
			return "", err
		}
		entry.Type = "module"
		manifest.Files[archName] = entry
	}

	if params.FlatfilePath != "" {
		if _, err := os.Stat(params.FlatfilePath); err == nil {
			archName := "dump/" + filepath.Base(params.FlatfilePath)
			entry, err := addFileToTar(tw, params.FlatfilePath, archName)
			if err != nil {
				return "", err
			}
			entry.Type = "flatfile"
			manifest.Files[archName] = entry
		}
	}

	if params.ConfigPath != "" {
		if _, err := os.Stat(params.ConfigPath); err == nil {
			archName := "conf/" + filepath.Base(params.ConfigPath)
			entry, err := addFileToTar(tw, params.ConfigPath, archName)
			if err != nil {
				return "", err
			}
			entry.Type = "conf"
			manifest.Files[archName] = entry
		}
	}

	// Manifest goes last so a truncated archive is detectable.
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("archive: marshal manifest: %w", err)
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:    "manifest.json",
		Size:    int64(len(manifestJSON)),
		Mode:    0644,
		ModTime: time.Now(),
	}); err != nil {
		return "", fmt.Errorf("archive: write manifest header: %w", err)
	}
	if _, err := tw.Write(manifestJSON); err != nil {
		return "", fmt.Errorf("archive: write manifest: %w", err)
	}

	return archivePath, nil
}

// addFileToTar adds a single file to the tar archive with the given
// archive name, computing its SHA-256 while writing.
func addFileToTar(tw *tar.Writer, srcPath, archName string) (FileEntry, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: open %s: %w", srcPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: stat %s: %w", srcPath, err)
	}

	// Tar paths use forward slashes.
	archName = strings.ReplaceAll(archName, "\\", "/")

	if err := tw.WriteHeader(&tar.Header{
		Name:    archName,
		Size:    info.Size(),
		Mode:    0644,
		ModTime: info.ModTime(),
	}); err != nil {
		return FileEntry{}, fmt.Errorf("archive: header %s: %w", archName, err)
	}

	h := sha256.New()
	written, err := io.Copy(tw, io.TeeReader(f, h))
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: write %s: %w", archName, err)
	}

	return FileEntry{
		SHA256: hex.EncodeToString(h.Sum(nil)),
		Size:   written,
	}, nil
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
