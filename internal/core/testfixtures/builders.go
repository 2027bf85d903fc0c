package testfixtures

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	plugindomain "kilometers.ai/kmpkg/internal/core/domain/plugin"
)

// ArchiveBuilder provides a builder pattern for creating plugin archives in tests
type ArchiveBuilder struct {
	names    []string
	contents map[string][]byte
}

// NewArchiveBuilder creates an empty ArchiveBuilder
func NewArchiveBuilder() *ArchiveBuilder {
	return &ArchiveBuilder{contents: make(map[string][]byte)}
}

// NewPluginArchive creates a builder with a manifest and a small payload
func NewPluginArchive(pluginID, pluginName, configPath string) *ArchiveBuilder {
	return NewArchiveBuilder().
		WithManifest(plugindomain.Manifest{PluginID: pluginID, PluginName: pluginName, ConfigPath: configPath}).
		WithFile("main.py", "print('"+pluginName+"')\n")
}

// WithManifest adds metadata.json built from the manifest
func (b *ArchiveBuilder) WithManifest(m plugindomain.Manifest) *ArchiveBuilder {
	data, _ := json.Marshal(m)
	return b.WithRaw(plugindomain.ManifestFileName, data)
}

// WithFile adds a text file at the given slash-separated path
func (b *ArchiveBuilder) WithFile(name, content string) *ArchiveBuilder {
	return b.WithRaw(name, []byte(content))
}

// WithRaw adds raw bytes at the given slash-separated path
func (b *ArchiveBuilder) WithRaw(name string, content []byte) *ArchiveBuilder {
	if _, exists := b.contents[name]; !exists {
		b.names = append(b.names, name)
	}
	b.contents[name] = content
	return b
}

// WriteZip writes the archive as a zip file at path
func (b *ArchiveBuilder) WriteZip(t testing.TB, path string) string {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range b.names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s to zip: %v", name, err)
		}
		if _, err := w.Write(b.contents[name]); err != nil {
			t.Fatalf("failed to write %s to zip: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish zip: %v", err)
	}

	writeFile(t, path, buf.Bytes())
	return path
}

// WriteTarGz writes the archive as a gzip-compressed tar file at path
func (b *ArchiveBuilder) WriteTarGz(t testing.TB, path string) string {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, name := range b.names {
		content := b.contents[name]
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("failed to add %s to tar: %v", name, err)
		}
		if _, err := tw.Write(content); err != nil {
			t.Fatalf("failed to write %s to tar: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("failed to finish tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("failed to finish gzip: %v", err)
	}

	writeFile(t, path, buf.Bytes())
	return path
}

func writeFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
