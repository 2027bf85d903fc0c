package plugininfra

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	plugindomain "kilometers.ai/kmpkg/internal/core/domain/plugin"
	pluginports "kilometers.ai/kmpkg/internal/core/ports/plugin"
)

var gzipMagic = []byte{0x1f, 0x8b}

// FileSystemExtractor unpacks zip and tar.gz plugin archives onto the local filesystem
type FileSystemExtractor struct{}

// NewFileSystemExtractor creates a new archive extractor
func NewFileSystemExtractor() *FileSystemExtractor {
	return &FileSystemExtractor{}
}

// Extract extracts the archive at archivePath into targetDir
func (e *FileSystemExtractor) Extract(ctx context.Context, archivePath, targetDir string) error {
	header, err := readHeader(archivePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", plugindomain.ErrArchiveNotFound, archivePath)
		}
		return fmt.Errorf("%w: %s: %w", plugindomain.ErrExtraction, archivePath, err)
	}

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return plugindomain.ErrFilesystemOp("create", targetDir, err)
	}

	if bytes.HasPrefix(header, gzipMagic) {
		err = e.extractTarGz(ctx, archivePath, targetDir)
	} else {
		err = e.extractZip(ctx, archivePath, targetDir)
	}
	if err != nil {
		if errors.Is(err, plugindomain.ErrFilesystem) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", plugindomain.ErrExtraction, archivePath, err)
	}

	return nil
}

// extractZip extracts a zip archive
func (e *FileSystemExtractor) extractZip(ctx context.Context, archivePath, targetDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		targetPath, err := safeJoin(targetDir, file.Name)
		if err != nil {
			return err
		}

		mode := file.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(targetPath, 0755); err != nil {
				return plugindomain.ErrFilesystemOp("create", targetPath, err)
			}
		case mode.IsRegular():
			src, err := file.Open()
			if err != nil {
				return fmt.Errorf("open %s: %w", file.Name, err)
			}
			err = writeFile(targetPath, src, mode.Perm())
			src.Close()
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// extractTarGz extracts a gzip-compressed tar archive
func (e *FileSystemExtractor) extractTarGz(ctx context.Context, archivePath, targetDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar header: %w", err)
		}

		targetPath, err := safeJoin(targetDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0755); err != nil {
				return plugindomain.ErrFilesystemOp("create", targetPath, err)
			}
		case tar.TypeReg:
			if err := writeFile(targetPath, tarReader, os.FileMode(header.Mode).Perm()); err != nil {
				return err
			}
		}
	}

	return nil
}

// safeJoin resolves an archive entry name under root, rejecting path traversal
func safeJoin(root, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("unsafe archive path: %s", name)
	}

	target := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("unsafe archive path: %s", name)
	}

	return target, nil
}

func writeFile(targetPath string, src io.Reader, perm os.FileMode) error {
	if perm == 0 {
		perm = 0644
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return plugindomain.ErrFilesystemOp("create", filepath.Dir(targetPath), err)
	}

	dst, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return plugindomain.ErrFilesystemOp("create", targetPath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to write %s: %w", targetPath, err)
	}

	if err := dst.Close(); err != nil {
		return plugindomain.ErrFilesystemOp("close", targetPath, err)
	}

	return nil
}

// readHeader returns the first bytes of the archive for format detection
func readHeader(archivePath string) ([]byte, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", archivePath)
	}

	header := make([]byte, 4)
	n, err := io.ReadFull(file, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}

	return header[:n], nil
}

var _ pluginports.ArchiveExtractor = (*FileSystemExtractor)(nil)
