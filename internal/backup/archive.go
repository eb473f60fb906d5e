package backup

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// NativeArchiver produces the same single-member gzip tarball as the tar
// archiver without needing a tar binary on the host.
type NativeArchiver struct {
	level int
}

// NewNativeArchiver creates an archiver using the default gzip level
func NewNativeArchiver() *NativeArchiver {
	return &NativeArchiver{level: gzip.DefaultCompression}
}

// Compress writes dir/member into a gzip tarball at archivePath
func (na *NativeArchiver) Compress(ctx context.Context, dir, member, archivePath string) error {
	if err := checkMemberName(member); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return NewProcessError("compress canceled", err)
	}

	src, err := os.Open(filepath.Join(dir, member))
	if err != nil {
		return NewProcessError("failed to open dump for compression", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return NewProcessError("failed to stat dump", err)
	}

	dst, err := os.OpenFile(archivePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return NewProcessError("failed to create archive", err)
	}

	if err := na.writeArchive(dst, src, info, member); err != nil {
		dst.Close()
		os.Remove(archivePath)
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(archivePath)
		return NewProcessError("failed to close archive", err)
	}
	return nil
}

func (na *NativeArchiver) writeArchive(dst io.Writer, src io.Reader, info os.FileInfo, member string) error {
	gz, err := gzip.NewWriterLevel(dst, na.level)
	if err != nil {
		return NewProcessError("failed to create gzip writer", err)
	}
	tw := tar.NewWriter(gz)

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return NewProcessError("failed to build tar header", err)
	}
	header.Name = member

	if err := tw.WriteHeader(header); err != nil {
		return NewProcessError("failed to write tar header", err)
	}
	if _, err := io.Copy(tw, src); err != nil {
		return NewProcessError("failed to write dump into archive", err)
	}
	if err := tw.Close(); err != nil {
		return NewProcessError("failed to finish tar stream", err)
	}
	if err := gz.Close(); err != nil {
		return NewProcessError("failed to finish gzip stream", err)
	}
	return nil
}

// Extract unpacks member from archivePath into dir
func (na *NativeArchiver) Extract(ctx context.Context, archivePath, dir, member string) error {
	if err := checkMemberName(member); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return NewProcessError("extract canceled", err)
	}

	src, err := os.Open(archivePath)
	if err != nil {
		return NewProcessError("failed to open archive", err)
	}
	defer src.Close()

	gz, err := gzip.NewReader(src)
	if err != nil {
		return NewProcessError("archive is not gzip compressed", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return NewProcessError(fmt.Sprintf("member %s not found in archive", member), nil).
				WithContext("archive", archivePath)
		}
		if err != nil {
			return NewProcessError("failed to read tar stream", err)
		}
		if header.Typeflag != tar.TypeReg || path.Clean(header.Name) != member {
			continue
		}
		return writeMember(tr, filepath.Join(dir, member))
	}
}

func writeMember(r io.Reader, target string) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return NewProcessError("failed to create extracted file", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return NewProcessError("failed to extract member", err)
	}
	if err := out.Close(); err != nil {
		return NewProcessError("failed to close extracted file", err)
	}
	return nil
}

func checkMemberName(member string) error {
	if member == "" || strings.ContainsAny(member, `/\`) || member == "." || member == ".." {
		return NewValidationError(fmt.Sprintf("invalid archive member name %q", member), nil)
	}
	return nil
}
