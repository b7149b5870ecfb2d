// Package usdz packs and extracts usdz archives. A usdz file is an
// uncompressed zip whose member payloads are aligned to 64-byte boundaries,
// with the root layer as the first member.
package usdz

import (
	"archive/zip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrBadArchive is returned for archives that cannot be read or whose member
// names escape the extraction directory.
var ErrBadArchive = errors.New("invalid usdz archive")

// payloadAlignment is the byte boundary every member payload must start on.
const payloadAlignment = 64

// paddingExtraID tags the alignment padding extra field in local headers.
const paddingExtraID = 0x1986

// localHeaderLen is the fixed part of a zip local file header.
const localHeaderLen = 30

// dataDescriptorLen is the trailing descriptor archive/zip emits per member.
const dataDescriptorLen = 16

// Pack writes the given files into a usdz archive at archivePath. The first
// file becomes the first archive member, so callers pass the root layer
// first. Members are stored without compression and aligned for in-place
// consumption.
func Pack(archivePath string, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("%w: no members to pack", ErrBadArchive)
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	offset := int64(0)

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading member %s: %w", file, err)
		}
		name := memberName(file)

		extra := alignmentPadding(offset + localHeaderLen + int64(len(name)))
		hdr := &zip.FileHeader{
			Name:   name,
			Method: zip.Store,
			Extra:  extra,
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("creating member %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("writing member %s: %w", name, err)
		}

		offset += localHeaderLen + int64(len(name)) + int64(len(extra)) +
			int64(len(data)) + dataDescriptorLen
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finishing archive: %w", err)
	}
	return out.Close()
}

// memberName keeps relative paths intact inside the archive so asset
// references between members stay valid; absolute paths collapse to their
// base name.
func memberName(file string) string {
	if filepath.IsAbs(file) {
		return filepath.Base(file)
	}
	return filepath.ToSlash(filepath.Clean(file))
}

// alignmentPadding builds an extra field that pushes the payload starting at
// the given offset onto the next 64-byte boundary. Returns nil when already
// aligned. The field needs a 4-byte header, so pads shorter than that are
// grown by one alignment step.
func alignmentPadding(payloadStart int64) []byte {
	pad := (payloadAlignment - payloadStart%payloadAlignment) % payloadAlignment
	if pad == 0 {
		return nil
	}
	if pad < 4 {
		pad += payloadAlignment
	}
	extra := make([]byte, pad)
	binary.LittleEndian.PutUint16(extra[0:2], paddingExtraID)
	binary.LittleEndian.PutUint16(extra[2:4], uint16(pad-4))
	return extra
}

// List returns the member names of an archive.
func List(archivePath string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names, nil
}

// Extract unpacks every member of the archive into destDir and returns the
// written paths.
func Extract(archivePath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	defer r.Close()

	var paths []string
	for _, f := range r.File {
		name := filepath.FromSlash(f.Name)
		if filepath.IsAbs(name) || strings.Contains(name, "..") {
			return nil, fmt.Errorf("%w: member name escapes destination: %s", ErrBadArchive, f.Name)
		}
		dest := filepath.Join(destDir, name)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, fmt.Errorf("extracting %s: %w", f.Name, err)
		}
		if err := extractMember(f, dest); err != nil {
			return nil, err
		}
		paths = append(paths, dest)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: archive has no members", ErrBadArchive)
	}
	return paths, nil
}

func extractMember(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening member %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	return out.Close()
}
