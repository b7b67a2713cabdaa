package imagesink

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rxtd-audio/soundgraph/internal/dsp"
	"github.com/rxtd-audio/soundgraph/internal/errs"
	"github.com/rxtd-audio/soundgraph/internal/logging"
)

var logger = logging.ForService("imagesink")

// Write encodes img as BMP and materialises it atomically at path:
// encode to a buffer, check there is room for it on disk (grounded on
// the teacher's diskspace_unix/windows.go pair), write to a sibling
// ".tmp" file, fsync, then rename over the final path so a concurrent
// reader (the host's BMP consumer, per spec.md §1) never observes a
// partially-written file, the same write-then-Sync durability step
// internal/diskmanager/file_utils.go's WriteSortedFilesToFile takes.
//
// Running low on disk space is reported, not returned as an error: this
// engine's runtime numeric/IO edge cases are handled in-band per spec.md
// §7 rather than aborting the tick that triggered Finish.
func Write(path string, img *dsp.StripedImage) error {
	var buf bytes.Buffer
	if err := Encode(&buf, img); err != nil {
		return errs.New(err).Category(errs.CategoryImage).Context("path", path).Build()
	}
	return writeAtomic(path, buf.Bytes())
}

// WritePixels is Write's counterpart for a handler's border+fade-
// inflated buffer (see EncodePixels).
func WritePixels(path string, width, height int, pixels []dsp.IntColor) error {
	var buf bytes.Buffer
	if err := EncodePixels(&buf, width, height, pixels); err != nil {
		return errs.New(err).Category(errs.CategoryImage).Context("path", path).Build()
	}
	return writeAtomic(path, buf.Bytes())
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if free, err := freeBytes(dir); err == nil && free < uint64(len(data))*2 {
		if logger != nil {
			logger.Warn("low disk space before writing image, proceeding anyway",
				"path", path, "free_bytes", free, "image_bytes", len(data))
		}
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errs.New(err).Category(errs.CategoryImage).Context("path", tmpPath).Build()
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return errs.New(err).Category(errs.CategoryImage).Context("path", tmpPath).Build()
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return errs.New(err).Category(errs.CategoryImage).Context("path", tmpPath).Build()
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return errs.New(err).Category(errs.CategoryImage).Context("path", tmpPath).Build()
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errs.New(err).Category(errs.CategoryImage).Context("path", path).Build()
	}

	if logger != nil {
		logger.Debug("wrote image", "path", path, "bytes", len(data))
	}
	return nil
}
