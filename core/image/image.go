// Package image exposes the JPEG codec through the file-level core.Handler
// interface used by the CLI.
package image

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/stocktag/metaembed/core"
	"github.com/stocktag/metaembed/core/jpg"
)

// ──────────────────────────────────────────────────────────────────────────────
// Handler
// ──────────────────────────────────────────────────────────────────────────────

// Handler implements core.Handler for image formats.
type Handler struct {
	format   core.FormatID
	embedder *jpg.Embedder
}

var _ core.Handler = (*Handler)(nil)

// New returns a Handler for the given format using opts for embedding.
func New(format core.FormatID, opts jpg.Options) *Handler {
	return &Handler{format: format, embedder: jpg.NewEmbedder(opts)}
}

// ForFile detects the format of path and returns a matching Handler.
func ForFile(path string, opts jpg.Options) (*Handler, error) {
	id, err := core.DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if id == core.FmtUnknown {
		return nil, fmt.Errorf("unrecognised image format: %s", filepath.Base(path))
	}
	return New(id, opts), nil
}

// Info describes what the handler can do with its format.
func (h *Handler) Info() core.FormatInfo {
	if h.format == core.FmtJPEG {
		return jpegInfo
	}
	name, ok := formatNames[h.format]
	if !ok {
		name = string(h.format)
	}
	return core.FormatInfo{
		Name:       name,
		Extensions: core.Extensions(h.format),
		MediaType:  "image",
		Notes:      "Recognised but not supported: metadata embedding is JPEG only.",
	}
}

// Formats lists every image format the handler recognises, JPEG first.
func Formats() []core.FormatInfo {
	order := []core.FormatID{core.FmtJPEG, core.FmtPNG, core.FmtGIF, core.FmtWebP, core.FmtTIFF, core.FmtBMP, core.FmtHEIC}
	out := make([]core.FormatInfo, len(order))
	for i, id := range order {
		out[i] = New(id, jpg.Options{}).Info()
	}
	return out
}

var formatNames = map[core.FormatID]string{
	core.FmtPNG:  "PNG",
	core.FmtGIF:  "GIF",
	core.FmtWebP: "WebP",
	core.FmtTIFF: "TIFF",
	core.FmtBMP:  "BMP",
	core.FmtHEIC: "HEIC/HEIF",
}

var jpegInfo = core.FormatInfo{
	Name:           "JPEG",
	Extensions:     core.Extensions(core.FmtJPEG),
	MediaType:      "image",
	MIMETypes:      []string{"image/jpeg"},
	CanView:        true,
	CanEmbed:       true,
	EditableFields: []string{"Title", "Keywords", "Caption"},
	Notes:          "IPTC-IIM in APP13 (8BIM 0x0404) and XMP dc:title/subject/description in APP1. Scan data is never touched.",
}

// ──────────────────────────────────────────────────────────────────────────────
// View
// ──────────────────────────────────────────────────────────────────────────────

func (h *Handler) View(path string) (*core.Metadata, error) {
	if h.format != core.FmtJPEG {
		return nil, h.unsupported()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := jpg.Inspect(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	m.FilePath = path
	return m, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Embed
// ──────────────────────────────────────────────────────────────────────────────

func (h *Handler) Embed(path string, outPath string, rec core.Record) error {
	if h.format != core.FmtJPEG {
		return h.unsupported()
	}
	out := core.ResolveOutPath(path, outPath)

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	result, err := h.embedder.Embed(data, rec)
	if err != nil {
		return errors.Wrap(err, path)
	}
	log.Debug().Str("path", path).Str("out", out).Int("before", len(data)).Int("after", len(result)).Msg("embedded metadata")
	return writeFile(out, result)
}

// writeFile replaces path through a temporary file in the same directory
// so an interrupted write never leaves a truncated image behind.
func writeFile(path string, data []byte) error {
	mode := os.FileMode(0644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".surgery-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (h *Handler) unsupported() error {
	return fmt.Errorf("%s metadata embedding is not supported, only JPEG", h.Info().Name)
}
