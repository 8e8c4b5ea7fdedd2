package core

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FormatID names an image container format.
type FormatID string

const (
	FmtJPEG FormatID = "jpeg"
	FmtPNG  FormatID = "png"
	FmtGIF  FormatID = "gif"
	FmtWebP FormatID = "webp"
	FmtTIFF FormatID = "tiff"
	FmtBMP  FormatID = "bmp"
	FmtHEIC FormatID = "heic"

	FmtUnknown FormatID = "unknown"
)

// signature is a magic byte sequence expected at a fixed offset.
type signature struct {
	offset int
	magic  string
}

type formatSig struct {
	id   FormatID
	sigs []signature // all must match
	exts []string
}

var formatSigs = []formatSig{
	{FmtJPEG, []signature{{0, "\xff\xd8\xff"}}, []string{".jpg", ".jpeg", ".jpe"}},
	{FmtPNG, []signature{{0, "\x89PNG\r\n\x1a\n"}}, []string{".png"}},
	{FmtGIF, []signature{{0, "GIF87a"}}, []string{".gif"}},
	{FmtGIF, []signature{{0, "GIF89a"}}, nil},
	{FmtWebP, []signature{{0, "RIFF"}, {8, "WEBP"}}, []string{".webp"}},
	{FmtTIFF, []signature{{0, "II*\x00"}}, []string{".tif", ".tiff"}},
	{FmtTIFF, []signature{{0, "MM\x00*"}}, nil},
	{FmtHEIC, []signature{{4, "ftypheic"}}, []string{".heic", ".heif"}},
	{FmtHEIC, []signature{{4, "ftypheix"}}, nil},
	{FmtHEIC, []signature{{4, "ftypmif1"}}, nil},
	{FmtHEIC, []signature{{4, "ftypmsf1"}}, nil},
	{FmtBMP, []signature{{0, "BM"}}, []string{".bmp"}},
}

// byExt is derived from formatSigs.
var byExt = func() map[string]FormatID {
	m := map[string]FormatID{}
	for _, f := range formatSigs {
		for _, e := range f.exts {
			m[e] = f.id
		}
	}
	return m
}()

// Extensions returns the file extensions registered for id.
func Extensions(id FormatID) []string {
	var out []string
	for _, f := range formatSigs {
		if f.id == id {
			out = append(out, f.exts...)
		}
	}
	return out
}

func (f formatSig) match(b []byte) bool {
	for _, s := range f.sigs {
		end := s.offset + len(s.magic)
		if end > len(b) || !bytes.Equal(b[s.offset:end], []byte(s.magic)) {
			return false
		}
	}
	return true
}

// DetectBytes identifies an image format from its leading bytes. At least
// four bytes are needed for any answer other than FmtUnknown.
func DetectBytes(b []byte) FormatID {
	if len(b) < 4 {
		return FmtUnknown
	}
	for _, f := range formatSigs {
		if f.match(b) {
			return f.id
		}
	}
	return FmtUnknown
}

// DetectFormat sniffs the first bytes of path and falls back to the file
// extension when the content is not recognised.
func DetectFormat(path string) (FormatID, error) {
	f, err := os.Open(path)
	if err != nil {
		return FmtUnknown, err
	}
	defer f.Close()

	head := make([]byte, 16)
	n, err := io.ReadFull(f, head)
	if n == 0 && err != nil {
		return FmtUnknown, err
	}
	if id := DetectBytes(head[:n]); id != FmtUnknown {
		return id, nil
	}
	if id, ok := byExt[strings.ToLower(filepath.Ext(path))]; ok {
		return id, nil
	}
	return FmtUnknown, nil
}
