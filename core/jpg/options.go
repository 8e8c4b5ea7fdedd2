package jpg

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/stocktag/metaembed/core"
)

// DefaultXMPPadding is the minimum size of a freshly created XMP packet.
// The slack lets later editors grow the packet in place.
const DefaultXMPPadding = 2048

// Options tunes an Embedder.
type Options struct {
	// XMPPadding is the minimum packet size used when no XMP existed before.
	// Existing packets never shrink regardless of this value.
	XMPPadding int

	// KeepPhotoshopResources keeps non-IPTC 8BIM resources of an existing
	// APP13 segment. When false the whole segment is replaced.
	KeepPhotoshopResources bool

	// NormalizeNFC converts title, keywords and caption to Unicode NFC
	// before they are written.
	NormalizeNFC bool
}

// DefaultOptions returns the options used by the package-level functions.
func DefaultOptions() Options {
	return Options{
		XMPPadding:             DefaultXMPPadding,
		KeepPhotoshopResources: true,
	}
}

// Embedder writes IPTC and XMP metadata into JPEG buffers. It holds no
// state besides its options and is safe for concurrent use.
type Embedder struct {
	opts Options
}

// NewEmbedder returns an Embedder using opts.
func NewEmbedder(opts Options) *Embedder {
	if opts.XMPPadding < 0 {
		opts.XMPPadding = 0
	}
	return &Embedder{opts: opts}
}

var defaultEmbedder = NewEmbedder(DefaultOptions())

// prepare applies the text options to a copy of rec. Invalid UTF-8 becomes
// U+FFFD and runes that XML 1.0 cannot carry are dropped, so the IPTC and
// XMP copies of a value always agree.
func (e *Embedder) prepare(rec core.Record) core.Record {
	clean := func(s string) string {
		s = strings.Map(xmlRune, strings.ToValidUTF8(s, "\uFFFD"))
		if e.opts.NormalizeNFC {
			s = norm.NFC.String(s)
		}
		return s
	}
	out := core.Record{
		Title:    clean(rec.Title),
		Caption:  clean(rec.Caption),
		Keywords: make([]string, len(rec.Keywords)),
	}
	for i, k := range rec.Keywords {
		out.Keywords[i] = clean(k)
	}
	return out
}

// xmlRune keeps r if it matches the XML 1.0 Char production.
func xmlRune(r rune) rune {
	switch {
	case r == '\t', r == '\n', r == '\r',
		r >= 0x20 && r <= 0xd7ff,
		r >= 0xe000 && r <= 0xfffd,
		r >= 0x10000 && r <= 0x10ffff:
		return r
	}
	return -1
}
