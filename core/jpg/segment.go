// Package jpg embeds IPTC-IIM and XMP metadata into JPEG byte streams
// without re-encoding the image.
//
// Every operation is a pure function over an in-memory buffer: the input is
// never modified and a freshly allocated output buffer is returned. Segments
// are addressed by offsets into the original buffer, so only the bytes of the
// APP13 (Photoshop/IPTC) and APP1 (XMP) segments ever change.
package jpg

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	// jpeg markers
	markerTEM   = 0x01 // TEMporary, standalone
	markerRST0  = 0xd0 // ReSTart (0).
	markerRST7  = 0xd7 // ReSTart (7).
	markerSOI   = 0xd8 // Start Of Image.
	markerEOI   = 0xd9 // End Of Image.
	markerSOS   = 0xda // Start Of Scan.
	markerAPP0  = 0xe0
	markerAPP1  = 0xe1 // EXIF, XMP
	markerAPP13 = 0xed // Photoshop image resources, IPTC
	markerAPP15 = 0xef
)

// maxSegmentPayload is the largest payload a length-prefixed segment can
// carry: the 16-bit length field counts its own two bytes.
const maxSegmentPayload = 0xffff - 2

// Segment addresses one marker segment inside a JPEG buffer. It never owns
// a copy of the bytes it describes.
type Segment struct {
	Marker       byte // second marker byte, e.g. 0xe1 for APP1
	Start        int  // offset of the 0xff that opens the marker
	PayloadStart int  // offset just past the length field
	End          int  // offset one past the last payload byte
}

// Payload returns the segment payload as a sub-slice of data.
func (s Segment) Payload(data []byte) []byte {
	return data[s.PayloadStart:s.End]
}

// Len returns the value of the segment's length field.
func (s Segment) Len() int {
	if s.PayloadStart == s.Start+2 {
		return 0 // standalone marker
	}
	return s.End - s.Start - 2
}

// IsAPP reports whether the segment is one of APP0 through APP15.
func (s Segment) IsAPP() bool {
	return s.Marker >= markerAPP0 && s.Marker <= markerAPP15
}

// CheckSOI returns ErrInvalidJPEG unless data starts with 0xFFD8.
func CheckSOI(data []byte) error {
	if len(data) < 2 || data[0] != 0xff || data[1] != markerSOI {
		return ErrInvalidJPEG
	}
	return nil
}

// Scanner walks the marker segments that precede the first Start-Of-Scan
// marker. Entropy-coded data after SOS is never interpreted.
//
//	sc, err := NewScanner(data)
//	for sc.Next() {
//		seg := sc.Segment()
//		...
//	}
type Scanner struct {
	data []byte
	off  int
	seg  Segment
	done bool
	err  error
}

// NewScanner returns a Scanner positioned just after the SOI marker.
func NewScanner(data []byte) (*Scanner, error) {
	if err := CheckSOI(data); err != nil {
		return nil, err
	}
	return &Scanner{data: data, off: 2}, nil
}

// Next advances to the next segment. It returns false at SOS, at EOI, at
// the end of the buffer, or when the marker stream is malformed; Err
// distinguishes the last case.
func (s *Scanner) Next() bool {
	if s.done {
		return false
	}
	d := s.data
	i := s.off
	if i >= len(d) {
		s.done = true
		return false
	}
	if d[i] != 0xff {
		s.fail(errors.Wrapf(ErrMalformedJPEG, "expected marker at offset %d, found 0x%02x", i, d[i]))
		return false
	}
	// a marker may be preceded by any number of 0xff fill bytes
	for i+1 < len(d) && d[i+1] == 0xff {
		i++
	}
	if i+1 >= len(d) {
		s.fail(errors.Wrapf(ErrMalformedJPEG, "truncated marker at offset %d", i))
		return false
	}

	marker := d[i+1]
	switch {
	case marker == markerSOS, marker == markerEOI:
		s.off = i
		s.done = true
		return false
	case marker == 0x00:
		s.fail(errors.Wrapf(ErrMalformedJPEG, "stuffed byte where a marker was expected at offset %d", i))
		return false
	case marker == markerTEM, marker == markerSOI, markerRST0 <= marker && marker <= markerRST7:
		s.seg = Segment{Marker: marker, Start: i, PayloadStart: i + 2, End: i + 2}
		s.off = i + 2
		return true
	}

	if i+4 > len(d) {
		s.fail(errors.Wrapf(ErrMalformedJPEG, "truncated length of marker 0x%02x at offset %d", marker, i))
		return false
	}
	n := int(binary.BigEndian.Uint16(d[i+2 : i+4])) // includes the length bytes
	if n < 2 || i+2+n > len(d) {
		s.fail(errors.Wrapf(ErrMalformedJPEG, "segment 0x%02x at offset %d overruns buffer (length %d)", marker, i, n))
		return false
	}
	s.seg = Segment{Marker: marker, Start: i, PayloadStart: i + 4, End: i + 2 + n}
	s.off = s.seg.End
	return true
}

func (s *Scanner) fail(err error) {
	s.err = err
	s.done = true
}

// Segment returns the segment found by the last successful call to Next.
func (s *Scanner) Segment() Segment {
	return s.seg
}

// Offset returns where scanning stopped (the SOS marker when the header
// was walked completely) or, while scanning, the start of the next segment.
func (s *Scanner) Offset() int {
	return s.off
}

// Err returns the first structural error met by Next, if any.
func (s *Scanner) Err() error {
	return s.err
}

// FindSegment returns the first segment with the given marker byte.
// Scanning stops at SOS; a malformed segment met before a match is an error.
func FindSegment(data []byte, marker byte) (Segment, bool, error) {
	return FindAPP(data, marker, nil)
}

// FindAPP returns the first segment with the given marker whose payload
// starts with prefix. Segments with the same marker but another prefix,
// such as an EXIF APP1 ahead of an XMP APP1, are skipped.
func FindAPP(data []byte, marker byte, prefix []byte) (Segment, bool, error) {
	sc, err := NewScanner(data)
	if err != nil {
		return Segment{}, false, err
	}
	for sc.Next() {
		seg := sc.Segment()
		if seg.Marker != marker {
			continue
		}
		if bytes.HasPrefix(seg.Payload(data), prefix) {
			return seg, true, nil
		}
	}
	return Segment{}, false, sc.Err()
}

// InsertionPoint returns the offset just past the run of APPn segments
// that directly follows SOI. New metadata segments go there so that all
// application segments stay clustered at the head of the file.
func InsertionPoint(data []byte) (int, error) {
	sc, err := NewScanner(data)
	if err != nil {
		return 0, err
	}
	off := 2
	for sc.Next() {
		seg := sc.Segment()
		if !seg.IsAPP() {
			break
		}
		off = seg.End
	}
	return off, sc.Err()
}

// Segments lists every segment ahead of SOS. It is meant for inspection
// and tests; the embedders use the single-pass finders above.
func Segments(data []byte) ([]Segment, error) {
	sc, err := NewScanner(data)
	if err != nil {
		return nil, err
	}
	var segs []Segment
	for sc.Next() {
		segs = append(segs, sc.Segment())
	}
	return segs, sc.Err()
}

// splice returns a new buffer holding data[:start] + repl + data[end:].
func splice(data []byte, start, end int, repl []byte) []byte {
	out := make([]byte, 0, len(data)-(end-start)+len(repl))
	out = append(out, data[:start]...)
	out = append(out, repl...)
	out = append(out, data[end:]...)
	return out
}
