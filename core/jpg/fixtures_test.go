package jpg

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

// segment assembles a length-prefixed marker segment.
func segment(marker byte, payload []byte) []byte {
	seg := []byte{0xff, marker, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))
	return append(seg, payload...)
}

func jfifSegment() []byte {
	return segment(markerAPP0, []byte{'J', 'F', 'I', 'F', 0, 1, 1, 0, 0, 1, 0, 1, 0, 0})
}

func dqtSegment() []byte {
	payload := make([]byte, 65)
	for i := 1; i < len(payload); i++ {
		payload[i] = 1
	}
	return segment(0xdb, payload)
}

// scanTail is an SOS header, entropy-coded bytes (including a stuffed 0xff
// and byte pairs that look like APP markers) and EOI.
var scanTail = []byte{
	0xff, 0xda, 0x00, 0x08, 0x01, 0x01, 0x00, 0x00, 0x3f, 0x00,
	0x12, 0xff, 0x00, 0x34, 0xed, 0xff, 0x00, 0xe1, 0x56,
	0xff, 0xd9,
}

// buildJPEG concatenates SOI, the given segments and scanTail.
func buildJPEG(segs ...[]byte) []byte {
	out := []byte{0xff, markerSOI}
	for _, s := range segs {
		out = append(out, s...)
	}
	return append(out, scanTail...)
}

// minimalJPEG is SOI, APP0 (JFIF), DQT, SOS ... EOI.
func minimalJPEG() []byte {
	return buildJPEG(jfifSegment(), dqtSegment())
}

// encodedJPEG returns a real baseline JPEG as written by image/jpeg, which
// emits no APPn segments at all.
func encodedJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 16), uint8(y * 16), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type exifEntry struct {
	tag   uint16
	value string
}

// exifSegment builds a little-endian EXIF APP1 segment holding ASCII tags
// in IFD0.
func exifSegment(entries []exifEntry) []byte {
	var buf bytes.Buffer
	buf.WriteString(exifHeader)
	buf.WriteString("II")
	buf.Write([]byte{0x2A, 0x00})
	buf.Write([]byte{0x08, 0x00, 0x00, 0x00}) // offset to IFD0

	ifdBase := 8
	ifdSize := 2 + len(entries)*12 + 4
	valOffset := ifdBase + ifdSize

	var ifd, values bytes.Buffer
	le16 := func(v uint16) { binary.Write(&ifd, binary.LittleEndian, v) }
	le32 := func(v uint32) { binary.Write(&ifd, binary.LittleEndian, v) }

	le16(uint16(len(entries)))
	for _, e := range entries {
		val := e.value + "\x00"
		le16(e.tag)
		le16(2) // ASCII
		le32(uint32(len(val)))
		if len(val) <= 4 {
			padded := make([]byte, 4)
			copy(padded, val)
			ifd.Write(padded)
		} else {
			le32(uint32(valOffset + values.Len()))
			values.WriteString(val)
		}
	}
	le32(0) // no next IFD

	buf.Write(ifd.Bytes())
	buf.Write(values.Bytes())
	return segment(markerAPP1, buf.Bytes())
}

// xmpSegment wraps an arbitrary packet in an XMP APP1 segment.
func xmpSegment(packet string) []byte {
	return segment(markerAPP1, append([]byte(xmpHeader), packet...))
}

// countSegments returns the number of APP13 segments and XMP APP1 segments.
func countSegments(t *testing.T, data []byte) (app13, xmp int) {
	t.Helper()
	segs, err := Segments(data)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range segs {
		switch {
		case s.Marker == markerAPP13:
			app13++
		case s.Marker == markerAPP1 && bytes.HasPrefix(s.Payload(data), []byte(xmpHeader)):
			xmp++
		}
	}
	return app13, xmp
}

// stripMetadata removes APP13 and XMP APP1 segments, leaving every other
// byte in place.
func stripMetadata(t *testing.T, data []byte) []byte {
	t.Helper()
	segs, err := Segments(data)
	if err != nil {
		t.Fatal(err)
	}
	out := []byte{}
	cur := 0
	for _, s := range segs {
		drop := s.Marker == markerAPP13 ||
			s.Marker == markerAPP1 && bytes.HasPrefix(s.Payload(data), []byte(xmpHeader))
		if !drop {
			continue
		}
		out = append(out, data[cur:s.Start]...)
		cur = s.End
	}
	return append(out, data[cur:]...)
}
