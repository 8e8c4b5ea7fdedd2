package jpg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"

	"github.com/stocktag/metaembed/core"
)

// ─── IPTC-IIM datasets ───────────────────────────────────────────────────────

const (
	iptcTagMarker = 0x1c

	recordEnvelope    = 1
	recordApplication = 2

	dsCodedCharacterSet = 90  // 1:90
	dsObjectName        = 5   // 2:05, the title field read by stock sites
	dsKeywords          = 25  // 2:25, repeatable
	dsCaption           = 120 // 2:120 Caption-Abstract

	// Standard datasets carry a 15-bit length; bit 15 flags an extended
	// dataset, which this encoder never writes.
	maxDatasetLen = 0x7fff
)

// utf8Declaration is the ISO 2022 escape sequence ESC % G that 1:90 uses to
// announce UTF-8 text in all following datasets.
var utf8Declaration = []byte{0x1b, 0x25, 0x47}

// Dataset is one tagged IPTC-IIM value.
type Dataset struct {
	Record byte
	Number byte
	Data   []byte
}

// Tag returns the conventional "record:dataset" label, e.g. "2:25".
func (d Dataset) Tag() string {
	return fmt.Sprintf("%d:%02d", d.Record, d.Number)
}

// EncodeIPTC serialises rec as an IPTC-IIM block: the UTF-8 declaration
// first, then the title, one dataset per non-blank keyword and the caption.
// Empty fields produce no dataset at all.
func EncodeIPTC(rec core.Record) ([]byte, error) {
	var buf bytes.Buffer
	err := writeDataset(&buf, Dataset{recordEnvelope, dsCodedCharacterSet, utf8Declaration})
	if err != nil {
		return nil, err
	}
	if rec.Title != "" {
		err = writeDataset(&buf, Dataset{recordApplication, dsObjectName, []byte(rec.Title)})
		if err != nil {
			return nil, errors.Wrap(err, "title")
		}
	}
	for i, kw := range rec.CleanKeywords() {
		err = writeDataset(&buf, Dataset{recordApplication, dsKeywords, []byte(kw)})
		if err != nil {
			return nil, errors.Wrapf(err, "keyword #%d", i+1)
		}
	}
	if rec.Caption != "" {
		err = writeDataset(&buf, Dataset{recordApplication, dsCaption, []byte(rec.Caption)})
		if err != nil {
			return nil, errors.Wrap(err, "caption")
		}
	}
	return buf.Bytes(), nil
}

func writeDataset(buf *bytes.Buffer, ds Dataset) error {
	if len(ds.Data) > maxDatasetLen {
		return errors.Wrapf(ErrDatasetTooLarge, "dataset %s is %d bytes", ds.Tag(), len(ds.Data))
	}
	buf.WriteByte(iptcTagMarker)
	buf.WriteByte(ds.Record)
	buf.WriteByte(ds.Number)
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(ds.Data)))
	buf.Write(n[:])
	buf.Write(ds.Data)
	return nil
}

// DecodeIPTC splits an IPTC-IIM block into its datasets. Extended datasets
// (bit 15 of the length set) are understood. Bytes between datasets that do
// not start with the 0x1C tag marker are skipped, as Photoshop sometimes
// pads the block.
func DecodeIPTC(block []byte) ([]Dataset, error) {
	var out []Dataset
	i := 0
	for i < len(block) {
		if block[i] != iptcTagMarker {
			i++
			continue
		}
		if i+5 > len(block) {
			return out, errors.Errorf("iptc: truncated dataset header at offset %d", i)
		}
		rec, num := block[i+1], block[i+2]
		length := int(binary.BigEndian.Uint16(block[i+3 : i+5]))
		i += 5
		if length&0x8000 != 0 {
			// extended dataset: the low bits give the size of the length field
			nLen := length & 0x7fff
			if nLen > 4 || i+nLen > len(block) {
				return out, errors.Errorf("iptc: bad extended length in dataset %d:%02d", rec, num)
			}
			length = 0
			for _, b := range block[i : i+nLen] {
				length = length<<8 | int(b)
			}
			i += nLen
		}
		if length < 0 || i+length > len(block) {
			return out, errors.Errorf("iptc: dataset %d:%02d overruns block", rec, num)
		}
		out = append(out, Dataset{Record: rec, Number: num, Data: block[i : i+length]})
		i += length
	}
	return out, nil
}

// RecordFromIPTC collects title, keywords and caption from decoded
// datasets. Without a UTF-8 declaration, text that is not valid UTF-8 is
// read as Windows-1252, the de-facto default of older writers.
func RecordFromIPTC(datasets []Dataset) core.Record {
	isUTF8 := declaresUTF8(datasets)
	var rec core.Record
	rec.Keywords = []string{}
	for _, ds := range datasets {
		if ds.Record != recordApplication {
			continue
		}
		switch ds.Number {
		case dsObjectName:
			rec.Title = iptcText(ds.Data, isUTF8)
		case dsKeywords:
			rec.Keywords = append(rec.Keywords, iptcText(ds.Data, isUTF8))
		case dsCaption:
			rec.Caption = iptcText(ds.Data, isUTF8)
		}
	}
	return rec
}

func declaresUTF8(datasets []Dataset) bool {
	for _, ds := range datasets {
		if ds.Record == recordEnvelope && ds.Number == dsCodedCharacterSet {
			return bytes.Equal(ds.Data, utf8Declaration)
		}
	}
	return false
}

func iptcText(b []byte, isUTF8 bool) string {
	if isUTF8 || utf8.Valid(b) {
		return string(b)
	}
	s, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

var iptcFieldNames = map[byte]string{
	0x05: "Title",
	0x0F: "Category",
	0x14: "SupplementalCategory",
	0x19: "Keywords",
	0x1E: "DateCreated",
	0x1F: "TimeCreated",
	0x28: "SpecialInstructions",
	0x37: "DigitalCreationDate",
	0x50: "Byline",
	0x55: "BylineTitle",
	0x5A: "City",
	0x5F: "Province",
	0x65: "Country",
	0x67: "OriginalTransmissionReference",
	0x69: "Headline",
	0x6E: "Credit",
	0x73: "Source",
	0x74: "CopyrightNotice",
	0x76: "Contact",
	0x78: "Caption",
	0x7A: "CaptionWriter",
}

func iptcFields(datasets []Dataset) []core.MetaField {
	isUTF8 := declaresUTF8(datasets)
	var fields []core.MetaField
	for _, ds := range datasets {
		if ds.Record != recordApplication {
			continue
		}
		name, ok := iptcFieldNames[ds.Number]
		if !ok {
			continue
		}
		editable := ds.Number == dsObjectName || ds.Number == dsKeywords || ds.Number == dsCaption
		fields = append(fields, core.MetaField{
			Key:      name,
			Value:    iptcText(ds.Data, isUTF8),
			Category: "IPTC",
			Editable: editable,
			Raw:      ds.Tag(),
		})
	}
	return fields
}
