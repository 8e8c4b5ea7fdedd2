package jpg

import (
	"bytes"

	"github.com/rs/zerolog/log"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/stocktag/metaembed/core"
)

const exifHeader = "Exif\x00\x00"

// DecodeEXIF decodes the EXIF APP1 segment of data, if there is one.
// The TIFF body is handed to goexif directly: goexif on its own only looks
// at the first APP1 segment, which is the XMP one after embedding.
func DecodeEXIF(data []byte) (*exif.Exif, bool, error) {
	seg, found, err := FindAPP(data, markerAPP1, []byte(exifHeader))
	if err != nil || !found {
		return nil, false, err
	}
	x, err := exif.Decode(bytes.NewReader(seg.Payload(data)[len(exifHeader):]))
	if err != nil {
		return nil, true, err
	}
	return x, true, nil
}

func exifFields(data []byte) []core.MetaField {
	x, found, err := DecodeEXIF(data)
	if !found {
		return nil
	}
	if err != nil {
		log.Debug().Err(err).Msg("EXIF segment present but undecodable")
		return nil
	}
	w := exifWalker{}
	x.Walk(&w)
	return w.fields
}

type exifWalker struct {
	fields []core.MetaField
}

func (w *exifWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	val := tag.String()
	if tag.Format() == tiff.StringVal {
		if s, err := tag.StringVal(); err == nil {
			val = s
		}
	}
	w.fields = append(w.fields, core.MetaField{
		Key:      string(name),
		Value:    val,
		Category: "EXIF",
	})
	return nil
}
