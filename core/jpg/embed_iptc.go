package jpg

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/stocktag/metaembed/core"
)

// EmbedIPTC writes rec as IPTC-IIM into data using the default options.
func EmbedIPTC(data []byte, rec core.Record) ([]byte, error) {
	return defaultEmbedder.EmbedIPTC(data, rec)
}

// EmbedIPTC returns a copy of data whose first APP13 segment is replaced by
// one carrying rec, or with a new APP13 segment inserted after the leading
// APPn segments when none existed. All other bytes are copied unchanged.
func (e *Embedder) EmbedIPTC(data []byte, rec core.Record) ([]byte, error) {
	if err := CheckSOI(data); err != nil {
		return nil, err
	}
	rec = e.prepare(rec)

	block, err := EncodeIPTC(rec)
	if err != nil {
		return nil, err
	}

	seg, found, err := FindSegment(data, markerAPP13)
	if err != nil {
		return nil, err
	}
	if !found {
		app13, err := buildAPP13Segment(WrapIPTC(block))
		if err != nil {
			return nil, err
		}
		off, err := InsertionPoint(data)
		if err != nil {
			return nil, err
		}
		log.Debug().Int("offset", off).Int("size", len(app13)).Msg("inserting APP13 segment")
		return splice(data, off, off, app13), nil
	}

	var app13 []byte
	if e.opts.KeepPhotoshopResources {
		app13, err = mergeAPP13(seg.Payload(data), block)
		if errors.Is(err, ErrSegmentTooLarge) {
			return nil, err
		}
		if err != nil {
			log.Warn().Err(err).Int("offset", seg.Start).Msg("existing APP13 is unreadable, replacing it whole")
			app13 = nil
		}
	}
	if app13 == nil {
		app13, err = buildAPP13Segment(WrapIPTC(block))
		if err != nil {
			return nil, err
		}
	}
	log.Debug().Int("offset", seg.Start).Int("old", seg.End-seg.Start).Int("new", len(app13)).Msg("replacing APP13 segment")
	return splice(data, seg.Start, seg.End, app13), nil
}
