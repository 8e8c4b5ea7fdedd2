package jpg

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/stocktag/metaembed/core"
)

// ─── Photoshop image resources (APP13) ───────────────────────────────────────

const (
	photoshopHeader = "Photoshop 3.0\x00"
	resourceIPTC    = 0x0404 // IPTC-NAA record
)

var resourceSignatures = [][]byte{
	[]byte("8BIM"),
	[]byte("MeSa"), // ImageReady
	[]byte("PHUT"), // PhotoDeluxe
	[]byte("AgHg"),
	[]byte("DCSR"),
}

// Resource is one Photoshop image resource block.
type Resource struct {
	Signature string // normally "8BIM"
	ID        uint16
	Name      []byte // Pascal string contents, without the length byte
	Data      []byte
}

// WrapIPTC wraps an IPTC-IIM block in an 8BIM resource with ID 0x0404 and
// an empty name. The result always has even length.
func WrapIPTC(block []byte) []byte {
	return appendResource(nil, Resource{Signature: "8BIM", ID: resourceIPTC, Data: block})
}

func appendResource(buf []byte, r Resource) []byte {
	buf = append(buf, r.Signature...)
	buf = binary.BigEndian.AppendUint16(buf, r.ID)

	// Pascal name: length byte + name, padded so the field size is even
	name := r.Name
	if len(name) > 255 {
		name = name[:255]
	}
	buf = append(buf, byte(len(name)))
	buf = append(buf, name...)
	if (1+len(name))%2 != 0 {
		buf = append(buf, 0)
	}

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(r.Data)))
	buf = append(buf, r.Data...)
	if len(r.Data)%2 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

// ParseResources splits the body of a Photoshop APP13 segment (after the
// "Photoshop 3.0\0" header) into resource blocks.
func ParseResources(data []byte) ([]Resource, error) {
	var out []Resource
	i := 0
	for i < len(data) {
		if i+12 > len(data) {
			// trailing padding is tolerated, anything longer is not
			if allZero(data[i:]) {
				break
			}
			return out, errors.Errorf("photoshop: truncated resource header at offset %d", i)
		}
		sig := data[i : i+4]
		if !knownSignature(sig) {
			return out, errors.Errorf("photoshop: unknown resource signature %q at offset %d", sig, i)
		}
		r := Resource{Signature: string(sig), ID: binary.BigEndian.Uint16(data[i+4 : i+6])}
		i += 6

		nameLen := int(data[i])
		field := 1 + nameLen
		if field%2 != 0 {
			field++
		}
		if i+field+4 > len(data) {
			return out, errors.Errorf("photoshop: truncated name of resource 0x%04x", r.ID)
		}
		r.Name = data[i+1 : i+1+nameLen]
		i += field

		size := int(binary.BigEndian.Uint32(data[i : i+4]))
		i += 4
		if size < 0 || i+size > len(data) {
			return out, errors.Errorf("photoshop: resource 0x%04x overruns segment (size %d)", r.ID, size)
		}
		r.Data = data[i : i+size]
		i += size
		if size%2 != 0 {
			i++
		}
		out = append(out, r)
	}
	return out, nil
}

func knownSignature(sig []byte) bool {
	for _, s := range resourceSignatures {
		if bytes.Equal(sig, s) {
			return true
		}
	}
	return false
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// BuildAPP13 returns a complete APP13 segment (marker included) holding a
// single IPTC resource for rec.
func BuildAPP13(rec core.Record) ([]byte, error) {
	block, err := EncodeIPTC(rec)
	if err != nil {
		return nil, err
	}
	return buildAPP13Segment(WrapIPTC(block))
}

// buildAPP13Segment frames already serialised resource blocks as an APP13
// segment. The length field counts itself, the Photoshop header and the
// resources.
func buildAPP13Segment(resources []byte) ([]byte, error) {
	payload := len(photoshopHeader) + len(resources)
	if payload > maxSegmentPayload {
		return nil, errors.Wrapf(ErrSegmentTooLarge, "APP13 payload is %d bytes", payload)
	}
	seg := make([]byte, 0, 4+payload)
	seg = append(seg, 0xff, markerAPP13)
	seg = binary.BigEndian.AppendUint16(seg, uint16(2+payload))
	seg = append(seg, photoshopHeader...)
	seg = append(seg, resources...)
	return seg, nil
}

// mergeAPP13 rebuilds an existing APP13 payload, swapping in a new IPTC
// resource while keeping every other resource in its original position.
// The IPTC resource is appended when the segment had none.
func mergeAPP13(payload []byte, block []byte) ([]byte, error) {
	if !bytes.HasPrefix(payload, []byte(photoshopHeader)) {
		return nil, errors.New("photoshop: APP13 lacks the Photoshop 3.0 header")
	}
	resources, err := ParseResources(payload[len(photoshopHeader):])
	if err != nil {
		return nil, err
	}

	var buf []byte
	replaced := false
	for _, r := range resources {
		if r.ID == resourceIPTC && r.Signature == "8BIM" {
			if replaced {
				continue // drop duplicates, only one IPTC record may survive
			}
			r = Resource{Signature: r.Signature, ID: r.ID, Name: r.Name, Data: block}
			replaced = true
		}
		buf = appendResource(buf, r)
	}
	if !replaced {
		buf = append(buf, WrapIPTC(block)...)
	}
	return buildAPP13Segment(buf)
}

func photoshopFields(resources []Resource) []core.MetaField {
	var fields []core.MetaField
	for _, r := range resources {
		fields = append(fields, core.MetaField{
			Key:      fmt.Sprintf("Resource 0x%04X", r.ID),
			Value:    fmt.Sprintf("%d bytes", len(r.Data)),
			Category: "Photoshop",
			Raw:      r.Signature,
		})
	}
	return fields
}
