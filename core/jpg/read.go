package jpg

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/stocktag/metaembed/core"
)

// ─── Read-back ───────────────────────────────────────────────────────────────

// ReadIPTC decodes title, keywords and caption from the first APP13 segment.
// The boolean reports whether an IPTC resource was present.
func ReadIPTC(data []byte) (core.Record, bool, error) {
	resources, found, err := readPhotoshop(data)
	if err != nil || !found {
		return core.Record{}, false, err
	}
	for _, r := range resources {
		if r.ID != resourceIPTC {
			continue
		}
		datasets, err := DecodeIPTC(r.Data)
		if err != nil {
			return core.Record{}, true, err
		}
		return RecordFromIPTC(datasets), true, nil
	}
	return core.Record{}, false, nil
}

func readPhotoshop(data []byte) ([]Resource, bool, error) {
	seg, found, err := FindSegment(data, markerAPP13)
	if err != nil || !found {
		return nil, false, err
	}
	payload := seg.Payload(data)
	if !bytes.HasPrefix(payload, []byte(photoshopHeader)) {
		return nil, false, nil
	}
	resources, err := ParseResources(payload[len(photoshopHeader):])
	return resources, true, err
}

type xmpDoc struct {
	RDF struct {
		Descriptions []xmpDescription `xml:"Description"`
	} `xml:"RDF"`
}

type xmpDescription struct {
	Title       altList `xml:"title"`
	Subject     bagList `xml:"subject"`
	Description altList `xml:"description"`
}

type xmpItem struct {
	Lang  string `xml:"lang,attr"`
	Value string `xml:",chardata"`
}

type altList struct {
	Alt struct {
		Items []xmpItem `xml:"li"`
	} `xml:"Alt"`
}

// pick returns the x-default entry, or the first one.
func (a altList) pick() string {
	for _, it := range a.Alt.Items {
		if it.Lang == "x-default" {
			return it.Value
		}
	}
	if len(a.Alt.Items) > 0 {
		return a.Alt.Items[0].Value
	}
	return ""
}

type bagList struct {
	XMLName xml.Name
	Bag     struct {
		Items []string `xml:"li"`
	} `xml:"Bag"`
}

// ReadXMP decodes dc:title, dc:subject and dc:description from the XMP
// packet. The boolean reports whether an XMP segment was present.
func ReadXMP(data []byte) (core.Record, bool, error) {
	doc, found, err := xmpDocument(data)
	if err != nil || !found {
		return core.Record{}, found, err
	}
	var meta xmpDoc
	if err := xml.Unmarshal(doc, &meta); err != nil {
		return core.Record{}, true, errors.Wrap(err, "decoding XMP")
	}
	rec := core.Record{Keywords: []string{}}
	for _, d := range meta.RDF.Descriptions {
		if rec.Title == "" {
			rec.Title = d.Title.pick()
		}
		if rec.Caption == "" {
			rec.Caption = d.Description.pick()
		}
		if len(rec.Keywords) == 0 && d.Subject.XMLName.Local != "" {
			rec.Keywords = append(rec.Keywords, d.Subject.Bag.Items...)
		}
	}
	return rec, true, nil
}

// ReadRecord returns the record embedded in data. IPTC values win; fields
// the IPTC block leaves empty are taken from XMP.
func ReadRecord(data []byte) (core.Record, error) {
	if err := CheckSOI(data); err != nil {
		return core.Record{}, err
	}
	rec, _, err := ReadIPTC(data)
	if err != nil {
		return core.Record{}, err
	}
	fromXMP, _, err := ReadXMP(data)
	if err != nil {
		return core.Record{}, err
	}
	if rec.Title == "" {
		rec.Title = fromXMP.Title
	}
	if rec.Caption == "" {
		rec.Caption = fromXMP.Caption
	}
	if len(rec.Keywords) == 0 {
		rec.Keywords = fromXMP.Keywords
	}
	if rec.Keywords == nil {
		rec.Keywords = []string{}
	}
	return rec, nil
}

func xmpDocument(data []byte) ([]byte, bool, error) {
	seg, found, err := FindAPP(data, markerAPP1, []byte(xmpHeader))
	if err != nil || !found {
		return nil, false, err
	}
	m := xmpMetaPattern.Find(seg.Payload(data)[len(xmpHeader):])
	if m == nil {
		return nil, true, errors.New("xmp: no x:xmpmeta element")
	}
	return m, true, nil
}

var xmpPrefixes = map[string]string{
	nsRDF:                                         "rdf",
	nsDC:                                          "dc",
	"http://ns.adobe.com/xap/1.0/":                "xmp",
	"http://ns.adobe.com/xap/1.0/mm/":             "xmpMM",
	"http://ns.adobe.com/xap/1.0/rights/":         "xmpRights",
	"http://ns.adobe.com/photoshop/1.0/":          "photoshop",
	"http://ns.adobe.com/tiff/1.0/":               "tiff",
	"http://ns.adobe.com/exif/1.0/":               "exif",
	"http://iptc.org/std/Iptc4xmpCore/1.0/xmlns/": "Iptc4xmpCore",
}

func xmpKey(n xml.Name) string {
	if pfx, ok := xmpPrefixes[n.Space]; ok {
		return pfx + ":" + n.Local
	}
	if n.Space != "" && !strings.Contains(n.Space, "/") {
		return n.Space + ":" + n.Local // undeclared prefix
	}
	return n.Local
}

// xmpFields lists the text values of every property in doc, keyed by the
// property that holds them. rdf container elements are looked through.
func xmpFields(doc []byte) []core.MetaField {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	var stack []xml.Name
	var fields []core.MetaField
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name)
			// simple properties written as attributes of rdf:Description
			if isRDF(t.Name, "Description") {
				for _, a := range t.Attr {
					if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" || isRDF(a.Name, "about") {
						continue
					}
					fields = append(fields, core.MetaField{Key: xmpKey(a.Name), Value: a.Value, Category: "XMP"})
				}
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			val := strings.TrimSpace(string(t))
			if val == "" || len(stack) == 0 {
				continue
			}
			// walk up past rdf:li, rdf:Bag/Seq/Alt to the owning property
			prop := xml.Name{}
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].Space == nsRDF || stack[i].Space == "rdf" {
					continue
				}
				prop = stack[i]
				break
			}
			if prop.Local == "" {
				continue
			}
			fields = append(fields, core.MetaField{
				Key:      xmpKey(prop),
				Value:    val,
				Category: "XMP",
				Editable: isDC(prop) && (prop.Local == "title" || prop.Local == "subject" || prop.Local == "description"),
			})
		}
	}
	return fields
}

// Inspect collects the IPTC, Photoshop, XMP and EXIF metadata of a JPEG,
// followed by the layout of its header segments.
// Unreadable sub-structures are skipped; only a missing SOI is an error.
func Inspect(data []byte) (*core.Metadata, error) {
	if err := CheckSOI(data); err != nil {
		return nil, err
	}
	m := &core.Metadata{Format: "JPEG"}

	if resources, found, _ := readPhotoshop(data); found {
		for _, r := range resources {
			if r.ID != resourceIPTC {
				continue
			}
			if datasets, err := DecodeIPTC(r.Data); err == nil || len(datasets) > 0 {
				m.Fields = append(m.Fields, iptcFields(datasets)...)
			}
		}
		m.Fields = append(m.Fields, photoshopFields(resources)...)
	}

	if doc, found, err := xmpDocument(data); found && err == nil {
		m.Fields = append(m.Fields, xmpFields(doc)...)
	}

	m.Fields = append(m.Fields, exifFields(data)...)
	m.Fields = append(m.Fields, structureFields(data)...)
	return m, nil
}

var markerNames = map[byte]string{
	0xc0: "SOF0", 0xc1: "SOF1", 0xc2: "SOF2", 0xc4: "DHT",
	0xdb: "DQT", 0xdd: "DRI", 0xfe: "COM",
}

func markerName(m byte) string {
	if name, ok := markerNames[m]; ok {
		return name
	}
	if m >= markerAPP0 && m <= markerAPP15 {
		return fmt.Sprintf("APP%d", m-markerAPP0)
	}
	return fmt.Sprintf("0xFF%02X", m)
}

// structureFields lists the header segments with their length fields and
// where the scan data starts.
func structureFields(data []byte) []core.MetaField {
	sc, err := NewScanner(data)
	if err != nil {
		return nil
	}
	var fields []core.MetaField
	for sc.Next() {
		seg := sc.Segment()
		fields = append(fields, core.MetaField{
			Key:      markerName(seg.Marker),
			Value:    fmt.Sprintf("length %d at offset %d", seg.Len(), seg.Start),
			Category: "JPEG",
		})
	}
	if sc.Err() != nil {
		return fields
	}
	return append(fields, core.MetaField{
		Key:      "Scan data",
		Value:    fmt.Sprintf("offset %d", sc.Offset()),
		Category: "JPEG",
	})
}
