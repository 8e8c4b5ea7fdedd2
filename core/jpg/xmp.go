package jpg

import (
	"bytes"
	"encoding/binary"
	"encoding/xml"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/stocktag/metaembed/core"
)

// ─── XMP (APP1) ──────────────────────────────────────────────────────────────

const (
	xmpHeader = "http://ns.adobe.com/xap/1.0/\x00"

	nsDC  = "http://purl.org/dc/elements/1.1/"
	nsRDF = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"

	packetHeader = "<?xpacket begin=\"\uFEFF\" id=\"W5M0MpCehiHzreSzNTczkc9d\"?>"
	packetFooter = "<?xpacket end=\"w\"?>"

	dcDeclaration = ` xmlns:dc="` + nsDC + `"`
)

// xmpTemplate is the document merged into when an image has no usable XMP.
const xmpTemplate = `<x:xmpmeta xmlns:x="adobe:ns:meta/">
  <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
    <rdf:Description rdf:about="" xmlns:dc="http://purl.org/dc/elements/1.1/">
    </rdf:Description>
  </rdf:RDF>
</x:xmpmeta>`

var (
	xmpMetaPattern = regexp.MustCompile(`(?s)<x:xmpmeta[\s>].*?</x:xmpmeta>`)
	aboutPattern   = regexp.MustCompile(`rdf:about\s*=\s*("[^"]*"|'[^']*')`)

	xmlEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
)

// EmbedXMP writes rec as XMP into data using the default options.
func EmbedXMP(data []byte, rec core.Record) ([]byte, error) {
	return defaultEmbedder.EmbedXMP(data, rec)
}

// EmbedXMP returns a copy of data carrying rec in its XMP packet. An
// existing XMP APP1 segment is merged into and replaced where it stands;
// otherwise a new APP1 segment is inserted directly after SOI.
func (e *Embedder) EmbedXMP(data []byte, rec core.Record) ([]byte, error) {
	if err := CheckSOI(data); err != nil {
		return nil, err
	}
	rec = e.prepare(rec)

	seg, found, err := FindAPP(data, markerAPP1, []byte(xmpHeader))
	if err != nil {
		return nil, err
	}

	doc := []byte(xmpTemplate)
	minSize := e.opts.XMPPadding
	if found {
		packet := seg.Payload(data)[len(xmpHeader):]
		minSize = len(packet)
		if m := xmpMetaPattern.Find(packet); m != nil {
			doc = m
		} else {
			log.Warn().Int("offset", seg.Start).Msg("XMP segment has no x:xmpmeta element, writing a fresh packet")
		}
	}

	merged, err := MergeXMP(doc, rec)
	if err != nil {
		log.Warn().Err(err).Int("offset", seg.Start).Msg("existing XMP is unparseable, writing a fresh packet")
		merged, err = MergeXMP([]byte(xmpTemplate), rec)
		if err != nil {
			return nil, err
		}
	}

	app1, err := buildAPP1(PackageXMP(merged, minSize))
	if err != nil {
		return nil, err
	}
	if found {
		log.Debug().Int("offset", seg.Start).Int("old", seg.End-seg.Start).Int("new", len(app1)).Msg("replacing XMP segment")
		return splice(data, seg.Start, seg.End, app1), nil
	}
	log.Debug().Int("size", len(app1)).Msg("inserting XMP segment after SOI")
	return splice(data, 2, 2, app1), nil
}

// PackageXMP wraps an x:xmpmeta document in xpacket processing
// instructions, padding with spaces so the packet is at least minSize bytes.
func PackageXMP(doc []byte, minSize int) []byte {
	need := len(packetHeader) + len(doc) + 1 + len(packetFooter)
	size := max(need, minSize)

	buf := make([]byte, 0, size)
	buf = append(buf, packetHeader...)
	buf = append(buf, doc...)
	buf = append(buf, bytes.Repeat([]byte{' '}, size-need)...)
	buf = append(buf, '\n')
	buf = append(buf, packetFooter...)
	return buf
}

func buildAPP1(packet []byte) ([]byte, error) {
	payload := len(xmpHeader) + len(packet)
	if payload > maxSegmentPayload {
		return nil, errors.Wrapf(ErrSegmentTooLarge, "XMP payload is %d bytes", payload)
	}
	seg := make([]byte, 0, 4+payload)
	seg = append(seg, 0xff, markerAPP1)
	seg = binary.BigEndian.AppendUint16(seg, uint16(2+payload))
	seg = append(seg, xmpHeader...)
	seg = append(seg, packet...)
	return seg, nil
}

// ─── merge ───────────────────────────────────────────────────────────────────

type span struct {
	start, end int
}

// xmpLayout records where the parts touched by MergeXMP sit in a document.
type xmpLayout struct {
	desc        span // start tag of the first rdf:Description
	descClose   int  // offset of its end tag
	selfClosing bool
	dcInScope   bool            // xmlns:dc visible on the first rdf:Description
	props       map[string]span // first dc:* property of any rdf:Description
}

func isRDF(n xml.Name, local string) bool {
	return n.Local == local && (n.Space == nsRDF || n.Space == "rdf")
}

func isDC(n xml.Name) bool {
	return n.Space == nsDC || n.Space == "dc"
}

// scanXMP parses doc and returns the byte layout of the nodes MergeXMP
// edits. The document itself is never re-serialised.
func scanXMP(doc []byte) (*xmpLayout, error) {
	type frame struct {
		name      xml.Name
		start     int
		dc        bool
		firstDesc bool
	}

	l := &xmpLayout{desc: span{-1, -1}, descClose: -1, props: map[string]span{}}
	dec := xml.NewDecoder(bytes.NewReader(doc))
	var stack []frame
	for {
		before := int(dec.InputOffset())
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "xmp")
		}
		after := int(dec.InputOffset())

		switch t := tok.(type) {
		case xml.StartElement:
			f := frame{name: t.Name, start: before}
			if len(stack) > 0 {
				f.dc = stack[len(stack)-1].dc
			}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" && a.Name.Local == "dc" {
					f.dc = true
				}
			}
			if l.desc.start < 0 && isRDF(t.Name, "Description") {
				l.desc = span{before, after}
				l.dcInScope = f.dc
				f.firstDesc = true
			}
			stack = append(stack, f)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, errors.New("xmp: unbalanced end element")
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if f.firstDesc {
				l.descClose = before
				l.selfClosing = before == after
			}
			if isDC(f.name) && len(stack) > 0 && isRDF(stack[len(stack)-1].name, "Description") {
				if _, seen := l.props[f.name.Local]; !seen {
					l.props[f.name.Local] = span{f.start, after}
				}
			}
		}
	}
	if l.desc.start < 0 || l.descClose < 0 {
		return nil, errors.New("xmp: no rdf:Description element")
	}
	return l, nil
}

type xmpEdit struct {
	start, end int
	text       string
}

// MergeXMP writes rec into an x:xmpmeta document. dc:subject is always
// rebuilt; dc:title and dc:description only when rec sets them. An existing
// property is replaced where it stands, a missing one is added at the end
// of the first rdf:Description. Everything else is kept byte for byte.
func MergeXMP(doc []byte, rec core.Record) ([]byte, error) {
	l, err := scanXMP(doc)
	if err != nil {
		return nil, err
	}

	type prop struct {
		local string
		build func(indent string) string
	}
	props := []prop{{"subject", func(in string) string { return bagBlock("subject", rec.CleanKeywords(), in) }}}
	if rec.Title != "" {
		props = append(props, prop{"title", func(in string) string { return altBlock("title", rec.Title, in) }})
	}
	if rec.Caption != "" {
		props = append(props, prop{"description", func(in string) string { return altBlock("description", rec.Caption, in) }})
	}

	var edits []xmpEdit
	closeIndent := lineIndent(doc, l.descClose)
	if l.selfClosing {
		closeIndent = lineIndent(doc, l.desc.start)
	}
	var added strings.Builder
	for _, p := range props {
		if sp, ok := l.props[p.local]; ok {
			edits = append(edits, xmpEdit{sp.start, sp.end, p.build(lineIndent(doc, sp.start))})
			continue
		}
		in := closeIndent + "  "
		if l.selfClosing {
			added.WriteString("\n" + in)
			added.WriteString(p.build(in))
			continue
		}
		added.WriteString("  ")
		added.WriteString(p.build(in))
		added.WriteString("\n" + closeIndent)
	}

	if !l.dcInScope {
		edits = append(edits, xmpEdit{nsInsertPos(doc, l.desc), nsInsertPos(doc, l.desc), dcDeclaration})
	}
	if l.selfClosing {
		// <rdf:Description .../> has to be opened up to take children
		tagEnd := l.desc.end - len("/>")
		name := elementName(doc, l.desc.start)
		edits = append(edits, xmpEdit{tagEnd, l.desc.end, ">" + added.String() + "\n" + closeIndent + "</" + name + ">"})
	} else if added.Len() > 0 {
		edits = append(edits, xmpEdit{l.descClose, l.descClose, added.String()})
	}

	return applyEdits(doc, edits), nil
}

// applyEdits splices non-overlapping edits into doc. Pure insertions sort
// ahead of a replacement starting at the same offset.
func applyEdits(doc []byte, edits []xmpEdit) []byte {
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].start != edits[j].start {
			return edits[i].start < edits[j].start
		}
		return edits[i].end-edits[i].start < edits[j].end-edits[j].start
	})
	var out bytes.Buffer
	out.Grow(len(doc) + 512)
	cur := 0
	for _, e := range edits {
		out.Write(doc[cur:e.start])
		out.WriteString(e.text)
		cur = e.end
	}
	out.Write(doc[cur:])
	return out.Bytes()
}

// nsInsertPos returns where xmlns:dc goes inside the rdf:Description start
// tag: right after rdf:about="..." when present, else after the tag name.
func nsInsertPos(doc []byte, tag span) int {
	if loc := aboutPattern.FindIndex(doc[tag.start:tag.end]); loc != nil {
		return tag.start + loc[1]
	}
	return tag.start + 1 + len(elementName(doc, tag.start))
}

// elementName returns the qualified name of the start tag at off.
func elementName(doc []byte, off int) string {
	i := off + 1
	for i < len(doc) && !strings.ContainsRune(" \t\r\n/>", rune(doc[i])) {
		i++
	}
	return string(doc[off+1 : i])
}

// lineIndent returns the whitespace between the previous newline and off,
// or "" when anything else precedes off on its line.
func lineIndent(doc []byte, off int) string {
	i := off
	for i > 0 && (doc[i-1] == ' ' || doc[i-1] == '\t') {
		i--
	}
	if i > 0 && doc[i-1] != '\n' && doc[i-1] != '\r' {
		return ""
	}
	return string(doc[i:off])
}

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

// bagBlock renders dc:<local> as an rdf:Bag. The first line carries no
// indentation; later lines are prefixed with indent.
func bagBlock(local string, items []string, indent string) string {
	var b strings.Builder
	b.WriteString("<dc:" + local + ">\n")
	b.WriteString(indent + "  <rdf:Bag>\n")
	for _, it := range items {
		b.WriteString(indent + "    <rdf:li>" + escapeXML(it) + "</rdf:li>\n")
	}
	b.WriteString(indent + "  </rdf:Bag>\n")
	b.WriteString(indent + "</dc:" + local + ">")
	return b.String()
}

// altBlock renders dc:<local> as a single x-default entry of an rdf:Alt.
func altBlock(local, value string, indent string) string {
	var b strings.Builder
	b.WriteString("<dc:" + local + ">\n")
	b.WriteString(indent + "  <rdf:Alt>\n")
	b.WriteString(indent + `    <rdf:li xml:lang="x-default">` + escapeXML(value) + "</rdf:li>\n")
	b.WriteString(indent + "  </rdf:Alt>\n")
	b.WriteString(indent + "</dc:" + local + ">")
	return b.String()
}
