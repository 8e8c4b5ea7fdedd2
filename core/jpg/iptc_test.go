package jpg

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/stocktag/metaembed/core"
)

func TestEncodeIPTCBytes(t *testing.T) {
	got, err := EncodeIPTC(core.Record{Title: "A"})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0x1c, 0x01, 0x5a, 0x00, 0x03, 0x1b, 0x25, 0x47,
		0x1c, 0x02, 0x05, 0x00, 0x01, 'A',
	}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeIPTC = % x, want % x", got, want)
	}
}

func TestEncodeIPTCOrder(t *testing.T) {
	block, err := EncodeIPTC(core.Record{Title: "A", Keywords: []string{"x", "y"}, Caption: "C"})
	if err != nil {
		t.Fatal(err)
	}
	datasets, err := DecodeIPTC(block)
	if err != nil {
		t.Fatal(err)
	}
	want := []Dataset{
		{1, 90, utf8Declaration},
		{2, 5, []byte("A")},
		{2, 25, []byte("x")},
		{2, 25, []byte("y")},
		{2, 120, []byte("C")},
	}
	if d := cmp.Diff(want, datasets); d != "" {
		t.Errorf("datasets (-want +got):\n%s", d)
	}
}

func TestEncodeIPTCEmptyRecord(t *testing.T) {
	block, err := EncodeIPTC(core.Record{})
	if err != nil {
		t.Fatal(err)
	}
	// only the character set declaration
	if len(block) != 8 {
		t.Errorf("empty record encoded to % x", block)
	}
}

func TestEncodeIPTCKeywordCleanup(t *testing.T) {
	block, err := EncodeIPTC(core.Record{Keywords: []string{"  ", "a", " ", "", " b "}})
	if err != nil {
		t.Fatal(err)
	}
	datasets, _ := DecodeIPTC(block)
	var kws []string
	for _, ds := range datasets {
		if ds.Record == 2 && ds.Number == 25 {
			kws = append(kws, string(ds.Data))
		}
	}
	if d := cmp.Diff([]string{"a", "b"}, kws); d != "" {
		t.Errorf("keywords (-want +got):\n%s", d)
	}
}

func TestEncodeIPTCUTF8(t *testing.T) {
	rec := core.Record{Title: "Закат", Keywords: []string{"日本", "café"}, Caption: "Über 🌅"}
	block, err := EncodeIPTC(rec)
	if err != nil {
		t.Fatal(err)
	}
	datasets, _ := DecodeIPTC(block)
	got := RecordFromIPTC(datasets)
	if d := cmp.Diff(rec, got); d != "" {
		t.Errorf("record (-want +got):\n%s", d)
	}
}

func TestEncodeIPTCDatasetLimit(t *testing.T) {
	if _, err := EncodeIPTC(core.Record{Caption: strings.Repeat("a", 32767)}); err != nil {
		t.Errorf("32767 byte caption: %v", err)
	}

	cases := []core.Record{
		{Title: strings.Repeat("t", 32768)},
		{Keywords: []string{"ok", strings.Repeat("k", 40000)}},
		{Caption: strings.Repeat("é", 20000)}, // 40000 bytes
	}
	for _, rec := range cases {
		_, err := EncodeIPTC(rec)
		if !errors.Is(err, ErrDatasetTooLarge) {
			t.Errorf("want ErrDatasetTooLarge, got %v", err)
		}
	}
}

func TestDecodeIPTCExtended(t *testing.T) {
	// 2:120 with a 4-byte extended length of 3
	block := []byte{
		0x1c, 0x02, 0x78, 0x80, 0x04, 0x00, 0x00, 0x00, 0x03, 'a', 'b', 'c',
		0x00, // padding between datasets
		0x1c, 0x02, 0x05, 0x00, 0x01, 'T',
	}
	datasets, err := DecodeIPTC(block)
	if err != nil {
		t.Fatal(err)
	}
	want := []Dataset{{2, 120, []byte("abc")}, {2, 5, []byte("T")}}
	if d := cmp.Diff(want, datasets); d != "" {
		t.Errorf("datasets (-want +got):\n%s", d)
	}
}

func TestDecodeIPTCTruncated(t *testing.T) {
	for _, block := range [][]byte{
		{0x1c, 0x02, 0x05},
		{0x1c, 0x02, 0x05, 0x00, 0x09, 'a'},
		{0x1c, 0x02, 0x05, 0x80, 0x08},
	} {
		if _, err := DecodeIPTC(block); err == nil {
			t.Errorf("DecodeIPTC(% x) succeeded", block)
		}
	}
}

func TestRecordFromIPTCLegacyCharset(t *testing.T) {
	datasets := []Dataset{
		{2, 5, []byte("caf\xe9")},
		{2, 25, []byte("na\xefve")},
		{2, 120, []byte("plain")},
	}
	want := core.Record{Title: "café", Keywords: []string{"naïve"}, Caption: "plain"}
	if d := cmp.Diff(want, RecordFromIPTC(datasets)); d != "" {
		t.Errorf("record (-want +got):\n%s", d)
	}
}

func TestIPTCFields(t *testing.T) {
	block, _ := EncodeIPTC(core.Record{Title: "T", Keywords: []string{"k"}})
	datasets, _ := DecodeIPTC(append(block, 0x1c, 0x02, 0x74, 0x00, 0x01, 'c'))
	fields := iptcFields(datasets)
	want := []core.MetaField{
		{Key: "Title", Value: "T", Category: "IPTC", Editable: true, Raw: "2:05"},
		{Key: "Keywords", Value: "k", Category: "IPTC", Editable: true, Raw: "2:25"},
		{Key: "CopyrightNotice", Value: "c", Category: "IPTC", Raw: "2:116"},
	}
	if d := cmp.Diff(want, fields); d != "" {
		t.Errorf("fields (-want +got):\n%s", d)
	}
}
