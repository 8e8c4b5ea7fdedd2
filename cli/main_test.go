package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/stocktag/metaembed/core"
)

var bareJPEG = []byte{
	0xff, 0xd8,
	0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00,
	0xff, 0xda, 0x00, 0x08, 0x01, 0x01, 0x00, 0x00, 0x3f, 0x00,
	0x55, 0xaa,
	0xff, 0xd9,
}

func TestEmbed64AndRecord(t *testing.T) {
	in := strings.NewReader(base64.StdEncoding.EncodeToString(bareJPEG) + "\n")
	var out bytes.Buffer
	args := []string{"-title", "Sunset", "-keywords", "sky, orange,", "-caption", "A sunset"}
	if err := runEmbed64(args, in, &out); err != nil {
		t.Fatal(err)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "out.jpg")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := printRecord(path, &buf); err != nil {
		t.Fatal(err)
	}
	var got core.Record
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	want := core.Record{Title: "Sunset", Keywords: []string{"sky", "orange"}, Caption: "A sunset"}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("record (-want +got):\n%s", d)
	}
}

func TestEmbed64RejectsGarbage(t *testing.T) {
	var out bytes.Buffer
	if err := runEmbed64([]string{"-title", "x"}, strings.NewReader("%%%"), &out); err == nil {
		t.Error("expected an error for invalid base64")
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestEmbedBatch(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.jpg")
	bad := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(good, bareJPEG, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := runEmbed([]string{"-title", "Batch", "-j", "2", good, bad})
	if err == nil || !strings.Contains(err.Error(), "1 of 2 files failed") {
		t.Fatalf("runEmbed = %v", err)
	}

	var buf bytes.Buffer
	if err := printRecord(good, &buf); err != nil {
		t.Fatal(err)
	}
	var got core.Record
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Title != "Batch" {
		t.Errorf("title = %q, want Batch", got.Title)
	}
	if data, _ := os.ReadFile(bad); string(data) != "plain text" {
		t.Errorf("failed file rewritten: %q", data)
	}

	if err := runEmbed([]string{"-out", filepath.Join(dir, "x.jpg"), good, bad}); err == nil {
		t.Error("-out with two inputs should be rejected")
	}
}

func TestRecordFlags(t *testing.T) {
	rf := recordFlags{keywords: "a;b", replaceAPP13: true, nfc: true}
	if d := cmp.Diff([]string{"a", "b"}, rf.record().Keywords); d != "" {
		t.Errorf("keywords (-want +got):\n%s", d)
	}
	opts := rf.options()
	if opts.KeepPhotoshopResources || !opts.NormalizeNFC || opts.XMPPadding != 2048 {
		t.Errorf("options = %+v", opts)
	}
}
