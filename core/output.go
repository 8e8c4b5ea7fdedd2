package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed, color.Bold)
)

// categoryOrder fixes the order of the text sections; unknown categories
// follow in the order they were first seen.
var categoryOrder = []string{"IPTC", "XMP", "Photoshop", "EXIF", "JPEG"}

// Printer renders metadata and status lines for the CLI.
type Printer struct {
	JSON    bool
	Verbose bool // include raw values
	Writer  io.Writer
}

// NewPrinter returns a Printer writing to stdout.
func NewPrinter(jsonMode, verbose bool) *Printer {
	return &Printer{JSON: jsonMode, Verbose: verbose, Writer: os.Stdout}
}

// PrintMetadata writes m as JSON or as a text report grouped by category.
func (p *Printer) PrintMetadata(m *Metadata) {
	fields := make([]MetaField, len(m.Fields))
	copy(fields, m.Fields)
	if !p.Verbose {
		for i := range fields {
			fields[i].Raw = ""
		}
	}

	if p.JSON {
		enc := json.NewEncoder(p.Writer)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		enc.Encode(Metadata{FilePath: m.FilePath, Format: m.Format, Fields: fields})
		return
	}

	fmt.Fprintf(p.Writer, "File  : %s\nFormat: %s\n", m.FilePath, m.Format)
	if len(fields) == 0 {
		fmt.Fprintln(p.Writer, "(no metadata found)")
		return
	}
	for _, cat := range categories(fields) {
		fmt.Fprintln(p.Writer)
		headerColor.Fprintf(p.Writer, "── %s ──\n", cat)
		tw := tabwriter.NewWriter(p.Writer, 0, 4, 2, ' ', 0)
		for _, f := range fields {
			if f.Category != cat {
				continue
			}
			mark := ""
			if f.Editable {
				mark = "[editable]"
			}
			fmt.Fprintf(tw, "  %s:\t%s\t%s\t%s\n", f.Key, oneLine(f.Value), mark, f.Raw)
		}
		tw.Flush()
	}
}

func categories(fields []MetaField) []string {
	present := map[string]bool{}
	var extra []string
	for _, f := range fields {
		if present[f.Category] {
			continue
		}
		present[f.Category] = true
		known := false
		for _, c := range categoryOrder {
			known = known || c == f.Category
		}
		if !known {
			extra = append(extra, f.Category)
		}
	}
	var out []string
	for _, c := range categoryOrder {
		if present[c] {
			out = append(out, c)
		}
	}
	return append(out, extra...)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// PrintSuccess prints a green status line. Nothing is printed in JSON mode.
func (p *Printer) PrintSuccess(msg string) {
	if !p.JSON {
		successColor.Fprintln(p.Writer, "✓ "+msg)
	}
}

// PrintError prints msg to stderr.
func PrintError(msg string) {
	errorColor.Fprintln(os.Stderr, "✗ Error: "+msg)
}

// ParseKeywords splits a comma or semicolon separated keyword list.
// Whitespace is left alone; the embedders trim each keyword themselves.
func ParseKeywords(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
}

// ResolveOutPath returns dst, or src for an in-place edit when dst is empty.
func ResolveOutPath(src, dst string) string {
	if dst == "" {
		return src
	}
	return dst
}
