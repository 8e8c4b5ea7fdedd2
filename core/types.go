// Package core defines the shared types, interfaces, and format registry
// for metaembed.
package core

import "strings"

// Record is the metadata written into an image. All three fields are
// optional; an empty Title or Caption is skipped entirely by the embedders.
type Record struct {
	Title    string   `json:"title,omitempty"`
	Keywords []string `json:"keywords"`
	Caption  string   `json:"caption,omitempty"`
}

// CleanKeywords returns the keywords with surrounding whitespace removed,
// dropping entries that are blank after trimming. Input order is kept.
func (r Record) CleanKeywords() []string {
	out := make([]string, 0, len(r.Keywords))
	for _, k := range r.Keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out = append(out, k)
	}
	return out
}

// IsEmpty reports whether the record carries no title, caption or usable keyword.
func (r Record) IsEmpty() bool {
	return r.Title == "" && r.Caption == "" && len(r.CleanKeywords()) == 0
}

// MetaField represents a single metadata key-value pair.
type MetaField struct {
	Key      string `json:"key"`           // e.g. "Keywords", "dc:title", "Make"
	Value    string `json:"value"`         // display value
	Category string `json:"category"`      // "IPTC", "XMP", "Photoshop" or "EXIF"
	Editable bool   `json:"editable"`      // written by the embedders
	Raw      string `json:"raw,omitempty"` // dataset tag or signature, when useful
}

// Metadata holds all metadata extracted from a single file.
type Metadata struct {
	FilePath string      `json:"file"`
	Format   string      `json:"format"` // e.g. "JPEG"
	Fields   []MetaField `json:"fields"`
}

// Get returns every value recorded under key in the given category, in
// the order the fields were discovered.
func (m *Metadata) Get(category, key string) []string {
	var out []string
	for _, f := range m.Fields {
		if f.Category == category && f.Key == key {
			out = append(out, f.Value)
		}
	}
	return out
}

// FormatInfo describes what a format handler supports.
type FormatInfo struct {
	Name           string   // "JPEG"
	Extensions     []string // [".jpg", ".jpeg"]
	MediaType      string   // "image"
	MIMETypes      []string
	CanView        bool
	CanEmbed       bool
	EditableFields []string // Names of fields the handler can write
	Notes          string   // Any caveats or notes
}

// Handler is the interface every format must implement.
type Handler interface {
	// View reads and returns all discoverable metadata from path.
	View(path string) (*Metadata, error)
	// Embed writes rec into path, saving to outPath.
	// outPath == "" means in-place edit.
	Embed(path string, outPath string, rec Record) error
	// Info returns format capabilities.
	Info() FormatInfo
}
