package jpg

import (
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"

	"github.com/stocktag/metaembed/core"
)

// Embed writes rec into a JPEG buffer as IPTC and XMP using the default options.
func Embed(data []byte, rec core.Record) ([]byte, error) {
	return defaultEmbedder.Embed(data, rec)
}

// EmbedBase64 is Embed for base64 encoded images.
func EmbedBase64(b64 string, rec core.Record) (string, error) {
	return defaultEmbedder.EmbedBase64(b64, rec)
}

// Embed runs the IPTC embedder and then the XMP embedder on its output.
// Either stage can be run again on the result, with any record, and still
// leaves exactly one APP13 and one XMP segment behind.
func (e *Embedder) Embed(data []byte, rec core.Record) ([]byte, error) {
	out, err := e.EmbedIPTC(data, rec)
	if err != nil {
		return nil, err
	}
	return e.EmbedXMP(out, rec)
}

// EmbedBase64 decodes a base64 JPEG, embeds rec and returns the result as
// standard base64. A leading "data:image/jpeg;base64," prefix and embedded
// whitespace are accepted on input.
func (e *Embedder) EmbedBase64(b64 string, rec core.Record) (string, error) {
	data, err := decodeBase64(b64)
	if err != nil {
		return "", err
	}
	out, err := e.Embed(data, rec)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, errors.Wrap(ErrInvalidBase64, "data URL without payload")
		}
		s = s[i+1:]
	}
	s = strings.Join(strings.Fields(s), "")

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// some clients strip the padding
		var rawErr error
		data, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if rawErr != nil {
			return nil, errors.Wrap(ErrInvalidBase64, err.Error())
		}
	}
	return data, nil
}
