package jpg

import "github.com/pkg/errors"

var (
	// ErrInvalidJPEG is returned when the input does not start with the
	// Start-Of-Image marker 0xFFD8.
	ErrInvalidJPEG = errors.New("invalid JPEG: missing SOI marker")

	// ErrMalformedJPEG is returned when the marker stream ahead of the scan
	// data cannot be walked.
	ErrMalformedJPEG = errors.New("jpeg: malformed marker stream")

	// ErrDatasetTooLarge is returned when an IPTC dataset payload does not
	// fit the 15-bit length field of a standard dataset.
	ErrDatasetTooLarge = errors.New("iptc: dataset payload exceeds 32767 bytes")

	// ErrSegmentTooLarge is returned when a metadata segment would not fit
	// the 16-bit JPEG segment length field.
	ErrSegmentTooLarge = errors.New("jpeg: segment exceeds 65535 bytes")

	// ErrInvalidBase64 is returned by EmbedBase64 for undecodable input.
	ErrInvalidBase64 = errors.New("invalid base64 image data")
)
