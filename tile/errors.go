package tile

import "errors"

// Failure categories. Components wrap these with context so callers can
// classify failures with errors.Is.
var (
	// ErrLoad is returned when an asset resource fails to load.
	ErrLoad = errors.New("tile: load failed")

	// ErrDecode is returned when a source image cannot be decoded.
	ErrDecode = errors.New("tile: decode failed")

	// ErrEncode is returned when the tile compressor rejects its input.
	ErrEncode = errors.New("tile: encode failed")

	// ErrUnknownKind is returned for requests with an unrecognized kind.
	ErrUnknownKind = errors.New("tile: unknown asset kind")
)

// Reason returns a short label for err suitable for logs and metric labels.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrLoad):
		return "load"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrEncode):
		return "encode"
	case errors.Is(err, ErrUnknownKind):
		return "kind"
	default:
		return "io"
	}
}
