package building

import "errors"

var (
	ErrInvalidRange      = errors.New("invalid floor range")
	ErrInvalidFloor      = errors.New("invalid floor")
	ErrCameraNotFound    = errors.New("camera not found")
	ErrZoneNotFound      = errors.New("zone not found")
	ErrPointIndex        = errors.New("zone point index out of range")
	ErrUnknownField      = errors.New("unknown camera field")
	ErrMalformedDocument = errors.New("malformed building document")
)
