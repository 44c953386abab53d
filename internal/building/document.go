package building

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Body is the layout payload shared by exported documents and the backend
// building-config endpoint. Floor keys are decimal strings.
type Body struct {
	AboveCount  int                 `json:"aboveCount"`
	BelowCount  int                 `json:"belowCount"`
	Backgrounds map[string]string   `json:"backgrounds"`
	Cameras     map[string][]Camera `json:"cameras"`
	Zones       map[string][]Zone   `json:"zones"`
}

// Document is the portable export file
type Document struct {
	Body
	BuildingName string `json:"buildingName"`
}

// BodyFromConfig converts a layout into its wire form. Background
// references are reduced to bare filenames.
func BodyFromConfig(cfg Config) Body {
	b := Body{
		AboveCount:  cfg.Range.Above,
		BelowCount:  cfg.Range.Below,
		Backgrounds: make(map[string]string, len(cfg.Backgrounds)),
		Cameras:     make(map[string][]Camera, len(cfg.Cameras)),
		Zones:       make(map[string][]Zone, len(cfg.Zones)),
	}
	for f, ref := range cfg.Backgrounds {
		if ref == "" {
			continue
		}
		b.Backgrounds[floorKey(f)] = BaseName(ref)
	}
	for f, cams := range cfg.Cameras {
		b.Cameras[floorKey(f)] = cams
	}
	for f, zones := range cfg.Zones {
		b.Zones[floorKey(f)] = zones
	}
	return b
}

// ConfigFromBody converts the wire form back into a layout, expanding
// background filenames against uploadsBase.
func ConfigFromBody(b Body, uploadsBase string) (Config, error) {
	cfg := Config{
		Range:       FloorRange{Above: b.AboveCount, Below: b.BelowCount},
		Backgrounds: map[Floor]string{},
		Cameras:     map[Floor][]Camera{},
		Zones:       map[Floor][]Zone{},
	}
	for k, name := range b.Backgrounds {
		f, err := parseFloorKey(k)
		if err != nil {
			return Config{}, err
		}
		cfg.Backgrounds[f] = ExpandFilename(uploadsBase, name)
	}
	for k, cams := range b.Cameras {
		f, err := parseFloorKey(k)
		if err != nil {
			return Config{}, err
		}
		cfg.Cameras[f] = cams
	}
	for k, zones := range b.Zones {
		f, err := parseFloorKey(k)
		if err != nil {
			return Config{}, err
		}
		cfg.Zones[f] = zones
	}
	return cfg, nil
}

// Export serializes a layout as an indented, portable JSON document
func Export(cfg Config) ([]byte, error) {
	doc := Document{Body: BodyFromConfig(cfg), BuildingName: cfg.Name}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}

// Import parses an exported document. Only fields present in the document
// are reported in Fields; the caller applies them to its model. Any
// malformed input yields ErrMalformedDocument and nothing to apply.
func Import(data []byte, uploadsBase string) (Config, Fields, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, Fields{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	var (
		doc    Document
		fields Fields
	)
	decoders := []struct {
		key  string
		kind byte
		set  *bool
		dst  any
	}{
		{"buildingName", '"', &fields.Name, &doc.BuildingName},
		{"aboveCount", '0', &fields.Above, &doc.AboveCount},
		{"belowCount", '0', &fields.Below, &doc.BelowCount},
		{"backgrounds", '{', &fields.Backgrounds, &doc.Backgrounds},
		{"cameras", '{', &fields.Cameras, &doc.Cameras},
		{"zones", '{', &fields.Zones, &doc.Zones},
	}
	for _, d := range decoders {
		msg, ok := raw[d.key]
		if !ok {
			continue
		}
		// Null and wrongly typed fields are left out, as if absent.
		if jsonKind(msg) != d.kind {
			continue
		}
		if err := json.Unmarshal(msg, d.dst); err != nil {
			return Config{}, Fields{}, fmt.Errorf("%w: field %q: %v", ErrMalformedDocument, d.key, err)
		}
		*d.set = true
	}

	cfg, err := ConfigFromBody(doc.Body, uploadsBase)
	if err != nil {
		return Config{}, Fields{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	cfg.Name = doc.BuildingName
	return cfg, fields, nil
}

// jsonKind classifies a raw value: '"' string, '0' number, '{' object,
// '[' array, 'b' boolean, 'n' null
func jsonKind(msg json.RawMessage) byte {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 {
		return 'n'
	}
	switch c := msg[0]; {
	case c == '"', c == '{', c == '[':
		return c
	case c == '-' || (c >= '0' && c <= '9'):
		return '0'
	case c == 't' || c == 'f':
		return 'b'
	}
	return 'n'
}

func floorKey(f Floor) string {
	return strconv.Itoa(int(f))
}

func parseFloorKey(k string) (Floor, error) {
	n, err := strconv.Atoi(k)
	if err != nil {
		return 0, fmt.Errorf("floor key %q is not an integer", k)
	}
	if n == 0 {
		return 0, fmt.Errorf("floor key %q: %w", k, ErrInvalidFloor)
	}
	return Floor(n), nil
}

// BaseName strips host, path and query from an image reference, leaving the
// filename. Inline data URLs are returned unchanged.
func BaseName(ref string) string {
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ref
	}
	p := ref
	if u, err := url.Parse(ref); err == nil {
		p = u.Path
	}
	name := path.Base(p)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// ExpandFilename builds {base}/uploads/{name}. References that are already
// absolute URLs, rooted paths or data URLs are returned unchanged.
func ExpandFilename(base, name string) string {
	if name == "" || base == "" {
		return name
	}
	if strings.Contains(name, "://") || strings.HasPrefix(name, "data:") || strings.HasPrefix(name, "/") {
		return name
	}
	return strings.TrimRight(base, "/") + "/uploads/" + name
}
