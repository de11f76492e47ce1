package codec

import (
	"bytes"
	"encoding/gob"
)

// Binary marshals bodies with encoding/gob. No third-party binary
// serializer appears anywhere in the example pack's dependency surface,
// so this one concern is built on the standard library rather than an
// ecosystem package — see DESIGN.md.
type Binary struct{}

func (c *Binary) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Binary) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (c *Binary) ContentType() string { return "application/octet-stream" }
func (c *Binary) Type() Type          { return TypeBinary }
