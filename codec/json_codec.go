package codec

import "encoding/json"

// JSON marshals bodies with encoding/json: human-readable, cross-language,
// the natural default for SEND bodies exchanged with non-Go consumers.
type JSON struct{}

func (c *JSON) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (c *JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (c *JSON) ContentType() string                { return "application/json" }
func (c *JSON) Type() Type                         { return TypeJSON }
