package wasmbus

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Serialize encodes v as a msgpack map keyed by field name.
func Serialize(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serialize %T: %w", v, err)
	}
	return b, nil
}

// Deserialize decodes msgpack data into v. Unknown fields are ignored and
// missing fields keep their zero value.
func Deserialize(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to de-serialize %T: %w", v, err)
	}
	return nil
}
