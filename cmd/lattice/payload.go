package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/gezibash/wasmbus/pkg/wasmbus"
)

// readPayload returns the JSON argument, or stdin when no argument is
// given and stdin is not a terminal. An absent payload is an empty object.
func readPayload(arg string, stdin *os.File) ([]byte, error) {
	if arg != "" {
		return []byte(arg), nil
	}
	if stdin != nil && !isatty.IsTerminal(stdin.Fd()) && !isatty.IsCygwinTerminal(stdin.Fd()) {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		if len(bytes.TrimSpace(data)) > 0 {
			return data, nil
		}
	}
	return []byte("{}"), nil
}

// jsonToMsgpack converts a JSON document into the msgpack form operations
// decode their arguments from. Integral numbers stay integers.
func jsonToMsgpack(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parse json payload: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("parse json payload: trailing data")
	}
	return wasmbus.Serialize(fromJSON(v))
}

func fromJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = fromJSON(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = fromJSON(e)
		}
		return t
	default:
		return v
	}
}

// msgpackToValue decodes an operation result for rendering. Results that
// are not msgpack are returned as a string.
func msgpackToValue(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	var v any
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	return toRenderable(v)
}

func toRenderable(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = toRenderable(e)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = toRenderable(e)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = toRenderable(e)
		}
		return t
	case []byte:
		return string(t)
	default:
		return v
	}
}

// compactJSON renders v on one line for text output.
func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSpace(string(data))
}
