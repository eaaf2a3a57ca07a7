package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gezibash/wasmbus/pkg/wasmbus"
)

func TestReadPayload(t *testing.T) {
	t.Run("argument wins", func(t *testing.T) {
		got, err := readPayload(`{"key":"k"}`, nil)
		if err != nil || string(got) != `{"key":"k"}` {
			t.Errorf("readPayload = %q, %v", got, err)
		}
	})

	t.Run("nil stdin defaults to empty object", func(t *testing.T) {
		got, err := readPayload("", nil)
		if err != nil || string(got) != "{}" {
			t.Errorf("readPayload = %q, %v", got, err)
		}
	})

	t.Run("reads piped file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "payload.json")
		if err := os.WriteFile(path, []byte(`{"key":"piped"}`), 0o600); err != nil {
			t.Fatal(err)
		}
		f, err := os.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		got, err := readPayload("", f)
		if err != nil || string(got) != `{"key":"piped"}` {
			t.Errorf("readPayload = %q, %v", got, err)
		}
	})

	t.Run("blank input defaults to empty object", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "blank")
		if err := os.WriteFile(path, []byte("  \n"), 0o600); err != nil {
			t.Fatal(err)
		}
		f, err := os.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		got, err := readPayload("", f)
		if err != nil || string(got) != "{}" {
			t.Errorf("readPayload = %q, %v", got, err)
		}
	})
}

func TestJSONToMsgpack(t *testing.T) {
	data, err := jsonToMsgpack([]byte(`{"key":"counter","value":3,"ratio":0.5,"tags":["a","b"]}`))
	if err != nil {
		t.Fatalf("jsonToMsgpack: %v", err)
	}

	var args struct {
		Key   string   `msgpack:"key"`
		Value int32    `msgpack:"value"`
		Ratio float64  `msgpack:"ratio"`
		Tags  []string `msgpack:"tags"`
	}
	if err := wasmbus.Deserialize(data, &args); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if args.Key != "counter" || args.Value != 3 || args.Ratio != 0.5 || len(args.Tags) != 2 {
		t.Errorf("decoded = %+v", args)
	}

	for _, bad := range []string{`{"key":`, `{} {}`} {
		if _, err := jsonToMsgpack([]byte(bad)); err == nil {
			t.Errorf("jsonToMsgpack(%q) succeeded", bad)
		}
	}
}

func TestMsgpackToValue(t *testing.T) {
	if got := msgpackToValue(nil); got != nil {
		t.Errorf("empty = %v", got)
	}

	data, err := wasmbus.Serialize(map[string]any{"value": "v", "exists": true})
	if err != nil {
		t.Fatal(err)
	}
	if got := compactJSON(msgpackToValue(data)); got != `{"exists":true,"value":"v"}` {
		t.Errorf("compactJSON = %s", got)
	}

	if got := msgpackToValue([]byte{0xc1}); got != "\xc1" {
		t.Errorf("non-msgpack result = %q", got)
	}
}

func TestToRenderable(t *testing.T) {
	in := map[any]any{1: []byte("raw"), "list": []any{[]byte("x")}}
	got, ok := toRenderable(in).(map[string]any)
	if !ok {
		t.Fatalf("toRenderable returned %T", toRenderable(in))
	}
	if got["1"] != "raw" {
		t.Errorf("got[1] = %v", got["1"])
	}
	if list := got["list"].([]any); list[0] != "x" {
		t.Errorf("list = %v", list)
	}
}
