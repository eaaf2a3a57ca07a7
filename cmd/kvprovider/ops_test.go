package main

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"github.com/gezibash/wasmbus/internal/cli"
	"github.com/gezibash/wasmbus/internal/keyvalue"
)

func TestListOperations(t *testing.T) {
	var buf bytes.Buffer
	if err := listOperations(cli.NewOutput(cli.FormatJSON, &buf)); err != nil {
		t.Fatalf("listOperations: %v", err)
	}

	var got struct {
		Meta cli.Meta `json:"meta"`
		Data []string `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	if got.Meta.Type != "wasmcloud:keyvalue/operations" {
		t.Errorf("type = %q", got.Meta.Type)
	}
	if len(got.Data) != 14 || !slices.IsSorted(got.Data) {
		t.Errorf("operations = %v, want 14 sorted names", got.Data)
	}
	for _, op := range keyvalue.MutatingOperations {
		if !slices.Contains(got.Data, op) {
			t.Errorf("missing %s", op)
		}
	}
}

func TestOpsCommandText(t *testing.T) {
	cmd := newOpsCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("ops: %v", err)
	}
	for _, op := range []string{keyvalue.OpGet, keyvalue.OpSetQuery, keyvalue.OpKeyExists} {
		if !strings.Contains(buf.String(), op) {
			t.Errorf("text output missing %s:\n%s", op, buf.String())
		}
	}
}
