package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildSchemaDescribesScene(t *testing.T) {
	schema := buildSchema()
	if schema.Title != "Arbor Scene" {
		t.Errorf("Title = %q", schema.Title)
	}
	data, err := json.Marshal(schema)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"NodeDocument"`, `"nodeType"`, `"transform"`, `"children"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("schema missing %s", want)
		}
	}
}

func TestWriteSchemaCreatesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "scene.schema.json")
	if err := writeSchema(out, buildSchema()); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(data) {
		t.Error("written schema is not valid JSON")
	}
	if _, err := os.Stat(out + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should have been renamed away")
	}
}
