package nodecodec

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleScript = `set cut_paste_input [stack 0]
version 15.0 v1
Constant {
 inputs 0
 name Constant1
}
`

func TestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "nodes.nk")
	if err := os.WriteFile(src, []byte(sampleScript), 0644); err != nil {
		t.Fatal(err)
	}

	blob, err := EncodeFile(src)
	if err != nil {
		t.Fatalf("EncodeFile failed: %v", err)
	}
	if strings.Contains(blob, "\n") {
		t.Error("blob must be a single line")
	}

	dst := filepath.Join(dir, "out", "imported.nk")
	if err := DecodeToFile(blob, dst); err != nil {
		t.Fatalf("DecodeToFile failed: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != sampleScript {
		t.Errorf("round trip mismatch:\n%s", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode(""); !errors.Is(err, ErrEmptyBlob) {
		t.Errorf("expected ErrEmptyBlob, got %v", err)
	}
	if _, err := Decode("not base64!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestEncodeFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := EncodeFile(filepath.Join(dir, "missing.nk")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := EncodeFile(dir); err == nil {
		t.Error("expected error for directory")
	}
}
