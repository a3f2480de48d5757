// Package nodecodec converts node-graph documents to and from the opaque
// payload blob carried in mail.
package nodecodec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// MaxDocumentSize caps documents read from disk
const MaxDocumentSize = 16 << 20

// ErrEmptyBlob is returned when decoding a mail with nothing attached
var ErrEmptyBlob = errors.New("no nodes attached")

// Encode returns the blob for a document
func Encode(doc []byte) string {
	return base64.StdEncoding.EncodeToString(doc)
}

// Decode returns the document carried by blob
func Decode(blob string) ([]byte, error) {
	if blob == "" {
		return nil, ErrEmptyBlob
	}
	doc, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("invalid node blob: %w", err)
	}
	return doc, nil
}

// EncodeFile reads a document from path and returns its blob
func EncodeFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxDocumentSize {
		return "", fmt.Errorf("%s is too large (%d bytes, max %d)", path, info.Size(), MaxDocumentSize)
	}

	doc, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Encode(doc), nil
}

// DecodeToFile writes the document carried by blob to path
func DecodeToFile(blob, path string) error {
	doc, err := Decode(blob)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, doc, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
