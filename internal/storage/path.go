package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const ChunksFileName = "chunks.parquet"

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// BuildDocumentPath returns documents/<tenant>/<document>/<name> for the raw
// upload. name is sanitized; tenant and document IDs must already be valid.
func BuildDocumentPath(tenantID, documentID, name string) (string, error) {
	if err := validatePathComponent(tenantID, "tenant id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(documentID, "document id"); err != nil {
		return "", err
	}
	fileName := SanitizeFileName(name)
	if fileName == ChunksFileName {
		fileName = "source-" + fileName
	}
	return path.Join("documents", tenantID, documentID, fileName), nil
}

func BuildChunkPath(tenantID, documentID string) (string, error) {
	if err := validatePathComponent(tenantID, "tenant id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(documentID, "document id"); err != nil {
		return "", err
	}
	return path.Join("documents", tenantID, documentID, ChunksFileName), nil
}

// SanitizeFileName keeps the base name of an uploaded file and replaces
// anything outside [a-zA-Z0-9._-] with underscores.
func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, "._-")
	if len(name) > 128 {
		name = name[len(name)-128:]
	}
	if name == "" {
		return "document.txt"
	}
	return name
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
