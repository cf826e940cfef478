package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const (
	DefaultSnapshotPrefix = "datasets/sales_clean"
	snapshotPointerName   = "LATEST"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// SnapshotDataPath is the parquet object holding one exported snapshot.
func SnapshotDataPath(prefix, snapshotID string, sequence int) (string, error) {
	if err := validatePathComponent(snapshotID, "snapshot id"); err != nil {
		return "", err
	}
	if sequence < 0 {
		return "", fmt.Errorf("sequence must be >= 0")
	}
	return path.Join(
		snapshotPrefix(prefix),
		"snapshot="+snapshotID,
		fmt.Sprintf("part-%05d.parquet", sequence),
	), nil
}

// SnapshotPointerPath is the object whose body names the latest snapshot data path.
func SnapshotPointerPath(prefix string) string {
	return path.Join(snapshotPrefix(prefix), snapshotPointerName)
}

// DocIDFromKey derives a document id from an object key or file name:
// "rag_docs/business_rules.md" becomes "business_rules".
func DocIDFromKey(key string) (string, error) {
	base := path.Base(strings.ReplaceAll(key, "\\", "/"))
	docID := strings.TrimSuffix(base, path.Ext(base))
	if err := validatePathComponent(docID, "document id"); err != nil {
		return "", err
	}
	return docID, nil
}

func snapshotPrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return DefaultSnapshotPrefix
	}
	return prefix
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
