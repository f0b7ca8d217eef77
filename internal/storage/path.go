package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildArchivePath lays archives out by UTC day:
// <prefix>/date=YYYY-MM-DD/history-<unix seconds>-<archive id>.parquet
func BuildArchivePath(prefix string, createdAt time.Time, archiveID string) (string, error) {
	segments, err := splitPrefix(prefix)
	if err != nil {
		return "", err
	}
	if err := validatePathComponent(archiveID, "archive id"); err != nil {
		return "", err
	}

	ts := createdAt.UTC()
	segments = append(segments,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("history-%d-%s.parquet", ts.Unix(), archiveID),
	)
	return path.Join(segments...), nil
}

func splitPrefix(prefix string) ([]string, error) {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, nil
	}
	parts := strings.Split(prefix, "/")
	for _, part := range parts {
		if err := validatePathComponent(part, "archive prefix"); err != nil {
			return nil, err
		}
	}
	return parts, nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
