package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/palantiri/internal/errtrack"
)

func DecodeReportCursor(cursorStr string) (*errtrack.Cursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &errtrack.Cursor{
		CreatedAt: time.Unix(0, createdAt).UTC(),
		ReportID:  parts[1],
	}, nil
}

func EncodeReportCursor(cursor *errtrack.Cursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.ReportID)
	return base64.URLEncoding.EncodeToString([]byte(cs))
}
