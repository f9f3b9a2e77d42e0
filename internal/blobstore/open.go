package blobstore

import (
	"context"
	"fmt"

	"github.com/padak/ceo-xmass-review/internal/logger"
)

// Open selects a backend by kind ("gcs", "sqlite", "none"). A nil backend
// with a nil error means no remote store is configured; callers fall back
// to local-file writes.
func Open(ctx context.Context, kind, sqlitePath, gcsBucket, gcsEndpoint string, log *logger.Logger) (Backend, error) {
	switch kind {
	case "gcs":
		return OpenGCS(ctx, gcsBucket, gcsEndpoint, log)
	case "sqlite":
		return OpenSQLite(sqlitePath, log)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want gcs, sqlite or none)", kind)
	}
}
