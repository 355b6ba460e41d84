package session

import (
	"context"
	"strings"
)

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string, joinCodeLength int) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(joinCodeLength), nil
	}
	return NewPostgresStore(ctx, databaseURL, joinCodeLength)
}
