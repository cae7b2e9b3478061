package storage

import "context"

// ObjectStore fetches uploaded import files by key. Imports may arrive
// either as a direct multipart upload or as a reference to an object a
// client already uploaded.
type ObjectStore interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}
