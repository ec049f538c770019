package storage

import "context"

// FileDeleter is the storage collaborator consumed by the draftwatch
// cleanup executor. Implementations must be safe for concurrent use.
type FileDeleter interface {
	DeleteFile(ctx context.Context, key string) error
}

// DraftUploader uploads draft attachment bytes and returns the object key
type DraftUploader interface {
	UploadDraft(ctx context.Context, data []byte, userID, originalFilename string) (*UploadResult, error)
}

// Lister enumerates object keys under a prefix (used by the orphan sweep)
type Lister interface {
	ListPrefix(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

var _ FileDeleter = (*S3Store)(nil)
var _ DraftUploader = (*S3Store)(nil)
var _ Lister = (*S3Store)(nil)
