package storage

// StorageClient caches avatar images into object storage and returns the
// public URL they are served from.
type StorageClient interface {
	UploadAvatar(userID string, sourceHash string, imageData []byte) (string, error)
}
