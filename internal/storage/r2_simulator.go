package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// R2Simulator returns deterministic public URLs without touching object
// storage. Used in tests and local runs without R2 credentials.
type R2Simulator struct {
	bucket   string
	endpoint string
}

func NewR2Simulator(bucket, endpoint string) *R2Simulator {
	return &R2Simulator{
		bucket:   strings.TrimSpace(bucket),
		endpoint: strings.TrimSpace(endpoint),
	}
}

func (r *R2Simulator) UploadAvatar(userID, sourceHash string, imageData []byte) (string, error) {
	if len(imageData) == 0 {
		return "", fmt.Errorf("empty image data")
	}
	return r.UploadAvatarSimulated(userID, sourceHash), nil
}

func (r *R2Simulator) UploadAvatarSimulated(userID, sourceHash string) string {
	sum := sha256.Sum256([]byte(userID + ":" + sourceHash))
	key := hex.EncodeToString(sum[:])

	ep := r.endpoint
	if ep == "" {
		ep = "https://r2.example.invalid"
	}
	bucket := r.bucket
	if bucket == "" {
		bucket = "nexus-avatars"
	}

	return fmt.Sprintf("%s/%s/avatars/%s.png", strings.TrimRight(ep, "/"), bucket, key)
}
