package repository

import "context"

// ImageFetcher downloads raw image bytes.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ImageEmbedder turns an encoded image into a dense embedding vector.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
	// Available reports whether a remote model is configured.
	Available() bool
}
