// Package storage defines types and primitives for asset storage.
// Assets are opaque uploaded media (photos, documents); workflow step
// payloads only ever reference them by ref.
package storage

import (
	"context"
	"errors"

	"github.com/roomworks/roomflow/workflow"
)

var (
	// ErrNotFound is returned when no asset exists for a ref.
	ErrNotFound = errors.New("asset not found")

	ErrEmptyAsset = errors.New("empty asset")
	ErrMissingRef = errors.New("missing asset ref")
)

// Asset is one uploaded media blob.
type Asset struct {
	ContentType string
	Data        []byte
}

// Validate checks for missing values.
func (a *Asset) Validate() error {
	if a == nil || len(a.Data) < 1 {
		return ErrEmptyAsset
	}
	return nil
}

type Storage interface {
	// StoreAsset stores a and returns its newly assigned ref.
	StoreAsset(ctx context.Context, a *Asset) (workflow.AssetRef, error)

	// RetrieveAsset returns the asset for ref.
	// ErrNotFound is returned if ref has not been stored.
	RetrieveAsset(ctx context.Context, ref workflow.AssetRef) (*Asset, error)
}
