// Package test implements a storage backend test harness for assets.
package test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/roomworks/roomflow/subsystem/asset/storage"
)

// TestAssetStorage runs the asset storage conformance tests.
func TestAssetStorage(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	if _, err := s.StoreAsset(ctx, nil); !errors.Is(err, storage.ErrEmptyAsset) {
		t.Errorf("have %v, want ErrEmptyAsset", err)
	}
	if _, err := s.RetrieveAsset(ctx, "absent"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("have %v, want ErrNotFound", err)
	}

	a := &storage.Asset{ContentType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff, 0xe0}}
	ref, err := s.StoreAsset(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if ref == "" {
		t.Fatal("empty ref")
	}

	got, err := s.RetrieveAsset(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if got.ContentType != a.ContentType || !bytes.Equal(got.Data, a.Data) {
		t.Errorf("asset not round-tripped: %+v", got)
	}

	// refs are unique per upload
	ref2, err := s.StoreAsset(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if ref2 == ref {
		t.Error("duplicate ref for second upload")
	}
}
