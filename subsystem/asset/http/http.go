// Package http contains HTTP handlers for uploading and fetching assets.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/roomworks/roomflow/http/api"
	"github.com/roomworks/roomflow/logkeys"
	"github.com/roomworks/roomflow/subsystem/asset/storage"
	"github.com/roomworks/roomflow/workflow"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var ErrNoRef = errors.New("no ref provided")

// PutAssetHandler returns an HTTP handler that stores the request body
// as a new asset and responds with its ref.
func PutAssetHandler(store storage.Storage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		data, err := io.ReadAll(r.Body)
		if err != nil {
			logger.Info(logkeys.Message, "reading body", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		r.Body.Close()

		asset := &storage.Asset{
			ContentType: r.Header.Get("Content-Type"),
			Data:        data,
		}
		ref, err := store.StoreAsset(r.Context(), asset)
		if err != nil {
			logger.Info(logkeys.Message, "storing asset", logkeys.Error, err)
			status := 0
			if errors.Is(err, storage.ErrEmptyAsset) {
				status = http.StatusBadRequest
			}
			api.JSONError(w, err, status)
			return
		}

		logger.Debug(logkeys.Message, "stored asset", "ref", string(ref), logkeys.GenericCount, len(data))
		w.Header().Set("Content-Type", "application/json")
		jsonResp := &struct {
			Ref workflow.AssetRef `json:"ref"`
		}{Ref: ref}
		if err = json.NewEncoder(w).Encode(jsonResp); err != nil {
			logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
		}
	}
}

// GetAssetHandler returns an HTTP handler that serves the ":ref" asset bytes.
func GetAssetHandler(store storage.Storage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		ref := flow.Param(r.Context(), "ref")
		if ref == "" {
			api.JSONError(w, ErrNoRef, http.StatusBadRequest)
			return
		}

		asset, err := store.RetrieveAsset(r.Context(), workflow.AssetRef(ref))
		if err != nil {
			logger.Info(logkeys.Message, "retrieving asset", "ref", ref, logkeys.Error, err)
			status := 0
			if errors.Is(err, storage.ErrNotFound) {
				status = http.StatusNotFound
			}
			api.JSONError(w, err, status)
			return
		}

		if asset.ContentType != "" {
			w.Header().Set("Content-Type", asset.ContentType)
		}
		w.Write(asset.Data)
	}
}

// Mux can register HTTP handlers.
// Ostensibly this supports flow router.
type Mux interface {
	// Handle registers the handler for the given pattern.
	Handle(pattern string, handler http.Handler, methods ...string)
}

// HandleAPIv1 registers the asset API handlers into mux.
// API endpoint paths are prepended with prefix.
// Authentication or any other layered handlers are not present.
// They are assumed to be layered with mux, possibly at the Handle call.
func HandleAPIv1(prefix string, mux Mux, logger log.Logger, store storage.Storage) {
	mux.Handle(
		prefix+"/asset",
		PutAssetHandler(store, logger.With("handler", "put asset")),
		"POST",
	)
	mux.Handle(
		prefix+"/asset/:ref",
		GetAssetHandler(store, logger.With("handler", "get asset")),
		"GET",
	)
}
