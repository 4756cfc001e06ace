// Package http contains HTTP handlers for administering permission grants.
package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/roomworks/roomflow/http/api"
	"github.com/roomworks/roomflow/logkeys"
	"github.com/roomworks/roomflow/subsystem/permission/storage"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// grantParams parses the ":resource" and ":stage" URL parameters.
func grantParams(r *http.Request) (string, int, error) {
	resourceType := flow.Param(r.Context(), "resource")
	stage, err := strconv.Atoi(flow.Param(r.Context(), "stage"))
	return resourceType, stage, err
}

// GetGrantsHandler returns an HTTP handler that lists every grant.
func GetGrantsHandler(store storage.ReadStorage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		grants, err := store.RetrieveGrants(r.Context())
		if err != nil {
			logger.Info(logkeys.Message, "retrieving grants", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}

		logger.Debug(logkeys.Message, "retrieved grants", logkeys.GenericCount, len(grants))
		w.Header().Set("Content-Type", "application/json")
		if err = json.NewEncoder(w).Encode(grants); err != nil {
			logger.Info(logkeys.Message, "encoding json to body", logkeys.Error, err)
			return
		}
	}
}

// PutGrantHandler returns an HTTP handler for storing a grant: the roles
// allowed to review the ":resource" template at the ":stage" stage. The
// body is a JSON array of role names.
func PutGrantHandler(store storage.Storage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		resourceType, stage, err := grantParams(r)
		if err != nil {
			logger.Info(logkeys.Message, "stage parameter", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		logger = logger.With(logkeys.TemplateName, resourceType, logkeys.StageIndex, stage)
		var roles []string
		if err = json.NewDecoder(r.Body).Decode(&roles); err != nil {
			logger.Info(logkeys.Message, "decoding body", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}

		grant := &storage.Grant{ResourceType: resourceType, Stage: stage, Roles: roles}
		if err = store.StoreGrant(r.Context(), grant); err != nil {
			logger.Info(logkeys.Message, "storing grant", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}

		logger.Debug(logkeys.Message, "stored grant", logkeys.GenericCount, len(roles))
		w.WriteHeader(http.StatusNoContent)
	}
}

// DeleteGrantHandler returns an HTTP handler that deletes a grant.
func DeleteGrantHandler(store storage.Storage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		resourceType, stage, err := grantParams(r)
		if err != nil {
			logger.Info(logkeys.Message, "stage parameter", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		logger = logger.With(logkeys.TemplateName, resourceType, logkeys.StageIndex, stage)
		if err = store.DeleteGrant(r.Context(), resourceType, stage); err != nil {
			logger.Info(logkeys.Message, "deleting grant", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}

		logger.Debug(logkeys.Message, "deleted grant")
		w.WriteHeader(http.StatusNoContent)
	}
}

// Mux can register HTTP handlers.
// Ostensibly this supports flow router.
type Mux interface {
	// Handle registers the handler for the given pattern.
	Handle(pattern string, handler http.Handler, methods ...string)
}

// HandleAPIv1 registers the permission API handlers into mux.
// API endpoint paths are prepended with prefix.
// Authentication or any other layered handlers are not present.
// They are assumed to be layered with mux, possibly at the Handle call.
func HandleAPIv1(prefix string, mux Mux, logger log.Logger, store storage.Storage) {
	mux.Handle(
		prefix+"/grants",
		GetGrantsHandler(store, logger.With("handler", "get grants")),
		"GET",
	)
	mux.Handle(
		prefix+"/grant/:resource/:stage",
		PutGrantHandler(store, logger.With("handler", "put grant")),
		"PUT",
	)
	mux.Handle(
		prefix+"/grant/:resource/:stage",
		DeleteGrantHandler(store, logger.With("handler", "delete grant")),
		"DELETE",
	)
}
