// Package main starts a RoomFlow server.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/roomworks/roomflow/engine"
	enginehttp "github.com/roomworks/roomflow/engine/http"
	httpcmd "github.com/roomworks/roomflow/http"
	"github.com/roomworks/roomflow/logkeys"
	assethttp "github.com/roomworks/roomflow/subsystem/asset/http"
	"github.com/roomworks/roomflow/subsystem/permission"
	permhttp "github.com/roomworks/roomflow/subsystem/permission/http"
	"github.com/roomworks/roomflow/workflow/builtin"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/envflag"
	nanohttp "github.com/micromdm/nanolib/http"
	"github.com/micromdm/nanolib/http/trace"
	"github.com/micromdm/nanolib/log/stdlogfmt"
)

// overridden by -ldflags -X
var version = "unknown"

const (
	apiUsername = "roomflow"
	apiRealm    = "roomflow"
)

func main() {
	var (
		flDebug   = flag.Bool("debug", false, "log debug messages")
		flListen  = flag.String("listen", ":9007", "HTTP listen address")
		flVersion = flag.Bool("version", false, "print version and exit")
		flDump    = flag.Bool("dump", false, "dump API request bodies")
		flAPIKey  = flag.String("api", "", "API key for API endpoints")
		flStorage = flag.String("storage", "file", "name of storage backend")
		flDSN     = flag.String("storage-dsn", "", "data source name (e.g. connection string or path)")
		flWorkSec = flag.Uint("worker-interval", uint(engine.DefaultDuration/time.Second), "interval for worker in seconds")
	)
	envflag.Parse("ROOMFLOW_", []string{"version"})

	if *flVersion {
		fmt.Println(version)
		return
	}

	logger := stdlogfmt.New(stdlogfmt.WithDebugFlag(*flDebug))

	// configure storage
	storage, err := parseStorage(*flStorage, *flDSN)
	if err != nil {
		logger.Info(logkeys.Message, "parse storage", logkeys.Error, err)
		os.Exit(1)
	}

	// configure the workflow engine
	gate := permission.NewGate(storage.permission)
	e := engine.New(
		storage.engine,
		gate,
		engine.WithLogger(logger.With("service", "engine")),
		engine.WithCheckStorage(storage.engine),
	)

	// register workflow templates with the engine
	if err = builtin.RegisterAll(e); err != nil {
		logger.Info(logkeys.Message, "registering templates", logkeys.Error, err)
		os.Exit(1)
	}

	// configure the engine worker (async detection check runner)
	var eWorker *engine.Worker
	if *flWorkSec > 0 {
		eWorker = engine.NewWorker(
			e,
			storage.engine,
			builtin.SimulatedChecker{},
			engine.WithWorkerLogger(logger.With("service", "engine worker")),
			engine.WithWorkerDuration(time.Second*time.Duration(*flWorkSec)),
		)
	}

	mux := flow.New()

	mux.Handle("/version", nanohttp.NewJSONVersionHandler(version))

	if *flAPIKey != "" {
		mux.Group(func(mux *flow.Mux) {
			mux.Use(func(h http.Handler) http.Handler {
				if *flDump {
					h = httpcmd.DumpHandler(h, os.Stdout)
				}
				return nanohttp.NewSimpleBasicAuthHandler(h, apiUsername, *flAPIKey, apiRealm)
			})

			enginehttp.HandleAPIv1("/v1", mux, logger, e)
			permhttp.HandleAPIv1("/v1", mux, logger, storage.permission)
			assethttp.HandleAPIv1("/v1", mux, logger, storage.asset)
		})
	}

	if eWorker != nil {
		go func() {
			err := eWorker.Run(context.Background())
			logs := []interface{}{logkeys.Message, "engine worker stopped"}
			if err != nil {
				logger.Info(append(logs, logkeys.Error, err)...)
				return
			}
			logger.Debug(logs...)
		}()
	}

	logger.Info(logkeys.Message, "starting server", "listen", *flListen)
	err = http.ListenAndServe(*flListen, trace.NewTraceLoggingHandler(mux, logger.With("handler", "log"), newTraceID))
	logs := []interface{}{logkeys.Message, "server shutdown"}
	if err != nil {
		logs = append(logs, logkeys.Error, err)
	}
	logger.Info(logs...)
}

// newTraceID generates a new HTTP trace ID for context logging.
// Currently this just makes a random string. This would be better
// served by e.g. https://github.com/oklog/ulid or something like
// https://opentelemetry.io/ someday.
func newTraceID(_ *http.Request) string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
