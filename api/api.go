// Copyright (c) 2025 The Span developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package api exposes the bridge over HTTP, one subpackage per resource.
package api

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/spanlabs/span/api/admin"
	"github.com/spanlabs/span/api/attestations"
	"github.com/spanlabs/span/api/events"
	"github.com/spanlabs/span/api/settlement"
	"github.com/spanlabs/span/api/transfers"
	"github.com/spanlabs/span/api/validators"
	"github.com/spanlabs/span/bridge"
	"github.com/spanlabs/span/eventdb"
	"github.com/spanlabs/span/log"
)

var logger = log.WithContext("pkg", "api")

type Options struct {
	AllowedOrigins  string
	PprofOn         bool
	EnableReqLogger bool
	EnableMetrics   bool
	LogLevel        *slog.LevelVar
}

// New returns the api handler for the given bridge core and event feed.
func New(core *bridge.Core, eventDB *eventdb.EventDB, opts Options) http.HandlerFunc {
	origins := strings.Split(strings.TrimSpace(opts.AllowedOrigins), ",")
	for i, o := range origins {
		origins[i] = strings.ToLower(strings.TrimSpace(o))
	}

	router := mux.NewRouter()

	validators.New(core).
		Mount(router, "/validators")
	attestations.New(core).
		Mount(router, "/attestations")
	transfers.New(core).
		Mount(router, "/transfers")
	settlement.New(core).
		Mount(router, "/settlement")
	events.New(eventDB).
		Mount(router, "/events")
	if opts.LogLevel != nil {
		admin.New(opts.LogLevel).
			Mount(router, "/admin")
	}

	if opts.PprofOn {
		router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		router.HandleFunc("/debug/pprof/profile", pprof.Profile)
		router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		router.HandleFunc("/debug/pprof/trace", pprof.Trace)
		router.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
	}

	if opts.EnableMetrics {
		router.Use(metricsMiddleware)
	}

	handler := handlers.CompressHandler(router)
	handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"content-type"}),
	)(handler)

	if opts.EnableReqLogger {
		handler = RequestLoggerHandler(handler, logger)
	}

	return handler.ServeHTTP
}
