// Copyright (c) 2025 The Span developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package admin

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanlabs/span/log"
)

func newTestServer(t *testing.T) (*httptest.Server, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(log.LevelInfo)

	router := mux.NewRouter()
	New(level).Mount(router, "/admin")
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, level
}

func TestGetLogLevel(t *testing.T) {
	srv, _ := newTestServer(t)

	res, err := http.Get(srv.URL + "/admin/loglevel")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body LogLevel
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "INFO", body.Level)
}

func TestSetLogLevel(t *testing.T) {
	srv, level := newTestServer(t)

	res, err := http.Post(srv.URL+"/admin/loglevel", "application/json",
		bytes.NewReader([]byte(`{"level":"debug"}`)))
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, log.LevelDebug, level.Level())

	res, err = http.Post(srv.URL+"/admin/loglevel", "application/json",
		bytes.NewReader([]byte(`{"level":"loud"}`)))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, log.LevelDebug, level.Level())
}
