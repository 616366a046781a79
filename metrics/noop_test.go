// Copyright (c) 2025 The Span developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package metrics

import (
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopMetrics(t *testing.T) {
	server := httptest.NewServer(HTTPHandler())
	t.Cleanup(server.Close)

	count1 := Counter("count1")
	count1.Add(1)
	for range rand.Intn(100) + 1 { // nolint:gosec
		Counter("count2").Add(1)
	}

	hist := Histogram("hist1", nil)
	histVec := HistogramVec("hist2", []string{"zeroOrOne"}, nil)
	countVec := CounterVec("countVec1", []string{"zeroOrOne"})
	for i := range rand.Intn(100) + 1 { // nolint:gosec
		hist.Observe(int64(i))
		histVec.ObserveWithLabels(int64(i), map[string]string{"thisIsNonsense": "butDoesntBreak"})
		countVec.AddWithLabel(int64(i), map[string]string{"thisIsNonsense": "butDoesntBreak"})
	}

	// without initialization the endpoint stays dark
	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
