// Copyright (c) 2025 The Span developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package transfers

import (
	"bytes"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanlabs/span/bridge"
	"github.com/spanlabs/span/lvldb"
	"github.com/spanlabs/span/settle"
	"github.com/spanlabs/span/span"
	"github.com/spanlabs/span/tree"
)

func newTestServer(t *testing.T) (*httptest.Server, *bridge.Core) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &bridge.Config{Networks: []bridge.Network{
		{ID: 1, Name: "origin"},
		{ID: 2, Name: "remote"},
	}}
	verifier := settle.VerifierFunc(func(_ span.Bytes32, _, _ []byte) error { return nil })
	core := bridge.New(db, cfg, verifier, span.Bytes32{}, nil)
	require.NoError(t, core.Initialize())

	router := mux.NewRouter()
	New(core).Mount(router, "/transfers")
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, core
}

func postJSON(t *testing.T, url string, body any) (int, []byte) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer res.Body.Close()
	payload, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, payload
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil && res.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func TestNetworksEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var networks []bridge.Network
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/transfers/networks", &networks))
	assert.Len(t, networks, 2)
}

func TestDepositEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	deposit := &bridge.DepositRecord{
		Amount:             big.NewInt(5000),
		AssetID:            span.BytesToBytes32([]byte("native")),
		Recipient:          span.BytesToAddress([]byte("recipient")),
		DestinationNetwork: 2,
	}
	code, payload := postJSON(t, srv.URL+"/transfers/1/deposits", deposit)
	require.Equal(t, http.StatusOK, code, string(payload))
	var receipt DepositReceipt
	require.NoError(t, json.Unmarshal(payload, &receipt))
	assert.Equal(t, uint64(0), receipt.Index)
	assert.False(t, receipt.Root.IsZero())

	var status RootStatus
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/transfers/1/deposits/root", &status))
	assert.Equal(t, receipt.Root, status.Root)
	assert.Equal(t, uint64(1), status.Count)

	var proof tree.Proof
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/transfers/1/deposits/0/proof", &proof))
	assert.True(t, proof.Existence)
	assert.True(t, tree.Verify(&proof, receipt.Root))

	// deposits on an unknown network are rejected
	code, _ = postJSON(t, srv.URL+"/transfers/9/deposits", deposit)
	assert.Equal(t, http.StatusBadRequest, code)

	// as are zero-amount records
	code, _ = postJSON(t, srv.URL+"/transfers/1/deposits", &bridge.DepositRecord{
		Amount:             big.NewInt(0),
		Recipient:          deposit.Recipient,
		DestinationNetwork: 2,
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestClaimEndpoints(t *testing.T) {
	srv, core := newTestServer(t)

	deposit := &bridge.DepositRecord{
		Amount:             big.NewInt(5000),
		AssetID:            span.BytesToBytes32([]byte("native")),
		Recipient:          span.BytesToAddress([]byte("recipient")),
		DestinationNetwork: 2,
	}
	index, root, err := core.RecordDeposit(1, deposit, 100)
	require.NoError(t, err)
	proof, err := core.ProveDeposit(1, index)
	require.NoError(t, err)

	claim := ClaimRequest{
		Record: bridge.ClaimRecord{
			SourceDepositIndex: index,
			SourceNetwork:      1,
			SourceRoot:         root,
			Claimer:            deposit.Recipient,
			Recipient:          deposit.Recipient,
			Amount:             deposit.Amount,
			AssetID:            deposit.AssetID,
			Timestamp:          200,
			DestinationNetwork: 2,
		},
		Proof: *proof,
	}

	// without quorum confirmation of the source root the claim conflicts
	code, _ := postJSON(t, srv.URL+"/transfers/claims", &claim)
	assert.Equal(t, http.StatusConflict, code)

	var claimed map[string]bool
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/transfers/1/claimed/0", &claimed))
	assert.False(t, claimed["claimed"])
}
