// Copyright (c) 2025 The Span developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package events

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/spanlabs/span/api/utils"
	"github.com/spanlabs/span/eventdb"
	"github.com/spanlabs/span/log"
	"github.com/spanlabs/span/span"
)

var logger = log.WithContext("pkg", "api")

const (
	maxFilterLimit = 1000
	pollInterval   = time.Second
	pingInterval   = 8 * time.Second
)

type Events struct {
	db       *eventdb.EventDB
	upgrader websocket.Upgrader
}

func New(db *eventdb.EventDB) *Events {
	return &Events{
		db: db,
		upgrader: websocket.Upgrader{
			EnableCompression: true,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
	}
}

// FilterRequest is the wire shape of an event feed query.
type FilterRequest struct {
	Types   []string      `json:"types"`
	Network *uint64       `json:"network"`
	Wallet  *span.Address `json:"wallet"`
	Order   eventdb.Order `json:"order"`
	Offset  uint64        `json:"offset"`
	Limit   *uint64       `json:"limit"`
}

func (r *FilterRequest) toFilter() (*eventdb.Filter, error) {
	limit := uint64(maxFilterLimit)
	if r.Limit != nil {
		if *r.Limit > maxFilterLimit {
			return nil, errors.Errorf("limit: exceeds maximum of %d", maxFilterLimit)
		}
		limit = *r.Limit
	}
	return &eventdb.Filter{
		Types:   r.Types,
		Network: r.Network,
		Wallet:  r.Wallet,
		Order:   r.Order,
		Options: &eventdb.Options{Offset: r.Offset, Limit: limit},
	}, nil
}

func (e *Events) handleFilter(w http.ResponseWriter, req *http.Request) error {
	var body FilterRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	filter, err := body.toFilter()
	if err != nil {
		return utils.BadRequest(err)
	}
	events, err := e.db.Filter(req.Context(), filter)
	if err != nil {
		return err
	}
	if events == nil {
		events = []*eventdb.Event{}
	}
	return utils.WriteJSON(w, events)
}

// handleSubscribe streams events appended after the subscription position over
// a websocket. Position defaults to the feed head and can be rewound with the
// pos query parameter.
func (e *Events) handleSubscribe(w http.ResponseWriter, req *http.Request) error {
	var filter eventdb.Filter
	query := req.URL.Query()
	if typ := query.Get("type"); typ != "" {
		filter.Types = []string{typ}
	}
	if networkStr := query.Get("network"); networkStr != "" {
		network, err := strconv.ParseUint(networkStr, 10, 64)
		if err != nil {
			return utils.BadRequest(errors.WithMessage(err, "network"))
		}
		filter.Network = &network
	}
	if posStr := query.Get("pos"); posStr != "" {
		pos, err := strconv.ParseUint(posStr, 10, 64)
		if err != nil {
			return utils.BadRequest(errors.WithMessage(err, "pos"))
		}
		filter.AfterSequence = &pos
	}
	if filter.AfterSequence == nil {
		newest, err := e.db.NewestSequence(req.Context())
		if err != nil {
			return err
		}
		filter.AfterSequence = &newest
	}

	conn, err := e.upgrader.Upgrade(w, req, nil)
	if err != nil {
		// the upgrader has already replied to the client
		logger.Debug("upgrade to websocket failed", "err", err)
		return nil
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	poll := time.NewTicker(pollInterval)
	defer poll.Stop()
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-req.Context().Done():
			return nil
		case <-closed:
			return nil
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-poll.C:
			pending, err := e.db.Filter(req.Context(), &filter)
			if err != nil {
				logger.Warn("event feed poll failed", "err", err)
				return nil
			}
			for _, ev := range pending {
				if err := conn.WriteJSON(ev); err != nil {
					return nil
				}
				seq := ev.Sequence
				filter.AfterSequence = &seq
			}
		}
	}
}

func (e *Events) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("").
		Methods(http.MethodPost).
		Name("POST /events").
		HandlerFunc(utils.WrapHandlerFunc(e.handleFilter))
	sub.Path("/subscribe").
		Methods(http.MethodGet).
		Name("GET /events/subscribe").
		HandlerFunc(utils.WrapHandlerFunc(e.handleSubscribe))
}
