// Copyright (c) 2025 The Span developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package eventdb persists the bridge event feed in sqlite, queryable by the
// API and streamed to websocket subscribers.
package eventdb

import (
	"context"
	"database/sql"
	"math/big"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spanlabs/span/span"
)

// Event types emitted by the bridge core.
const (
	TypeDeposit           = "deposit"
	TypeClaim             = "claim"
	TypeStake             = "stake"
	TypeUnstakeRequested  = "unstake_requested"
	TypeUnstakeCompleted  = "unstake_completed"
	TypeSlash             = "slash"
	TypeRewardsClaimed    = "rewards_claimed"
	TypeRewardsDistribute = "rewards_distributed"
	TypeRootConfirmed     = "root_confirmed"
	TypeSettled           = "settled"
)

// Event is one entry of the bridge event feed.
type Event struct {
	Sequence  uint64       `json:"sequence"`
	Type      string       `json:"type"`
	Network   uint64       `json:"network"`
	Wallet    span.Address `json:"wallet"`
	Amount    *big.Int     `json:"amount"`
	Root      span.Bytes32 `json:"root"`
	Timestamp uint64       `json:"timestamp"`
}

// Order of filter results.
type Order string

const (
	ASC  Order = "asc"
	DESC Order = "desc"
)

// Options limit a filter query.
type Options struct {
	Offset uint64
	Limit  uint64
}

// Filter selects events from the feed. Zero-valued fields match everything.
type Filter struct {
	Types         []string
	Network       *uint64
	Wallet        *span.Address
	AfterSequence *uint64
	Order         Order
	Options       *Options
}

const tableSchema = `CREATE TABLE IF NOT EXISTS event (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	type TEXT NOT NULL,
	network INTEGER NOT NULL,
	wallet BLOB NOT NULL,
	amount TEXT NOT NULL,
	root BLOB NOT NULL,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS event_type ON event(type);
CREATE INDEX IF NOT EXISTS event_wallet ON event(wallet);`

// EventDB is the sqlite backed event feed.
type EventDB struct {
	path string
	db   *sql.DB
}

// New creates or opens the event db at the given path.
func New(path string) (eventDB *EventDB, err error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if eventDB == nil {
			db.Close()
		}
	}()
	if _, err := db.Exec(tableSchema); err != nil {
		return nil, err
	}
	return &EventDB{path, db}, nil
}

// NewMem creates an event db in ram.
func NewMem() (*EventDB, error) {
	return New(":memory:")
}

// Close closes the event db.
func (db *EventDB) Close() error {
	return db.db.Close()
}

func (db *EventDB) Path() string {
	return db.path
}

// Append writes events to the feed in one transaction, assigning their
// sequence numbers in place.
func (db *EventDB) Append(events ...*Event) error {
	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, ev := range events {
		amount := "0"
		if ev.Amount != nil {
			amount = ev.Amount.String()
		}
		res, err := tx.Exec(
			"INSERT INTO event(type, network, wallet, amount, root, ts) VALUES(?, ?, ?, ?, ?, ?)",
			ev.Type, int64(ev.Network), ev.Wallet.Bytes(), amount, ev.Root.Bytes(), int64(ev.Timestamp))
		if err != nil {
			return err
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return err
		}
		ev.Sequence = uint64(seq)
	}
	return tx.Commit()
}

// NewestSequence returns the sequence of the latest event, 0 when empty.
func (db *EventDB) NewestSequence(ctx context.Context) (uint64, error) {
	var seq int64
	row := db.db.QueryRowContext(ctx, "SELECT IFNULL(MAX(seq), 0) FROM event")
	if err := row.Scan(&seq); err != nil {
		return 0, err
	}
	return uint64(seq), nil
}

// Filter queries the feed.
func (db *EventDB) Filter(ctx context.Context, filter *Filter) ([]*Event, error) {
	stmt := "SELECT seq, type, network, wallet, amount, root, ts FROM event WHERE 1"
	var args []any

	if filter != nil {
		if len(filter.Types) > 0 {
			stmt += " AND type IN ("
			for i, typ := range filter.Types {
				if i > 0 {
					stmt += ","
				}
				stmt += "?"
				args = append(args, typ)
			}
			stmt += ")"
		}
		if filter.Network != nil {
			stmt += " AND network = ?"
			args = append(args, int64(*filter.Network))
		}
		if filter.Wallet != nil {
			stmt += " AND wallet = ?"
			args = append(args, filter.Wallet.Bytes())
		}
		if filter.AfterSequence != nil {
			stmt += " AND seq > ?"
			args = append(args, int64(*filter.AfterSequence))
		}
		if filter.Order == DESC {
			stmt += " ORDER BY seq DESC"
		} else {
			stmt += " ORDER BY seq ASC"
		}
		if filter.Options != nil {
			stmt += " LIMIT ?, ?"
			args = append(args, int64(filter.Options.Offset), int64(filter.Options.Limit))
		}
	} else {
		stmt += " ORDER BY seq ASC"
	}

	rows, err := db.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			ev      Event
			seq     int64
			network int64
			wallet  []byte
			amount  string
			root    []byte
			ts      int64
		)
		if err := rows.Scan(&seq, &ev.Type, &network, &wallet, &amount, &root, &ts); err != nil {
			return nil, err
		}
		ev.Sequence = uint64(seq)
		ev.Network = uint64(network)
		ev.Wallet = span.BytesToAddress(wallet)
		ev.Root = span.BytesToBytes32(root)
		ev.Timestamp = uint64(ts)
		ev.Amount, _ = new(big.Int).SetString(amount, 10)
		if ev.Amount == nil {
			ev.Amount = new(big.Int)
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}
