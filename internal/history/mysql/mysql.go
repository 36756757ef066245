// Package mysql is the optional MySQL-backed history.Backend, registered
// under driver name "mysql" the way the teacher's store/mysql package
// registers itself against store.AddTorrentDriver from an init(). dlbridged
// always links it in, but it is only used when history.backend=mysql in
// configuration; the default remains the JSON file backend.
package mysql

import (
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/dlbridge/dlbridge/internal/bridgeerr"
	"github.com/dlbridge/dlbridge/internal/history"
	"github.com/dlbridge/dlbridge/internal/model"
)

const driverName = "mysql"

const schema = `
CREATE TABLE IF NOT EXISTS history_records (
	hash VARCHAR(40) PRIMARY KEY,
	record JSON NOT NULL
);`

// Backend is the sqlx-backed implementation.
type Backend struct {
	db *sqlx.DB
}

// Open connects using cfg (expected to be a DSN string) and ensures the
// backing table exists.
func (driver) Open(cfg interface{}) (history.Backend, error) {
	dsn, ok := cfg.(string)
	if !ok {
		return nil, bridgeerr.New(bridgeerr.KindBadRequest, "history/mysql.Open", nil)
	}
	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, bridgeerr.New(bridgeerr.KindTransport, "history/mysql.Open", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, bridgeerr.New(bridgeerr.KindTransport, "history/mysql.Open", err)
	}
	return &Backend{db: db}, nil
}

type row struct {
	Hash   string `db:"hash"`
	Record string `db:"record"`
}

// Load reads every persisted record.
func (b *Backend) Load() (map[string]*model.HistoryRecord, error) {
	var rows []row
	if err := b.db.Select(&rows, `SELECT hash, record FROM history_records`); err != nil {
		return nil, bridgeerr.New(bridgeerr.KindTransport, "history/mysql.Load", err)
	}
	out := make(map[string]*model.HistoryRecord, len(rows))
	for _, r := range rows {
		var rec model.HistoryRecord
		if err := json.Unmarshal([]byte(r.Record), &rec); err != nil {
			return nil, bridgeerr.New(bridgeerr.KindProtocol, "history/mysql.Load", err)
		}
		out[r.Hash] = &rec
	}
	return out, nil
}

// Save upserts every record in a single transaction, deleting rows no
// longer present in the given set.
func (b *Backend) Save(records map[string]*model.HistoryRecord) error {
	tx, err := b.db.Beginx()
	if err != nil {
		return bridgeerr.New(bridgeerr.KindTransport, "history/mysql.Save", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM history_records`); err != nil {
		return bridgeerr.New(bridgeerr.KindTransport, "history/mysql.Save", err)
	}
	for hash, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return bridgeerr.New(bridgeerr.KindProtocol, "history/mysql.Save", err)
		}
		if _, err := tx.Exec(
			fmt.Sprintf(`INSERT INTO history_records (hash, record) VALUES (?, ?)`),
			hash, data,
		); err != nil {
			return bridgeerr.New(bridgeerr.KindTransport, "history/mysql.Save", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return bridgeerr.New(bridgeerr.KindTransport, "history/mysql.Save", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (b *Backend) Close() error { return b.db.Close() }

type driver struct{}

func init() {
	history.AddDriver(driverName, driver{})
}
