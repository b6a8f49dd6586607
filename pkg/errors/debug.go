package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrorDump is the structured form of an error chain written to logs. The PG
// fields come from the hosted store, the SQLite fields from the device store.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`

	SQLiteCode     int    `json:"sqlite_code,omitempty"`
	SQLiteExtended int    `json:"sqlite_extended_code,omitempty"`
	SQLiteMessage  string `json:"sqlite_message,omitempty"`
}

// StoreBusy reports whether the dump describes a locked or busy SQLite file,
// which clears once the other writer commits.
func (d ErrorDump) StoreBusy() bool {
	return d.SQLiteCode == int(sqlite3.ErrBusy) || d.SQLiteCode == int(sqlite3.ErrLocked)
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	var liteErr sqlite3.Error
	switch {
	case errors.As(err, &pgxErr):
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGDetail = pgxErr.Detail
		d.PGMessage = pgxErr.Message
	case errors.As(err, &pqErr):
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGDetail = pqErr.Detail
		d.PGMessage = pqErr.Message
	case errors.As(err, &liteErr):
		d.SQLiteCode = int(liteErr.Code)
		d.SQLiteExtended = int(liteErr.ExtendedCode)
		d.SQLiteMessage = liteErr.Error()
	}
	return d
}
