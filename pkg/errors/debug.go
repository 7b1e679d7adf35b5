package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PGFields is the driver-neutral view of a postgres error. pgx produces them
// for the services; lib/pq produces them when goose runs through database/sql.
type PGFields struct {
	SQLState   string `json:"sqlstate"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

func postgresFields(err error) *PGFields {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PGFields{
			SQLState:   pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PGFields{
			SQLState:   string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}

// transientSQLState reports SQLSTATEs that a caller can resolve by retrying
// the whole transaction: serialization failures, deadlocks, lock timeouts
// and lost connections (class 08).
func transientSQLState(state string) bool {
	switch state {
	case "40001", "40P01", "55P03", "57P01":
		return true
	}
	return strings.HasPrefix(state, "08")
}

// Classify returns err as a typed error. Already-typed errors pass through;
// transient postgres failures become CodeDependency; anything else is
// CodeInternal.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if typed := As(err); typed != nil {
		return typed
	}
	if pg := postgresFields(err); pg != nil && transientSQLState(pg.SQLState) {
		return Wrap(CodeDependency, err, "database busy")
	}
	return Wrap(CodeInternal, err, "unexpected error")
}

// ErrorDump is the log-only projection of an error chain. It is never sent to clients.
type ErrorDump struct {
	Message   string
	Code      Code
	Retryable bool
	Chain     []string
	Postgres  *PGFields
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	typed := Classify(err)
	d := ErrorDump{
		Message:   err.Error(),
		Code:      typed.Code(),
		Retryable: MetadataFor(typed.Code()).Retryable,
		Postgres:  postgresFields(err),
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return d
}

// Fields flattens the dump into structured log fields.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.Message,
		"error_code":  d.Code,
		"error_chain": d.Chain,
		"retryable":   d.Retryable,
	}
	if d.Postgres != nil {
		fields["pg_code"] = d.Postgres.SQLState
		fields["pg_constraint"] = d.Postgres.Constraint
		fields["pg_table"] = d.Postgres.Table
		fields["pg_detail"] = d.Postgres.Detail
		fields["pg_message"] = d.Postgres.Message
	}
	return fields
}
