package database

import (
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// InsertBuilder wraps the Postgres insert builder with the conflict clauses
// the batch writers rely on for idempotent ingestion.
type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{sqlbuilder.PostgreSQL.NewInsertBuilder()}
}

func (ib *InsertBuilder) InsertInto(table string) *InsertBuilder {
	ib.InsertBuilder.InsertInto(table)
	return ib
}

func (ib *InsertBuilder) Cols(col ...string) *InsertBuilder {
	ib.InsertBuilder.Cols(col...)
	return ib
}

func (ib *InsertBuilder) Values(value ...any) *InsertBuilder {
	ib.InsertBuilder.Values(value...)
	return ib
}

// OnConflictDoNothing appends ON CONFLICT [(columns)] DO NOTHING. The clause
// is injected at the call position, so call it after the last Values.
func (ib *InsertBuilder) OnConflictDoNothing(columns ...string) *InsertBuilder {
	clause := "ON CONFLICT DO NOTHING"
	if len(columns) > 0 {
		clause = "ON CONFLICT (" + strings.Join(columns, ", ") + ") DO NOTHING"
	}
	ib.SQL(clause)
	return ib
}
