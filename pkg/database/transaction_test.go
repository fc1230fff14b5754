package database

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestRollbackDefersToContextOwner(t *testing.T) {
	tx := NewTx(nil, testLogger())

	// a participant that received the tx through its context must not close it
	ctx := context.WithValue(context.Background(), txStatusKey, "open")
	require.NoError(t, tx.Rollback(ctx))
	assert.True(t, tx.IsOpen())
}

func TestClosedTransactionIsInert(t *testing.T) {
	tx := NewTx(nil, testLogger()).(*Transaction)
	tx.isClosed = true

	assert.False(t, tx.IsOpen())
	require.NoError(t, tx.Rollback(context.Background()))
	require.NoError(t, tx.Commit(context.Background()))
}
