package instance

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetIDPrecedence(t *testing.T) {
	t.Setenv("INSTANCE_ID", "")
	t.Setenv("LEDGER_INSTANCE_ID", "")
	t.Setenv("DYNO", "web.2")
	require.Equal(t, "web.2", GetID())

	t.Setenv("LEDGER_INSTANCE_ID", "ledger-api-7")
	require.Equal(t, "ledger-api-7", GetID())
}

func TestGetIDFallsBackToHost(t *testing.T) {
	t.Setenv("INSTANCE_ID", "")
	t.Setenv("LEDGER_INSTANCE_ID", "")
	t.Setenv("DYNO", "")
	require.NotEmpty(t, GetID())
}
