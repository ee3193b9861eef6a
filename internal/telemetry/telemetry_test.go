package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{ServiceName: "menusync"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	counter, err := Meter("menusync/test").Int64Counter("menusync.test.count")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)
}
