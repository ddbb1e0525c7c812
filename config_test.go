package tessera_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/tesseradb/tessera"
	"github.com/tesseradb/tessera/schema"
)

func TestConfig_FromToml(t *testing.T) {
	c := tessera.NewConfig()
	require.NoError(t, c.FromToml(`
[log]
level = "warn"

[uid]
table = "prod-uid"
random-metric-ids = true

[schema]
salt-width = 1
salt-buckets = 20

[scan]
max-data-points = 1000000
`))
	require.NoError(t, c.Validate())

	assert.Equal(t, zapcore.WarnLevel, c.Log.Level)
	assert.Equal(t, "prod-uid", c.UID.Table)
	assert.True(t, c.UID.RandomMetricIds)
	assert.Equal(t, 1, c.Schema.SaltWidth)
	assert.Equal(t, int64(1000000), c.Scan.MaxDataPoints)

	// Unset keys keep their defaults.
	assert.Equal(t, schema.DefaultTable, c.Schema.Table)
	assert.Equal(t, 3, c.UID.MetricWidth)
	assert.True(t, c.Scan.RollupFallback)
}

func TestConfig_ValidateRejectsBadSection(t *testing.T) {
	c := tessera.NewConfig()
	c.Schema.SaltWidth = 9
	require.ErrorContains(t, c.Validate(), "salt width")
}
