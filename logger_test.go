package datamover

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/slackhq/datamover/config"
	"github.com/slackhq/datamover/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigLogger(t *testing.T) {
	l := test.NewLogger()
	c := config.NewC(l)
	require.NoError(t, c.LoadString("logging:\n  level: debug\n  format: json\n  disable_timestamp: true\n"))
	require.NoError(t, ConfigLogger(l, c))
	assert.Equal(t, logrus.DebugLevel, l.Level)
	f, ok := l.Formatter.(*logrus.JSONFormatter)
	require.True(t, ok)
	assert.True(t, f.DisableTimestamp)

	c = config.NewC(l)
	require.NoError(t, c.LoadString("logging:\n  timestamp_format: \"2006-01-02\"\n"))
	require.NoError(t, ConfigLogger(l, c))
	assert.Equal(t, logrus.InfoLevel, l.Level)
	tf, ok := l.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.True(t, tf.FullTimestamp)
	assert.Equal(t, "2006-01-02", tf.TimestampFormat)
}

func TestConfigLogger_Invalid(t *testing.T) {
	l := test.NewLogger()
	c := config.NewC(l)
	require.NoError(t, c.LoadString("logging:\n  level: loud\n"))
	assert.Error(t, ConfigLogger(l, c))

	c = config.NewC(l)
	require.NoError(t, c.LoadString("logging:\n  format: xml\n"))
	assert.ErrorContains(t, ConfigLogger(l, c), "unknown log format")
}
