package datamover

import (
	"testing"

	"github.com/slackhq/datamover/config"
	"github.com/slackhq/datamover/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartStats_ConfigTest(t *testing.T) {
	l := test.NewLogger()

	tests := []struct {
		name string
		raw  string
		err  string
	}{
		{"none", "stats:\n  type: none\n", ""},
		{"no interval", "stats:\n  type: graphite\n", "stats.interval was an invalid duration"},
		{"unknown type", "stats:\n  type: statsd\n  interval: 10s\n", "stats.type was not understood"},
		{"graphite without host", "stats:\n  type: graphite\n  interval: 10s\n", "stats.host can not be empty"},
		{"graphite", "stats:\n  type: graphite\n  interval: 10s\n  host: 127.0.0.1:2003\n", ""},
		{"prometheus without listen", "stats:\n  type: prometheus\n  interval: 10s\n", "stats.listen should not be empty"},
		{"prometheus without path", "stats:\n  type: prometheus\n  interval: 10s\n  listen: 127.0.0.1:8080\n", "stats.path should not be empty"},
		{"prometheus", "stats:\n  type: prometheus\n  interval: 10s\n  listen: 127.0.0.1:8080\n  path: /metrics\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.NewC(l)
			require.NoError(t, c.LoadString(tt.raw))
			err := StartStats(l, c, "test", true)
			if tt.err == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.err)
		})
	}
}
