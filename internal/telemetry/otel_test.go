package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
	}{
		{name: "disabled without endpoint", endpoint: ""},
		// Non-routable address: nothing is exported, shutdown must still return.
		{name: "provider with endpoint", endpoint: "http://192.0.2.1:4318"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), "tasknest-test", tt.endpoint)
			require.NoError(t, err)
			assert.NoError(t, shutdown(context.Background()))
		})
	}
}
