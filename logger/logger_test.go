package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		expectErr bool
		enabled   zapcore.Level
	}{
		{name: "info level", level: "info", enabled: zapcore.InfoLevel},
		{name: "debug level uses development config", level: "debug", enabled: zapcore.DebugLevel},
		{name: "unknown level", level: "loud", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Initialize(tt.level)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer Sync()
			assert.True(t, Logger.Core().Enabled(tt.enabled))
			assert.NotNil(t, For("logger_test"))
		})
	}
}
