package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console", ""} {
		l, err := New("warn", format)
		require.NoError(t, err, format)
		assert.False(t, l.Core().Enabled(zapcore.InfoLevel), format)
		assert.True(t, l.Core().Enabled(zapcore.WarnLevel), format)
	}

	l, err := New("DEBUG", "json")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_Invalid(t *testing.T) {
	_, err := New("loud", "json")
	assert.Error(t, err)

	_, err = New("info", "xml")
	assert.Error(t, err)
}
