package locks

import (
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestNewManager_DefaultTTLFallback(t *testing.T) {
	m := NewManager(noopLogger(), nil, 0)
	assert.Equal(t, DefaultTTL, m.defaultTTL)

	m = NewManager(noopLogger(), nil, 5*time.Minute)
	assert.Equal(t, 5*time.Minute, m.defaultTTL)
}

func TestTTLFor_Clamping(t *testing.T) {
	m := NewManager(noopLogger(), nil, 10*time.Minute)

	short := 30 * time.Second
	long := 3 * time.Hour
	negative := -time.Minute

	tests := []struct {
		name     string
		req      *time.Duration
		expected time.Duration
	}{
		{"nil uses default", nil, 10 * time.Minute},
		{"zero uses default", new(time.Duration), 10 * time.Minute},
		{"negative uses default", &negative, 10 * time.Minute},
		{"short passes through", &short, 30 * time.Second},
		{"excessive clamps to max", &long, MaxTTL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, m.ttlFor(tt.req))
		})
	}
}
