package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		name string
		cur  time.Duration
		want time.Duration
	}{
		{"first failure", 0, minBackoff},
		{"doubles", minBackoff, 2 * minBackoff},
		{"capped", 4 * time.Second, maxBackoff},
		{"stays capped", maxBackoff, maxBackoff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextBackoff(tt.cur))
		})
	}
}

func TestDone_NilBeforeStart(t *testing.T) {
	eb := NewWithChannel(nil, "unused")
	assert.Nil(t, eb.Done())
	assert.NotPanics(t, eb.Close)
}
