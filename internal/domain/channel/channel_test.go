package channel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyang/ipc-bridge/internal/domain/channel"
)

func TestFor(t *testing.T) {
	tests := []struct {
		name      string
		fn        string
		namespace string
		want      string
	}{
		{"root", "greet", "", "greet"},
		{"namespaced", "add", "calc", "calc:add"},
		{"same name other namespace", "add", "math", "math:add"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, channel.For(tt.fn, tt.namespace))
		})
	}
}

func TestFor_DistinctPairsNeverCollide(t *testing.T) {
	seen := map[string]bool{}
	for _, ns := range []string{"", "a", "b"} {
		for _, fn := range []string{"f", "g"} {
			ch := channel.For(fn, ns)
			assert.False(t, seen[ch], "channel %q produced twice", ch)
			seen[ch] = true
		}
	}
}

func TestEvent_RoundTrip(t *testing.T) {
	ch := channel.Event(channel.For("clock", "sys"), "tick")
	assert.Equal(t, "sys:clock::tick", ch)

	base, sub, ok := channel.SplitEvent(ch)
	assert.True(t, ok)
	assert.Equal(t, "sys:clock", base)
	assert.Equal(t, "tick", sub)

	_, _, ok = channel.SplitEvent("greet")
	assert.False(t, ok)
}

func TestValidName(t *testing.T) {
	assert.True(t, channel.ValidName("greet"))
	assert.True(t, channel.ValidName("$ipc"))
	assert.False(t, channel.ValidName(""))
	assert.False(t, channel.ValidName("a:b"))
	assert.False(t, channel.ValidName("clock::tick"))
}
