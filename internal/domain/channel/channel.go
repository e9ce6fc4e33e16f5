package channel

import "strings"

// Discovery is the well-known synchronous control channel a client queries
// once to learn the registry shape.
const Discovery = "$ipc:discover"

const (
	namespaceSep = ":"
	eventSep     = "::"
)

// For returns the invocation channel for a function or the base channel for
// an event stream. Both sides derive it the same way so names always match.
func For(name, namespace string) string {
	if namespace == "" {
		return name
	}
	return namespace + namespaceSep + name
}

// ValidName reports whether s can stand as an entry name or namespace key.
// The separator is rejected so that ("a:b", root) and ("b", "a") never derive
// the same channel.
func ValidName(s string) bool {
	return s != "" && !strings.Contains(s, namespaceSep)
}

// Event returns the derived channel a sub-event of the stream at base is
// broadcast on.
func Event(base, sub string) string {
	return base + eventSep + sub
}

// SplitEvent reverses Event. ok is false when ch is not an event channel.
func SplitEvent(ch string) (base, sub string, ok bool) {
	i := strings.LastIndex(ch, eventSep)
	if i < 0 {
		return "", "", false
	}
	return ch[:i], ch[i+len(eventSep):], true
}
