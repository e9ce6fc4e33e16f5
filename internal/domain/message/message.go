package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrMissingArg = errors.New("message: missing argument")

type Type string

const (
	TypeInvoke Type = "invoke"
	TypeReply  Type = "reply"
	TypeEvent  Type = "event"
)

// Args is a positional argument list. Each element stays encoded until the
// receiving side knows what type to decode it into.
type Args []json.RawMessage

// EncodeArgs encodes each value as one positional argument.
func EncodeArgs(vals ...any) (Args, error) {
	args := make(Args, len(vals))
	for i, v := range vals {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding argument %d: %w", i, err)
		}
		args[i] = data
	}
	return args, nil
}

// Decode unmarshals argument i into v.
func (a Args) Decode(i int, v any) error {
	if i < 0 || i >= len(a) {
		return fmt.Errorf("argument %d of %d: %w", i, len(a), ErrMissingArg)
	}
	if err := json.Unmarshal(a[i], v); err != nil {
		return fmt.Errorf("decoding argument %d: %w", i, err)
	}
	return nil
}

// RemoteError is a failure raised on the other side of the bridge. Only the
// message text survives the crossing.
type RemoteError struct {
	Message string `json:"message"`
	Channel string `json:"channel,omitempty"`
}

func (e *RemoteError) Error() string {
	if e.Channel == "" {
		return e.Message
	}
	return fmt.Sprintf("remote %s: %s", e.Channel, e.Message)
}

// ToRemote converts err for the wire. A nil err yields nil.
func ToRemote(channel string, err error) *RemoteError {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return &RemoteError{Message: re.Message, Channel: channel}
	}
	return &RemoteError{Message: err.Error(), Channel: channel}
}

// Envelope is the single frame shape carried by every transport.
type Envelope struct {
	Type    Type            `json:"type"`
	ID      string          `json:"id,omitempty"`
	Channel string          `json:"channel"`
	Args    Args            `json:"args,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RemoteError    `json:"error,omitempty"`
}

func NewInvocation(channel string, args Args) Envelope {
	return Envelope{
		Type:    TypeInvoke,
		ID:      uuid.NewString(),
		Channel: channel,
		Args:    args,
	}
}

// NewReply answers inv with either result or err.
func NewReply(inv Envelope, result json.RawMessage, err error) Envelope {
	reply := Envelope{
		Type:    TypeReply,
		ID:      inv.ID,
		Channel: inv.Channel,
	}
	if err != nil {
		reply.Error = ToRemote(inv.Channel, err)
		return reply
	}
	reply.Result = result
	return reply
}

func NewEvent(channel string, args Args) Envelope {
	return Envelope{
		Type:    TypeEvent,
		Channel: channel,
		Args:    args,
	}
}

// Err returns the reply's failure as an error, or nil.
func (e Envelope) Err() error {
	if e.Error == nil {
		return nil
	}
	return e.Error
}
