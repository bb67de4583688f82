package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// MessageType identifies who authored a message.
type MessageType string

const (
	MessageTypeUser      MessageType = "user"
	MessageTypeAssistant MessageType = "assistant"
)

// Feedback is the user's rating of an assistant message.
type Feedback string

const (
	FeedbackNeutral  Feedback = "neutral"
	FeedbackPositive Feedback = "positive"
	FeedbackNegative Feedback = "negative"
)

// ParseFeedback validates a feedback value.
func ParseFeedback(s string) (Feedback, error) {
	switch f := Feedback(s); f {
	case FeedbackNeutral, FeedbackPositive, FeedbackNegative:
		return f, nil
	default:
		return "", fmt.Errorf("feedback must be one of neutral, positive, negative")
	}
}

// Message is one entry of the conversation log.
//
// ID is empty for optimistic user entries until the server assigns one.
// LocalKey is assigned by the message store and never sent over the wire.
type Message struct {
	ID           MessageID   `json:"id,omitempty" msgpack:"id,omitempty"`
	Type         MessageType `json:"type" msgpack:"type"`
	Text         string      `json:"text,omitempty" msgpack:"text,omitempty"`
	EncodedImage string      `json:"encoded_image,omitempty" msgpack:"encoded_image,omitempty"`
	EncodedAudio string      `json:"encoded_audio,omitempty" msgpack:"encoded_audio,omitempty"`
	Feedback     *Feedback   `json:"feedback,omitempty" msgpack:"feedback,omitempty"`

	LocalKey string `json:"-" msgpack:"-"`
}

// HasAudio reports whether the message carries a voice reply.
func (m *Message) HasAudio() bool {
	return m != nil && m.EncodedAudio != ""
}

// MessageID is a server-assigned message identifier. The backend emits
// integer ids; the client treats them as opaque strings.
type MessageID string

// String returns the id as a plain string.
func (id MessageID) String() string {
	return string(id)
}

// UnmarshalJSON accepts both numeric and string ids.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid message id %s", data)
	}
	*id = MessageID(n.String())
	return nil
}

// EncodeMsgpack writes the id as a string.
func (id MessageID) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(string(id))
}

// DecodeMsgpack accepts integer, string and nil ids.
func (id *MessageID) DecodeMsgpack(dec *msgpack.Decoder) error {
	v, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*id = ""
	case string:
		*id = MessageID(t)
	case int8, int16, int32, int64:
		*id = MessageID(fmt.Sprintf("%d", t))
	case uint8, uint16, uint32, uint64:
		*id = MessageID(fmt.Sprintf("%d", t))
	case float64:
		*id = MessageID(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		return fmt.Errorf("invalid message id type %T", v)
	}
	return nil
}
