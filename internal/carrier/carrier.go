// Package carrier implements the telephony media-stream wire protocol:
// JSON event frames over a WebSocket carrying base64 mu-law audio,
// stream lifecycle events and playback marks.
package carrier

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Event names on the media stream.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventMark      = "mark"
	EventClear     = "clear"
)

// Mark names used for playback acknowledgement.
const (
	MarkContinue = "continue"
	MarkFinish   = "finish"
)

// StartInfo identifies a new media stream.
type StartInfo struct {
	StreamSid  string `json:"streamSid"`
	CallSid    string `json:"callSid"`
	AccountSid string `json:"accountSid"`
}

// Message is one inbound frame. Only the fields matching Event are
// populated.
type Message struct {
	Event string `json:"event"`

	StreamSid string     `json:"streamSid,omitempty"`
	Start     *StartInfo `json:"start,omitempty"`
	Media     *Media     `json:"media,omitempty"`
	Mark      *Mark      `json:"mark,omitempty"`
}

// Media carries one audio payload.
type Media struct {
	Payload string `json:"payload"`
}

// Mark names a playback acknowledgement point.
type Mark struct {
	Name string `json:"name"`
}

// Parse decodes one inbound frame.
func Parse(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("carrier: parse frame: %w", err)
	}
	if msg.Event == "" {
		return Message{}, fmt.Errorf("carrier: frame without event")
	}
	return msg, nil
}

// AudioPayload decodes the base64 mu-law bytes of a media frame.
func (m Message) AudioPayload() ([]byte, error) {
	if m.Media == nil {
		return nil, fmt.Errorf("carrier: %s frame has no media body", m.Event)
	}
	raw, err := base64.StdEncoding.DecodeString(m.Media.Payload)
	if err != nil {
		return nil, fmt.Errorf("carrier: decode media payload: %w", err)
	}
	return raw, nil
}

// MediaFrame builds an outbound audio frame from raw mu-law bytes.
func MediaFrame(streamSid string, mulaw []byte) ([]byte, error) {
	return json.Marshal(Message{
		Event:     EventMedia,
		StreamSid: streamSid,
		Media:     &Media{Payload: base64.StdEncoding.EncodeToString(mulaw)},
	})
}

// MarkFrame builds an outbound playback mark.
func MarkFrame(streamSid, name string) ([]byte, error) {
	return json.Marshal(Message{
		Event:     EventMark,
		StreamSid: streamSid,
		Mark:      &Mark{Name: name},
	})
}

// ClearFrame builds the control frame asking the carrier to flush its
// buffered outbound audio, used for barge-in.
func ClearFrame(streamSid string) ([]byte, error) {
	return json.Marshal(Message{
		Event:     EventClear,
		StreamSid: streamSid,
	})
}
