// Package bridge carries video playback events between the frame that owns
// the video element and the page controller.
//
// Messages are JSON objects tagged by a "type" field. The child side watches
// the video and posts ENDED, STATUS, FOUND and URL; the parent side receives
// them, filters what it doesn't know and decides when to advance.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type is the discriminator of a bridge message
type Type string

const (
	TypeEnded  Type = "ENDED"
	TypeStatus Type = "STATUS"
	TypeFound  Type = "FOUND"
	TypeGetURL Type = "GET_URL"
	TypeURL    Type = "URL"
)

var (
	ErrUnknownMessage = errors.New("unknown bridge message")
	ErrMalformed      = errors.New("malformed bridge message")
)

// Message is one of Ended, Status, Found, GetURL or URL
type Message interface {
	Type() Type
}

// Ended reports that the video reached its end
type Ended struct{}

// Status is the periodic playback report
type Status struct {
	Current   float64 `json:"current"`
	Duration  float64 `json:"duration"`
	Remaining float64 `json:"remaining"`
	Paused    bool    `json:"paused"`
	Ended     bool    `json:"ended"`
}

// Found reports that the video element was located
type Found struct{}

// GetURL asks the child for the current video source
type GetURL struct{}

// URL answers GetURL
type URL struct {
	URL string `json:"url"`
}

func (Ended) Type() Type  { return TypeEnded }
func (Status) Type() Type { return TypeStatus }
func (Found) Type() Type  { return TypeFound }
func (GetURL) Type() Type { return TypeGetURL }
func (URL) Type() Type    { return TypeURL }

// Envelope is a message as received, with the origin of the sending frame
type Envelope struct {
	Origin string
	Data   []byte
}

// Encode serializes m with its type tag
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, ErrUnknownMessage
	}

	var payload map[string]interface{}
	switch v := m.(type) {
	case Status:
		payload = map[string]interface{}{
			"current":   v.Current,
			"duration":  v.Duration,
			"remaining": v.Remaining,
			"paused":    v.Paused,
			"ended":     v.Ended,
		}
	case URL:
		payload = map[string]interface{}{"url": v.URL}
	case Ended, Found, GetURL:
		payload = map[string]interface{}{}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, m)
	}
	payload["type"] = m.Type()
	return json.Marshal(payload)
}

// Decode parses data into a Message. Payloads outside the vocabulary return
// ErrUnknownMessage; unparsable ones return ErrMalformed.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch head.Type {
	case TypeEnded:
		return Ended{}, nil
	case TypeFound:
		return Found{}, nil
	case TypeGetURL:
		return GetURL{}, nil
	case TypeStatus:
		var s Status
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return s, nil
	case TypeURL:
		var u URL
		if err := json.Unmarshal(data, &u); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return u, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, head.Type)
	}
}
