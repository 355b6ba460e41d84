package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies push channel payload variants.
type MessageType string

const (
	TypeHello         MessageType = "hello"
	TypeStudentOnline MessageType = "student_online"
	TypeErrorEvent    MessageType = "error_event"
)

// Presence statuses carried by StudentOnline.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// Hello is the first message on a tutor push connection.
type Hello struct {
	Type         MessageType `json:"type"`
	TutorID      int64       `json:"tutor_id"`
	ConnectionID string      `json:"connection_id"`
}

// StudentOnline reports a learner presence change in one of the tutor's rooms.
type StudentOnline struct {
	Type      MessageType `json:"type"`
	RoomName  string      `json:"room_name"`
	StudentID int64       `json:"student_id"`
	Status    string      `json:"status"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func NewStudentOnline(roomName string, studentID int64, online bool) StudentOnline {
	status := StatusOffline
	if online {
		status = StatusOnline
	}
	return StudentOnline{Type: TypeStudentOnline, RoomName: roomName, StudentID: studentID, Status: status}
}

// Online reports whether the message announces the learner as present.
func (m StudentOnline) Online() bool { return m.Status == StatusOnline }

// ParseServerMessage decodes a message received on the tutor push channel.
func ParseServerMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeHello:
		var msg Hello
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeStudentOnline:
		var msg StudentOnline
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.RoomName == "" || (msg.Status != StatusOnline && msg.Status != StatusOffline) {
			return nil, errors.New("invalid student_online")
		}
		return msg, nil
	case TypeErrorEvent:
		var msg ErrorEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
