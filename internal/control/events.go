package control

import (
	"time"

	"github.com/aura-webinar/recorder/internal/recording"
)

// Event is one lifecycle notification broadcast to session members:
// recordingStarted, recordingStopped, recordingStateChanged,
// recordingError.
type Event struct {
	Type        string    `json:"type"`
	Room        string    `json:"room,omitempty"`
	RecordingID string    `json:"recording_id"`
	Timestamp   time.Time `json:"timestamp"`
	State       string    `json:"state,omitempty"`
	Message     string    `json:"message,omitempty"`
}

func (s *Surface) emitStarted(r *recording.Recording) {
	s.broadcast(r.Room, Event{Type: "recordingStarted", Room: r.Room, RecordingID: string(r.ID), Timestamp: time.Now()})
}

func (s *Surface) emitStopped(recordingID string) {
	s.broadcast("", Event{Type: "recordingStopped", RecordingID: recordingID, Timestamp: time.Now()})
}

func (s *Surface) emitState(room, recordingID, state string) {
	s.broadcast(room, Event{Type: "recordingStateChanged", Room: room, RecordingID: recordingID, State: state, Timestamp: time.Now()})
}

func (s *Surface) emitError(room, recordingID, message string) {
	s.broadcast(room, Event{Type: "recordingError", Room: room, RecordingID: recordingID, Message: message, Timestamp: time.Now()})
}

func (s *Surface) broadcast(room string, ev Event) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(room, ev)
}
