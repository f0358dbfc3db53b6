package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jdziat/keyed-jobs/pkg/core"
)

// EventMessage is the JSON frame pushed to websocket subscribers.
type EventMessage struct {
	Type      string    `json:"type"`
	JobID     string    `json:"jobId"`
	JobType   string    `json:"jobType"`
	Key       string    `json:"key"`
	Status    string    `json:"status"`
	WaitedMs  int64     `json:"waitedMs,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEventMessage converts a queue event to its wire form.
// It returns false for events with no wire representation.
func NewEventMessage(e core.Event) (EventMessage, bool) {
	var (
		msg EventMessage
		job *core.JobRecord
	)
	switch ev := e.(type) {
	case *core.JobSubmitted:
		msg = EventMessage{Type: "submitted", Timestamp: ev.Timestamp}
		job = ev.Job
	case *core.JobAdmitted:
		msg = EventMessage{Type: "admitted", WaitedMs: ev.Waited.Milliseconds(), Timestamp: ev.Timestamp}
		job = ev.Job
	case *core.JobStarted:
		msg = EventMessage{Type: "started", Timestamp: ev.Timestamp}
		job = ev.Job
	case *core.JobCompleted:
		msg = EventMessage{Type: "completed", Timestamp: ev.Timestamp}
		job = ev.Job
	case *core.JobFailed:
		msg = EventMessage{Type: "failed", Timestamp: ev.Timestamp}
		if ev.Error != nil {
			msg.Error = ev.Error.Error()
		}
		job = ev.Job
	default:
		return EventMessage{}, false
	}
	if job == nil {
		return EventMessage{}, false
	}
	msg.JobID = job.ID
	msg.JobType = job.Type
	msg.Key = job.Key
	msg.Status = string(job.Status)
	return msg, true
}

// Events handles GET /api/events, upgrading to a websocket that streams
// job lifecycle events until the client disconnects.
func (s *Server) Events(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the handshake completes so no event emitted after
	// the client sees the upgrade is missed.
	events := s.queue.Events()
	defer s.queue.Unsubscribe(events)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Reads are only used to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Debug("event subscriber connected", "remote", r.RemoteAddr)
	defer s.logger.Debug("event subscriber disconnected", "remote", r.RemoteAddr)

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			msg, ok := NewEventMessage(e)
			if !ok {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Warn("event write failed", "error", err)
				}
				return
			}
		}
	}
}
