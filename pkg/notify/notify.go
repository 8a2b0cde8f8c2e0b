// Package notify publishes per-tick capture progress to observers.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/menta2k/face-capture/pkg/log"
	"github.com/menta2k/face-capture/pkg/types"
)

// Event is the progress signal emitted once per evaluated tick
type Event struct {
	SessionID string          `json:"session_id"`
	Seq       uint64          `json:"seq"`
	Time      time.Time       `json:"time"`
	Direction types.Direction `json:"direction"`
	// Message is the status text shown to the user
	Message string `json:"message"`
	// LookingFor is the next expected direction, or the done message
	LookingFor string      `json:"looking_for"`
	Pose       *types.Pose `json:"pose,omitempty"`
	Accepted   bool        `json:"accepted"`
	Reason     string      `json:"reason"`
	Stage      int         `json:"stage"`
	Captured   int         `json:"captured"`
	Total      int         `json:"total"`
	Complete   bool        `json:"complete"`
}

// Notifier receives progress events
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Closer is implemented by notifiers holding a connection
type Closer interface {
	Close() error
}

// LogNotifier writes events to the structured log
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, ev Event) error {
	fields := log.Fields{
		"session_id":  ev.SessionID,
		"direction":   ev.Direction.String(),
		"looking_for": ev.LookingFor,
		"reason":      ev.Reason,
		"count":       ev.Captured,
	}
	if ev.Pose != nil {
		fields["yaw"] = ev.Pose.Yaw
		fields["pitch"] = ev.Pose.Pitch
	}
	if ev.Accepted {
		log.Info(fields, "frame captured")
	} else {
		log.Debug(fields, ev.Message)
	}
	return nil
}

// Multi fans an event out to every notifier and joins their errors
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every notifier that holds resources
func (m Multi) Close() error {
	var errs []error
	for _, n := range m {
		if c, ok := n.(Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
