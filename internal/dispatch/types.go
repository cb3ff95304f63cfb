package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"media-relay/internal/database"
	"media-relay/internal/transcoder"
)

// Kind is the transport-level payload type.
type Kind string

// Payload kinds.
const (
	KindAudioPTT  Kind = "audio-ptt"
	KindAudioFile Kind = "audio-file"
	KindVideo     Kind = "video"
	KindImage     Kind = "image"
	KindDocument  Kind = "document"
)

// ErrEmptyInput is returned when an Input carries neither bytes nor a path.
var ErrEmptyInput = errors.New("dispatch: input has no data")

// ErrNoTransport is returned by Send when no transport is configured.
var ErrNoTransport = errors.New("dispatch: no transport configured")

// Input is the media to dispatch: either in-memory bytes or a path to a
// file the caller owns. The dispatcher never deletes a caller's Path.
type Input struct {
	Data        []byte
	Path        string
	ContentType string
	Filename    string
}

// Request is one dispatch invocation.
type Request struct {
	Input Input
	// IsRecord marks audio captured as a voice note (push-to-talk).
	IsRecord bool
	Caption  string
}

// Payload is the transport-ready result of a dispatch. Ownership passes to
// the caller. Path is set only for converted video artifacts, which stay on
// disk until their delayed release.
type Payload struct {
	Kind      Kind   `json:"kind"`
	Data      []byte `json:"-"`
	Path      string `json:"-"`
	MIME      string `json:"mime"`
	Filename  string `json:"filename"`
	Caption   string `json:"caption,omitempty"`
	Converted bool   `json:"converted"`
	Fallback  bool   `json:"fallback"`
	Size      int    `json:"size"`
}

// Receipt acknowledges a sent message.
type Receipt struct {
	MessageID string    `json:"messageId"`
	ChatID    string    `json:"chatId"`
	SentAt    time.Time `json:"sentAt"`
}

// Engine runs transcode jobs. Implemented by *transcoder.Transcoder.
type Engine interface {
	Transcode(ctx context.Context, job *transcoder.Job) error
}

// Transport delivers payloads to a recipient.
type Transport interface {
	Send(ctx context.Context, recipient string, p *Payload) (*Receipt, error)
}

// Journal records dispatch runs without blocking.
type Journal interface {
	Record(rec *database.DispatchRecord)
}

// Stage names where a dispatch failed.
type Stage string

// Failure stages.
const (
	StageRead      Stage = "read"
	StageTranscode Stage = "transcode"
	StageTransport Stage = "transport"
)

// SendError is the typed failure returned by Dispatch and Send.
type SendError struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *SendError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("dispatch failed at %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("dispatch of %s failed at %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
