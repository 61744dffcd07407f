package dictation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/cystoscribe/internal/generate"
	"github.com/MrWong99/cystoscribe/internal/observe"
	"github.com/MrWong99/cystoscribe/pkg/provider/llm"
	"github.com/MrWong99/cystoscribe/pkg/provider/stt"
)

// DefaultMaxAudioBytes bounds a captured recording when no limit is
// configured.
const DefaultMaxAudioBytes = 25 << 20

// Message types of the capture protocol.
const (
	MsgStart  = "start"
	MsgStop   = "stop"
	MsgCancel = "cancel"
	MsgState  = "state"
	MsgResult = "result"
	MsgError  = "error"
)

// Error codes sent in error messages.
const (
	CodeBusy          = "busy"
	CodeNotOwner      = "not_owner"
	CodeAudioTooLarge = "audio_too_large"
	CodeNoAudio       = "no_audio"
	CodeValidation    = "validation"
	CodeEmptyResult   = "empty_result"
	CodeUpstream      = "upstream"
	CodeProtocol      = "protocol"
)

// ClientMessage is a control frame sent by the browser. Audio travels in
// binary frames between start and stop.
type ClientMessage struct {
	Type        string `json:"type"`
	Sex         string `json:"sex,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Filename    string `json:"filename,omitempty"`
}

// ServerMessage is a frame sent to the browser.
type ServerMessage struct {
	Type   string  `json:"type"`
	State  string  `json:"state,omitempty"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
	Code   string  `json:"code,omitempty"`
}

// SessionHandler serves the WebSocket capture protocol:
//
//	client: {"type":"start","sex":"mujer"}     server: {"type":"state","state":"capturing"}
//	client: <binary audio chunks>
//	client: {"type":"stop"}                    server: {"type":"state","state":"processing"}
//	                                           server: {"type":"result","result":{...}}
//	                                           server: {"type":"state","state":"idle"}
//
// {"type":"cancel"} abandons the capture. Failures are reported as
// {"type":"error","code":...,"error":...}; the connection stays open for the
// next dictation. Closing the connection releases the machine.
type SessionHandler struct {
	pipeline      *Pipeline
	maxAudioBytes int
	acceptOpts    *websocket.AcceptOptions
	log           *slog.Logger
}

// SessionOption configures a [SessionHandler].
type SessionOption func(*SessionHandler)

// WithMaxAudioBytes bounds the size of one recording. Default:
// [DefaultMaxAudioBytes].
func WithMaxAudioBytes(n int) SessionOption {
	return func(h *SessionHandler) {
		if n > 0 {
			h.maxAudioBytes = n
		}
	}
}

// WithOriginPatterns allows cross-origin clients matching the patterns.
func WithOriginPatterns(patterns ...string) SessionOption {
	return func(h *SessionHandler) {
		h.acceptOpts.OriginPatterns = patterns
	}
}

// WithSessionLogger sets the logger for session events. Default: the
// request-scoped [observe.Logger].
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(h *SessionHandler) {
		h.log = l
	}
}

// NewSessionHandler returns a handler running captures through p.
func NewSessionHandler(p *Pipeline, opts ...SessionOption) *SessionHandler {
	h := &SessionHandler{
		pipeline:      p,
		maxAudioBytes: DefaultMaxAudioBytes,
		acceptOpts:    &websocket.AcceptOptions{},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP upgrades the request and runs the session until the client
// disconnects.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, h.acceptOpts)
	if err != nil {
		observe.Logger(r.Context()).Warn("dictation: websocket accept", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(int64(h.maxAudioBytes) + 4096)

	log := h.log
	if log == nil {
		log = observe.Logger(r.Context())
	}
	s := &session{
		h:     h,
		conn:  conn,
		owner: newOwner(),
		log:   log,
	}
	defer s.h.pipeline.Machine().Release(s.owner)

	err = s.loop(r.Context())
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Debug("dictation: session ended", "owner", s.owner, "err", err)
		}
	}
}

// session is the per-connection capture state.
type session struct {
	h     *SessionHandler
	conn  *websocket.Conn
	owner string
	log   *slog.Logger

	capturing bool
	start     ClientMessage
	buf       []byte
}

func (s *session) loop(ctx context.Context) error {
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ == websocket.MessageBinary {
			if err := s.audio(ctx, data); err != nil {
				return err
			}
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := s.fail(ctx, CodeProtocol, "invalid control message"); err != nil {
				return err
			}
			continue
		}
		if err := s.control(ctx, msg); err != nil {
			return err
		}
	}
}

func (s *session) audio(ctx context.Context, chunk []byte) error {
	if !s.capturing {
		return s.fail(ctx, CodeProtocol, "audio received outside a capture")
	}
	if len(s.buf)+len(chunk) > s.h.maxAudioBytes {
		s.abort()
		return s.fail(ctx, CodeAudioTooLarge, "recording exceeds the size limit")
	}
	s.buf = append(s.buf, chunk...)
	return nil
}

func (s *session) control(ctx context.Context, msg ClientMessage) error {
	switch msg.Type {
	case MsgStart:
		if _, err := generate.ParseSex(msg.Sex); err != nil {
			return s.fail(ctx, CodeValidation, err.Error())
		}
		if err := s.h.pipeline.Machine().StartCapture(s.owner); err != nil {
			return s.failErr(ctx, err)
		}
		s.capturing = true
		s.start = msg
		s.buf = s.buf[:0]
		return s.state(ctx, StateCapturing)

	case MsgCancel:
		if !s.capturing {
			return s.fail(ctx, CodeNotOwner, ErrNotOwner.Error())
		}
		s.abort()
		return s.state(ctx, StateIdle)

	case MsgStop:
		if !s.capturing {
			return s.fail(ctx, CodeNotOwner, ErrNotOwner.Error())
		}
		return s.process(ctx, msg)

	default:
		return s.fail(ctx, CodeProtocol, "unknown message type "+msg.Type)
	}
}

func (s *session) process(ctx context.Context, stop ClientMessage) error {
	s.capturing = false
	if len(s.buf) == 0 {
		s.stopCapture()
		if err := s.fail(ctx, CodeNoAudio, stt.ErrNoAudio.Error()); err != nil {
			return err
		}
		return s.state(ctx, StateIdle)
	}

	sex, _ := generate.ParseSex(s.start.Sex)
	audio := stt.Audio{
		Data:        append([]byte(nil), s.buf...),
		ContentType: firstNonEmpty(stop.ContentType, s.start.ContentType),
		Filename:    firstNonEmpty(stop.Filename, s.start.Filename),
	}.WithDefaults()
	s.buf = s.buf[:0]

	if err := s.state(ctx, StateProcessing); err != nil {
		s.stopCapture()
		return err
	}
	res, err := s.h.pipeline.Run(ctx, Request{Owner: s.owner, Audio: &audio, Sex: sex})
	if err != nil {
		if werr := s.failErr(ctx, err); werr != nil {
			return werr
		}
		return s.state(ctx, StateIdle)
	}
	if err := s.send(ctx, ServerMessage{Type: MsgResult, Result: res}); err != nil {
		return err
	}
	return s.state(ctx, StateIdle)
}

// stopCapture returns the machine to idle after a capture that will not be
// processed.
func (s *session) stopCapture() {
	if err := s.h.pipeline.Machine().StopCapture(s.owner); err != nil {
		s.log.Debug("dictation: stop capture", "owner", s.owner, "err", err)
	}
}

// abort drops the current capture.
func (s *session) abort() {
	if s.capturing {
		s.stopCapture()
	}
	s.capturing = false
	s.buf = s.buf[:0]
}

func (s *session) state(ctx context.Context, st State) error {
	return s.send(ctx, ServerMessage{Type: MsgState, State: st.String()})
}

func (s *session) fail(ctx context.Context, code, msg string) error {
	return s.send(ctx, ServerMessage{Type: MsgError, Code: code, Error: msg})
}

func (s *session) failErr(ctx context.Context, err error) error {
	return s.fail(ctx, ErrorCode(err), err.Error())
}

func (s *session) send(ctx context.Context, msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// ErrorCode classifies a pipeline error for clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrBusy):
		return CodeBusy
	case errors.Is(err, ErrNotOwner):
		return CodeNotOwner
	case errors.Is(err, stt.ErrNoAudio):
		return CodeNoAudio
	case errors.Is(err, generate.ErrEmptyDictation):
		return CodeValidation
	case errors.Is(err, stt.ErrNoText), errors.Is(err, llm.ErrNoContent):
		return CodeEmptyResult
	default:
		return CodeUpstream
	}
}

func newOwner() string {
	return uuid.NewString()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
