package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/voicebridge/internal/observability"
	"github.com/antoniostano/voicebridge/internal/protocol"
	"github.com/antoniostano/voicebridge/internal/upstream"
)

// ReplyClient produces the assistant reply for a user text.
type ReplyClient interface {
	Complete(ctx context.Context, text string) (string, error)
}

// SpeechClient produces audio bytes for a reply text.
type SpeechClient interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// State tracks where a connection is in its request lifecycle.
type State string

const (
	StateIdle          State = "idle"
	StateValidating    State = "validating"
	StateAwaitingReply State = "awaiting_reply"
	StateAwaitingAudio State = "awaiting_audio"
	StateSending       State = "sending"
	StateClosed        State = "closed"
)

// Options are the per-connection limits, all sourced from config.
type Options struct {
	MaxTextLength       int
	InactivityTimeout   time.Duration
	MalformedFrameLimit int
}

const writeTimeout = 10 * time.Second

// Session owns one websocket connection: it validates inbound frames,
// sequences the chat and speech adapters, enforces single-in-flight
// discipline, and tears the connection down on inactivity.
//
// All lifecycle fields (state, inFlight, malformedStreak) are mutated only
// by the goroutine inside Run; the reader, writer, and pipeline goroutines
// communicate over channels.
type Session struct {
	id      string
	conn    *websocket.Conn
	chat    ReplyClient
	speech  SpeechClient
	opts    Options
	metrics *observability.Metrics
	log     *slog.Logger

	state           State
	inFlight        bool
	malformedStreak int
	openedAt        time.Time
	lastActivityAt  time.Time

	outbound chan outFrame
}

type inboundFrame struct {
	messageType int
	data        []byte
}

type outFrame struct {
	binary    bool
	payload   []byte
	value     any
	close     bool
	closeCode int
	closeText string
}

type pipelineResult struct {
	audio   []byte
	err     error
	started time.Time
}

func New(conn *websocket.Conn, chat ReplyClient, speech SpeechClient, opts Options, metrics *observability.Metrics, log *slog.Logger) *Session {
	now := time.Now()
	id := uuid.NewString()
	return &Session{
		id:             id,
		conn:           conn,
		chat:           chat,
		speech:         speech,
		opts:           opts,
		metrics:        metrics,
		log:            log.With(slog.String("session_id", id)),
		state:          StateIdle,
		openedAt:       now,
		lastActivityAt: now,
		outbound:       make(chan outFrame, 16),
	}
}

// ID returns the session identifier used in logs and metrics.
func (s *Session) ID() string { return s.id }

// Run drives the connection until it closes. It always returns with the
// connection closed and any in-flight adapter call cancelled.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		_ = s.conn.Close()
		s.state = StateClosed
		s.log.Info("connection closed",
			slog.Duration("open_for", time.Since(s.openedAt)))
	}()

	s.conn.SetReadLimit(1 << 20)

	// Defers run cancel first, then wait for the writer to flush queued
	// frames, then close the connection.
	writerDone := make(chan struct{})
	go s.writeLoop(ctx, cancel, writerDone)
	defer func() { <-writerDone }()
	defer cancel()

	inbound := make(chan inboundFrame, 1)
	go s.readLoop(ctx, inbound)

	// Buffered so a pipeline finishing after close never blocks.
	results := make(chan pipelineResult, 1)
	// Pinged when the reply arrives and the speech call begins.
	advanced := make(chan struct{}, 1)

	idle := time.NewTimer(s.opts.InactivityTimeout)
	defer idle.Stop()

	s.log.Info("connection opened")

	for {
		select {
		case <-ctx.Done():
			return

		case <-idle.C:
			if s.inFlight {
				// The adapter timeouts bound the pipeline; the inactivity
				// deadline only watches for inbound frames.
				idle.Reset(s.opts.InactivityTimeout)
				continue
			}
			s.log.Info("closing inactive connection")
			s.sendClose(ctx, websocket.CloseNormalClosure, "inactivity timeout")
			return

		case <-advanced:
			if s.inFlight {
				s.state = StateAwaitingAudio
			}

		case res := <-results:
			s.inFlight = false
			if res.err != nil {
				s.failPipeline(ctx, res.err)
			} else {
				s.state = StateSending
				s.enqueue(ctx, outFrame{binary: true, payload: res.audio})
				s.metrics.ObservePipelineLatency(time.Since(res.started))
				s.log.Info("audio delivered", slog.Int("bytes", len(res.audio)))
			}
			s.state = StateIdle
			s.lastActivityAt = time.Now()
			resetTimer(idle, s.opts.InactivityTimeout)

		case fr, ok := <-inbound:
			if !ok {
				s.log.Info("client disconnected")
				return
			}
			if done := s.handleFrame(ctx, fr, results, advanced, idle); done {
				return
			}
		}
	}
}

// handleFrame validates one inbound frame and either starts the pipeline,
// rejects it, or decides the connection must close (returns true).
func (s *Session) handleFrame(ctx context.Context, fr inboundFrame, results chan<- pipelineResult, advanced chan<- struct{}, idle *time.Timer) bool {
	prev := s.state
	s.state = StateValidating

	raw := fr.data
	if fr.messageType != websocket.TextMessage {
		// The protocol admits only text request frames.
		raw = nil
		s.metrics.WSMessages.WithLabelValues("inbound", "binary").Inc()
	} else {
		s.metrics.WSMessages.WithLabelValues("inbound", "text").Inc()
	}

	msg, err := protocol.ParseTextMessage(raw, s.opts.MaxTextLength)
	if err != nil {
		s.state = prev
		s.malformedStreak++
		var verr *protocol.ValidationError
		if !errors.As(err, &verr) {
			verr = &protocol.ValidationError{Code: protocol.CodeInternalError, Message: "unexpected validation failure"}
		}
		s.metrics.PipelineFailures.WithLabelValues("validate", string(verr.Code)).Inc()
		s.sendError(ctx, verr.Code, verr.Message)
		if s.malformedStreak >= s.opts.MalformedFrameLimit {
			s.log.Warn("closing connection after repeated malformed frames",
				slog.Int("count", s.malformedStreak))
			s.sendClose(ctx, websocket.ClosePolicyViolation, "too many malformed frames")
			return true
		}
		s.lastActivityAt = time.Now()
		resetTimer(idle, s.opts.InactivityTimeout)
		return false
	}
	s.malformedStreak = 0

	if s.inFlight {
		// Reject outright rather than queue; the in-flight request and the
		// inactivity deadline are left untouched.
		s.state = prev
		s.metrics.PipelineFailures.WithLabelValues("validate", string(protocol.CodeBusy)).Inc()
		s.sendError(ctx, protocol.CodeBusy, "a request is already in flight on this connection")
		return false
	}

	s.inFlight = true
	s.state = StateAwaitingReply
	s.lastActivityAt = time.Now()
	resetTimer(idle, s.opts.InactivityTimeout)
	go s.runPipeline(ctx, msg.Text, results, advanced)
	return false
}

// runPipeline performs the reply-then-audio sequence for one request.
// It runs apart from the handling loop so concurrent frames can be
// rejected while a request is in flight.
func (s *Session) runPipeline(ctx context.Context, text string, results chan<- pipelineResult, advanced chan<- struct{}) {
	started := time.Now()

	chatStart := time.Now()
	reply, err := s.chat.Complete(ctx, text)
	s.metrics.ObserveUpstreamLatency(string(upstream.ServiceChat), time.Since(chatStart))
	if err != nil {
		results <- pipelineResult{err: err, started: started}
		return
	}
	select {
	case advanced <- struct{}{}:
	default:
	}

	ttsStart := time.Now()
	audio, err := s.speech.Synthesize(ctx, reply)
	s.metrics.ObserveUpstreamLatency(string(upstream.ServiceSpeech), time.Since(ttsStart))
	if err != nil {
		results <- pipelineResult{err: err, started: started}
		return
	}

	results <- pipelineResult{audio: audio, started: started}
}

// failPipeline converts an adapter failure to exactly one error frame.
func (s *Session) failPipeline(ctx context.Context, err error) {
	code := protocol.CodeInternalError
	message := "request failed unexpectedly"
	stage := "pipeline"

	var uerr *upstream.Error
	if errors.As(err, &uerr) {
		stage = string(uerr.Service)
		switch uerr.Kind {
		case upstream.KindTimeout:
			if uerr.Service == upstream.ServiceChat {
				code = protocol.CodeChatTimeout
			} else {
				code = protocol.CodeTTSTimeout
			}
			message = uerr.Error()
		case upstream.KindStatus:
			code = protocol.CodeOpenAIError
			message = fmt.Sprintf("upstream %s service returned status %d", uerr.Service, uerr.Status)
		default:
			code = protocol.CodeInternalError
			message = uerr.Error()
		}
	}

	s.metrics.PipelineFailures.WithLabelValues(stage, string(code)).Inc()
	s.log.Warn("pipeline failed",
		slog.String("stage", stage),
		slog.String("code", string(code)))
	s.sendError(ctx, code, message)
}

func (s *Session) readLoop(ctx context.Context, inbound chan<- inboundFrame) {
	defer close(inbound)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case inbound <- inboundFrame{messageType: messageType, data: data}:
		case <-ctx.Done():
			return
		}
	}
}

// writeLoop owns every write on the connection. On shutdown it flushes
// frames already queued so error and close frames reach the client in
// order. A failed write cancels the session so Run stops queuing frames
// and tears the connection down.
func (s *Session) writeLoop(ctx context.Context, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case f := <-s.outbound:
					if s.writeFrame(f) != nil || f.close {
						return
					}
				default:
					return
				}
			}
		case f := <-s.outbound:
			if err := s.writeFrame(f); err != nil {
				cancel()
				return
			}
			if f.close {
				return
			}
		}
	}
}

func (s *Session) writeFrame(f outFrame) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	var err error
	switch {
	case f.close:
		err = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(f.closeCode, f.closeText))
	case f.binary:
		err = s.conn.WriteMessage(websocket.BinaryMessage, f.payload)
		s.metrics.WSMessages.WithLabelValues("outbound", "audio").Inc()
	default:
		err = s.conn.WriteJSON(f.value)
		s.metrics.WSMessages.WithLabelValues("outbound", "error").Inc()
	}
	if err != nil {
		s.log.Warn("write failed", slog.String("error", err.Error()))
	}
	return err
}

func (s *Session) sendError(ctx context.Context, code protocol.ErrorCode, message string) {
	s.enqueue(ctx, outFrame{value: protocol.NewErrorFrame(code, message)})
}

func (s *Session) enqueue(ctx context.Context, f outFrame) {
	select {
	case s.outbound <- f:
	case <-ctx.Done():
	}
}

// sendClose queues the closing handshake behind any pending frames.
func (s *Session) sendClose(ctx context.Context, code int, reason string) {
	s.enqueue(ctx, outFrame{close: true, closeCode: code, closeText: reason})
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
