// Package mock provides test doubles for the asr.Provider and
// asr.SessionHandle interfaces.
//
// Tests preload Transcripts on a Session and feed audio through a
// recorded SendAudio; nothing connects to a real backend.
package mock

import (
	"context"
	"sync"

	"github.com/kaiwa-ai/uketsuke/pkg/provider/asr"
)

// Provider is a mock implementation of asr.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is handed out by StartStream. When nil a fresh empty
	// Session is created per call.
	Session *Session

	// StartErr, if non-nil, is returned by StartStream.
	StartErr error

	// StartCalls records the configs passed to StartStream.
	StartCalls []asr.StreamConfig

	// Sessions records every session handed out, oldest first.
	Sessions []*Session
}

var _ asr.Provider = (*Provider)(nil)

// StartStream implements asr.Provider.
func (p *Provider) StartStream(_ context.Context, cfg asr.StreamConfig) (asr.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartCalls = append(p.StartCalls, cfg)

	if p.StartErr != nil {
		return nil, p.StartErr
	}
	sess := p.Session
	if sess == nil {
		sess = NewSession()
	}
	p.Sessions = append(p.Sessions, sess)
	return sess, nil
}

// Starts returns the number of StartStream calls so far.
func (p *Provider) Starts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartCalls)
}

// Last returns the most recently handed out session, nil before the
// first StartStream.
func (p *Provider) Last() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Sessions) == 0 {
		return nil
	}
	return p.Sessions[len(p.Sessions)-1]
}

// Session is a scriptable asr.SessionHandle.
type Session struct {
	mu sync.Mutex

	results chan asr.Transcript
	closed  bool

	// SendErr, if non-nil, is returned by SendAudio.
	SendErr error

	// TerminalErr is returned by Err after the session ends.
	TerminalErr error

	// Sent records every audio chunk passed to SendAudio.
	Sent [][]byte
}

var _ asr.SessionHandle = (*Session)(nil)

// NewSession builds an open mock session.
func NewSession() *Session {
	return &Session{results: make(chan asr.Transcript, 64)}
}

// Emit pushes a transcript to the Results channel.
func (s *Session) Emit(t asr.Transcript) {
	s.results <- t
}

// SendAudio implements asr.SessionHandle.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return asr.ErrSessionClosed
	}
	if s.SendErr != nil {
		return s.SendErr
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	s.Sent = append(s.Sent, buf)
	return nil
}

// Results implements asr.SessionHandle.
func (s *Session) Results() <-chan asr.Transcript { return s.results }

// Err implements asr.SessionHandle.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TerminalErr
}

// Fail ends the session with err as the terminal error, as a vendor
// disconnect would.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TerminalErr = err
	if !s.closed {
		s.closed = true
		close(s.results)
	}
}

// Close implements asr.SessionHandle.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.results)
	}
	return nil
}
