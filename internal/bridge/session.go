package bridge

import "sync"

// Session abstracts the shared platform audio output resource. The
// coordinator activates it before playback and deactivates it only once
// nothing in the registry is playing anymore.
type Session interface {
	// Configure applies the focus/background/silent-switch policy.
	// Failures are best-effort and never fail playback calls.
	Configure(focus, background, ignoreSilent bool) error
	// Activate requests the session; a no-op when other audio is active
	// elsewhere so the bridge never fights a concurrent source.
	Activate() error
	// Deactivate releases the session.
	Deactivate() error
	// OtherAudioPlaying reports whether an external source holds the
	// output (e.g. a VoIP call).
	OtherAudioPlaying() bool
}

// ProcessSession is the default Session: the process owns its output
// exclusively, so activation is a reference-counted flag and no external
// audio ever competes.
type ProcessSession struct {
	mu         sync.Mutex
	active     bool
	focus      bool
	background bool
	ignore     bool
}

// NewProcessSession creates the default session implementation.
func NewProcessSession() *ProcessSession {
	return &ProcessSession{ignore: true}
}

func (s *ProcessSession) Configure(focus, background, ignoreSilent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focus = focus
	s.background = background
	s.ignore = ignoreSilent
	return nil
}

func (s *ProcessSession) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	return nil
}

func (s *ProcessSession) Deactivate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	return nil
}

func (s *ProcessSession) OtherAudioPlaying() bool { return false }

// Active reports whether the session is currently held.
func (s *ProcessSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
