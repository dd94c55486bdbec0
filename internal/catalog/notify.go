package catalog

import (
	"context"
	"sync"
)

// Level is the tone of a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
)

// Notice is a short message for the user, shown transiently.
type Notice struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// Notifier shows notices to the user.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notice) { f(n) }

// Recorder keeps every notice it receives.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify implements Notifier.
func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

// Notices returns a copy of the recorded notices.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Texts returns the recorded notice texts.
func (r *Recorder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.notices))
	for i, n := range r.notices {
		out[i] = n.Text
	}
	return out
}

type notifierKey struct{}

// WithNotifier routes the notices of calls made with ctx to n instead of
// the service notifier.
func WithNotifier(ctx context.Context, n Notifier) context.Context {
	return context.WithValue(ctx, notifierKey{}, n)
}

func (s *Service) notify(ctx context.Context, level Level, text string) {
	n := Notice{Level: level, Text: text}
	if ctxN, ok := ctx.Value(notifierKey{}).(Notifier); ok && ctxN != nil {
		ctxN.Notify(n)
		return
	}
	if s.notifier != nil {
		s.notifier.Notify(n)
	}
}
