package ui

import "sync"

// Recorder is a headless Display that keeps everything it was asked to show.
type Recorder struct {
	mu        sync.Mutex
	user      string
	balance   string
	notices   []Notice
	toggles   map[Control][]bool
	redirects int
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{toggles: make(map[Control][]bool)}
}

func (r *Recorder) ShowUser(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.user = label
}

func (r *Recorder) ShowBalance(formatted string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balance = formatted
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *Recorder) SetEnabled(c Control, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toggles[c] = append(r.toggles[c], enabled)
}

func (r *Recorder) RedirectToEntry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redirects++
}

// User returns the last label shown.
func (r *Recorder) User() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.user
}

// Balance returns the last balance shown.
func (r *Recorder) Balance() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balance
}

// Notices returns a copy of all notices, optionally filtered by target.
func (r *Recorder) Notices(targets ...Target) []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, 0, len(r.notices))
	for _, n := range r.notices {
		if len(targets) == 0 || containsTarget(targets, n.Target) {
			out = append(out, n)
		}
	}
	return out
}

// LastNotice returns the most recent notice for target.
func (r *Recorder) LastNotice(target Target) (Notice, bool) {
	notices := r.Notices(target)
	if len(notices) == 0 {
		return Notice{}, false
	}
	return notices[len(notices)-1], true
}

// Toggles returns the enable/disable sequence applied to c.
func (r *Recorder) Toggles(c Control) []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.toggles[c]...)
}

// Redirects counts RedirectToEntry calls.
func (r *Recorder) Redirects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.redirects
}

func containsTarget(targets []Target, t Target) bool {
	for _, candidate := range targets {
		if candidate == t {
			return true
		}
	}
	return false
}
