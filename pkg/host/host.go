// Package host abstracts the interactive side of an install: confirmation
// prompts and progress reporting. The install core only talks to [Host], so
// it runs unchanged behind a terminal UI, in CI, or in tests.
package host

import (
	"strings"
	"sync"
)

// Answer is the reply to a confirmation prompt.
type Answer int

const (
	No Answer = iota
	Yes
	YesToAll
	NoToAll
)

func (a Answer) String() string {
	switch a {
	case Yes:
		return "yes"
	case YesToAll:
		return "yes to all"
	case NoToAll:
		return "no to all"
	default:
		return "no"
	}
}

// Accepted reports whether a is Yes or YesToAll.
func (a Answer) Accepted() bool { return a == Yes || a == YesToAll }

// Sticky reports whether a applies to every later prompt of the same kind.
func (a Answer) Sticky() bool { return a == YesToAll || a == NoToAll }

// ParseAnswer maps typed replies ("y", "yes", "a", "yes to all", "n", "l",
// "no to all", ...) to an Answer. Anything unrecognized is No.
func ParseAnswer(s string) Answer {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return Yes
	case "a", "all", "yes to all":
		return YesToAll
	case "l", "none", "no to all":
		return NoToAll
	default:
		return No
	}
}

// Host is implemented by whatever drives the install.
type Host interface {
	// Confirm asks a yes/no question.
	Confirm(message, title string) Answer
	// Progress reports percent completion (0-100) of an activity. A negative
	// percent marks the activity complete.
	Progress(activity int, label string, percent int)
}

// NonInteractive answers every prompt with a fixed reply and discards
// progress. The zero value denies everything.
type NonInteractive struct {
	Reply Answer
}

func (h NonInteractive) Confirm(string, string) Answer { return h.Reply }
func (NonInteractive) Progress(int, string, int)       {}

// Prompt is one recorded confirmation.
type Prompt struct {
	Message string
	Title   string
}

// Recorder answers prompts from a script of replies and records every call.
// Once the script runs out it answers Default. It is safe for concurrent use.
type Recorder struct {
	Replies []Answer
	Default Answer

	mu       sync.Mutex
	prompts  []Prompt
	progress []string
}

func (r *Recorder) Confirm(message, title string) Answer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, Prompt{Message: message, Title: title})
	if len(r.Replies) == 0 {
		return r.Default
	}
	a := r.Replies[0]
	r.Replies = r.Replies[1:]
	return a
}

func (r *Recorder) Progress(_ int, label string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, label)
}

// Prompts returns the confirmations asked so far.
func (r *Recorder) Prompts() []Prompt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Prompt(nil), r.prompts...)
}

// ProgressLabels returns the progress labels reported so far.
func (r *Recorder) ProgressLabels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.progress...)
}

// Quiet wraps h so progress reports are dropped while prompts still reach h.
func Quiet(h Host) Host { return quiet{h} }

type quiet struct{ Host }

func (quiet) Progress(int, string, int) {}
