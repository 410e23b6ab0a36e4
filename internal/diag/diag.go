// Package diag implements structured diagnostics: severities, source
// locations, optional notes, and a thread-safe sink that coalesces
// duplicates within a batch.
package diag

import (
	"fmt"
	"strings"
	"sync"
)

// Severity classifies a diagnostic.
type Severity int

const (
	SeverityNote Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityNote:
		return "note"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Location is a half-open source range. Expressions carry the range of their
// originating configuration; UnknownLocation marks synthesized nodes.
type Location struct {
	Begin int
	End   int
}

// UnknownLocation marks diagnostics without a source anchor.
var UnknownLocation = Location{Begin: -1, End: -1}

func (l Location) Known() bool {
	return l.Begin >= 0
}

func (l Location) String() string {
	if !l.Known() {
		return "<unknown>"
	}
	return fmt.Sprintf("%d..%d", l.Begin, l.End)
}

// Diagnostic is one structured message with a primary location and optional
// notes.
type Diagnostic struct {
	Severity Severity
	Message  string
	Primary  Location
	Notes    []string
}

func (d Diagnostic) String() string {
	var sb strings.Builder
	sb.WriteString(d.Severity.String())
	sb.WriteString(": ")
	sb.WriteString(d.Message)
	if d.Primary.Known() {
		fmt.Fprintf(&sb, " (at %s)", d.Primary)
	}
	for _, n := range d.Notes {
		sb.WriteString("; note: ")
		sb.WriteString(n)
	}
	return sb.String()
}

// Handler receives diagnostics.
type Handler interface {
	Emit(Diagnostic)
}

// Builder assembles a diagnostic fluently:
//
//	diag.Warningf("integer overflow").Primary(loc).Emit(h)
type Builder struct {
	d Diagnostic
}

// Notef creates a note-severity builder.
func Notef(format string, args ...any) *Builder {
	return newBuilder(SeverityNote, format, args...)
}

// Warningf creates a warning-severity builder.
func Warningf(format string, args ...any) *Builder {
	return newBuilder(SeverityWarning, format, args...)
}

// Errorf creates an error-severity builder.
func Errorf(format string, args ...any) *Builder {
	return newBuilder(SeverityError, format, args...)
}

func newBuilder(s Severity, format string, args ...any) *Builder {
	return &Builder{d: Diagnostic{
		Severity: s,
		Message:  fmt.Sprintf(format, args...),
		Primary:  UnknownLocation,
	}}
}

// Primary sets the primary source location.
func (b *Builder) Primary(l Location) *Builder {
	b.d.Primary = l
	return b
}

// Note appends a secondary note.
func (b *Builder) Note(format string, args ...any) *Builder {
	b.d.Notes = append(b.d.Notes, fmt.Sprintf(format, args...))
	return b
}

// Emit hands the diagnostic to the handler.
func (b *Builder) Emit(h Handler) {
	h.Emit(b.d)
}

// Done returns the assembled diagnostic without emitting it.
func (b *Builder) Done() Diagnostic {
	return b.d
}

type dedupKey struct {
	severity Severity
	message  string
	primary  Location
}

// Sink accumulates diagnostics. It serializes its own writes and coalesces
// duplicates — same severity, message, and primary location — within one
// batch window; ResetBatch opens the next window. Deduplication is a
// performance affordance, not a correctness requirement.
type Sink struct {
	mu     sync.Mutex
	seen   map[dedupKey]struct{}
	all    []Diagnostic
	failed bool
	next   Handler
}

// NewSink returns an empty sink. The optional next handler receives every
// non-duplicate diagnostic, e.g. a console printer.
func NewSink(next Handler) *Sink {
	return &Sink{seen: make(map[dedupKey]struct{}), next: next}
}

// Emit implements Handler.
func (s *Sink) Emit(d Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Severity == SeverityError {
		s.failed = true
	}
	key := dedupKey{severity: d.Severity, message: d.Message, primary: d.Primary}
	if _, dup := s.seen[key]; dup {
		return
	}
	s.seen[key] = struct{}{}
	s.all = append(s.all, d)
	if s.next != nil {
		s.next.Emit(d)
	}
}

// ResetBatch clears the deduplication window. Call between batches.
func (s *Sink) ResetBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.seen)
}

// Diagnostics returns a copy of everything collected so far.
func (s *Sink) Diagnostics() []Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Diagnostic, len(s.all))
	copy(out, s.all)
	return out
}

// Failed reports whether any error-severity diagnostic was emitted. An error
// diagnostic terminates the pipeline; warnings do not.
func (s *Sink) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}
