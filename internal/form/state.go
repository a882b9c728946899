package form

import "fmt"

// ErrCorrectionRejected marks an update_previous attempt against a field
// that is not yet completed. It is non-fatal: callers turn it into a
// structured failure response.
type ErrCorrectionRejected struct {
	FieldID string
	Reason  string
}

func (e *ErrCorrectionRejected) Error() string {
	return fmt.Sprintf("correction rejected for %q: %s", e.FieldID, e.Reason)
}

// State tracks the progress of one form-collection session: which field is
// next, what has been answered and any outstanding validation errors.
//
// State is not internally locked. Callers serialise access; the session
// owner holds a lock across tool handling and web-layer corrections.
type State struct {
	fields       []Field
	currentIndex int
	answers      map[string]string
	errors       map[string]string
}

// NewState creates a State over the given ordered field list. Pass
// Catalog() for the full registration form.
func NewState(fields []Field) *State {
	return &State{
		fields:  fields,
		answers: make(map[string]string),
		errors:  make(map[string]string),
	}
}

// Len returns the number of fields in the form.
func (s *State) Len() int { return len(s.fields) }

// CurrentIndex returns the index of the next field to collect. It equals
// Len() once every field has been visited.
func (s *State) CurrentIndex() int { return s.currentIndex }

// Current returns the field at the current index, or false when the form
// is complete.
func (s *State) Current() (Field, bool) {
	if s.currentIndex >= len(s.fields) {
		return Field{}, false
	}
	return s.fields[s.currentIndex], true
}

// IndexOf returns the position of a field id, or -1 when unknown.
func (s *State) IndexOf(id string) int {
	for i, f := range s.fields {
		if f.ID == id {
			return i
		}
	}
	return -1
}

// Advance moves to the next field. It saturates at Len(): advancing a
// completed form is a no-op.
func (s *State) Advance() {
	if s.currentIndex < len(s.fields) {
		s.currentIndex++
	}
}

// RecordValue stores an answer for a field and clears any validation error
// recorded against it. It does not advance the index.
func (s *State) RecordValue(id, value string) {
	s.answers[id] = value
	delete(s.errors, id)
}

// SetError records a validation error message for a field.
func (s *State) SetError(id, msg string) {
	s.errors[id] = msg
}

// UpdatePrevious corrects an already-completed field. It is permitted only
// for fields strictly before the current index; the current field and
// not-yet-reached fields are rejected without mutation. The index never
// changes.
func (s *State) UpdatePrevious(id, value string) error {
	idx := s.IndexOf(id)
	if idx < 0 {
		return &ErrCorrectionRejected{FieldID: id, Reason: "unknown field"}
	}
	if idx >= s.currentIndex {
		return &ErrCorrectionRejected{FieldID: id, Reason: "field has not been completed yet"}
	}
	s.answers[id] = value
	delete(s.errors, id)
	return nil
}

// ProgressPercent returns the share of answered fields as a percentage,
// clamped to [0,100]. It reaches exactly 100 once every field has an
// answer.
func (s *State) ProgressPercent() float64 {
	if len(s.fields) == 0 {
		return 100
	}
	p := 100 * float64(len(s.answers)) / float64(len(s.fields))
	if p > 100 {
		return 100
	}
	return p
}

// IsComplete reports whether every field has been visited.
func (s *State) IsComplete() bool {
	return s.currentIndex >= len(s.fields)
}

// Answers returns a copy of the recorded answers keyed by field id.
func (s *State) Answers() map[string]string {
	out := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// Errors returns a copy of the outstanding validation errors.
func (s *State) Errors() map[string]string {
	out := make(map[string]string, len(s.errors))
	for k, v := range s.errors {
		out[k] = v
	}
	return out
}

// Snapshot is a read-only view of the state for the web layer.
type Snapshot struct {
	CurrentIndex    int               `json:"current_index"`
	CurrentFieldID  string            `json:"current_field_id,omitempty"`
	Answers         map[string]string `json:"answers"`
	Errors          map[string]string `json:"errors"`
	ProgressPercent float64           `json:"progress_percent"`
	Complete        bool              `json:"complete"`
}

// TakeSnapshot captures the observable state. Like all State methods it
// must be called from the owning goroutine.
func (s *State) TakeSnapshot() Snapshot {
	snap := Snapshot{
		CurrentIndex:    s.currentIndex,
		Answers:         s.Answers(),
		Errors:          s.Errors(),
		ProgressPercent: s.ProgressPercent(),
		Complete:        s.IsComplete(),
	}
	if f, ok := s.Current(); ok {
		snap.CurrentFieldID = f.ID
	}
	return snap
}
