package engine

import "fmt"

// Predicate validates a single fingerprint value during matching.
type Predicate func(value any) bool

// State is one node of the conversation graph. States are created through
// the Machine's registration DSL at startup and are immutable afterwards.
type State struct {
	id         string
	machine    *Machine
	required   Fingerprint
	predicates map[string]Predicate
	subset     bool
	ignored    bool
	command    string
	action     ActionFunc
	dialog     *Dialog
}

// ID returns the state's stable identifier.
func (s *State) ID() string { return s.id }

// Fingerprint returns the state's declared key/value requirements. Callers
// must not mutate the result; Clone first.
func (s *State) Fingerprint() Fingerprint { return s.required }

// HasDialog reports whether a dialog is attached.
func (s *State) HasDialog() bool { return s.dialog != nil }

// Require adds a key/value requirement to the state's fingerprint.
func (s *State) Require(key string, value any) *State {
	s.required[key] = normalizeScalar(value)
	return s
}

// RequireAll merges every pair of fp into the state's fingerprint.
func (s *State) RequireAll(fp Fingerprint) *State {
	for k, v := range fp {
		s.required[k] = normalizeScalar(v)
	}
	return s
}

// RequireFunc binds a predicate to a key. The key must be present in the
// input and accepted by the predicate for the state to match.
func (s *State) RequireFunc(key string, pred Predicate) *State {
	s.predicates[key] = pred
	return s
}

// Subset relaxes matching: the input may carry keys beyond the declared
// fingerprint. Used for catch-all states.
func (s *State) Subset() *State {
	s.subset = true
	return s
}

// Ignore excludes the state from matching entirely. An ignored state still
// resolves as a button target, which is how a dialog declares its trigger
// fingerprint without being independently reachable.
func (s *State) Ignore() *State {
	s.ignored = true
	return s
}

// Command makes the state match any envelope whose command equals name,
// bypassing fingerprint comparison.
func (s *State) Command(name string) *State {
	s.command = name
	return s
}

// Action binds the state's handler.
func (s *State) Action(fn ActionFunc) *State {
	s.action = fn
	return s
}

// Menu binds a handler producing a static menu: markdown text plus
// label/target button pairs laid out in one column.
func (s *State) Menu(text TextMessage, buttons ...Button) *State {
	action := NewButtonsAction(text, buttons...)
	return s.Action(func(*Envelope) (StateAction, error) {
		return action, nil
	})
}

// Dialog attaches a multi-step dialog built by fn. The dialog handles the
// state's input unless an explicit Action is also bound, in which case the
// action wins and the dialog only marks the state for redirect tracking.
func (s *State) Dialog(fn func(*Dialog)) *State {
	d := newDialog(s)
	fn(d)
	s.dialog = d
	return s
}

// Matches implements the matching algorithm run by Machine.Handle. Ignored
// states never match. A configured command short-circuits on equality.
// Otherwise every declared pair must be present and equal in the input,
// every predicate key must be present and accepted, and, unless the state
// is a subset matcher, the input must carry no keys beyond the declared
// and predicate-bound ones.
func (s *State) Matches(env *Envelope) bool {
	if s.ignored {
		return false
	}
	if s.command != "" && s.command == env.Command {
		return true
	}
	if !env.State.ContainsAll(s.required) {
		return false
	}
	for key, pred := range s.predicates {
		v, ok := env.State[key]
		if !ok || !pred(v) {
			return false
		}
	}
	if s.subset {
		return true
	}
	for key := range env.State {
		if _, ok := s.required[key]; ok {
			continue
		}
		if _, ok := s.predicates[key]; ok {
			continue
		}
		return false
	}
	return true
}

func (s *State) String() string {
	return fmt.Sprintf("State(id=%s, fingerprint=%s, subset=%v, ignored=%v)", s.id, s.required, s.subset, s.ignored)
}
