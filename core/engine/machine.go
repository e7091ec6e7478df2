package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/botfsm/botfsm/core/logger"
)

// LandingStateID is the identifier of the root state every machine starts
// with. Freeform input carries no fingerprint and therefore matches it.
const LandingStateID = "START"

const logComponent = "engine"

// Machine is the state registry and dispatcher. States are registered at
// startup through Landing/State/Register; Handle is then safe for
// concurrent use across users, since per-update work touches only the
// envelope and the SessionStore.
type Machine struct {
	states  []*State
	byID    map[string]*State
	store   SessionStore
	landing string
}

// New constructs an empty machine backed by store.
func New(store SessionStore) *Machine {
	return &Machine{
		byID:    make(map[string]*State),
		store:   store,
		landing: LandingStateID,
	}
}

// Build constructs a machine and applies the declarative registration code.
func Build(store SessionStore, code func(*Machine)) *Machine {
	m := New(store)
	code(m)
	return m
}

// LandingStateID returns the id of the machine's root state.
func (m *Machine) LandingStateID() string { return m.landing }

// Store exposes the machine's session store to collaborating packages.
func (m *Machine) Store() SessionStore { return m.store }

// Landing declares the root state. Its fingerprint stays empty so that
// freeform input matches it.
func (m *Machine) Landing(code func(*State)) *State {
	return m.newState(m.landing, code)
}

// State declares a state with the given id. A non-empty shortID is added to
// the fingerprint under the compact-id key, keeping wire payloads short.
func (m *Machine) State(id, shortID string, code func(*State)) *State {
	s := m.newState(id, code)
	if shortID != "" {
		s.Require(KeyShortID, shortID)
	}
	return s
}

func (m *Machine) newState(id string, code func(*State)) *State {
	s := &State{
		id:         id,
		machine:    m,
		required:   NewFingerprint(),
		predicates: make(map[string]Predicate),
	}
	m.Register(s)
	if code != nil {
		code(s)
	}
	return s
}

// Register appends a state to the match order. Matching is first-registered
// wins; re-registering an id replaces the lookup entry but keeps the
// original match position.
func (m *Machine) Register(s *State) {
	s.machine = m
	if _, exists := m.byID[s.id]; !exists {
		m.states = append(m.states, s)
	}
	m.byID[s.id] = s
}

// GetState returns the state registered under id, or nil.
func (m *Machine) GetState(id string) *State {
	return m.byID[id]
}

// Handle runs one inbound envelope to completion: match, redirect lookup,
// action or dialog execution, render. It returns the state that handled the
// input. ErrNoMatch is recoverable; callers fall back to secondary dispatch.
func (m *Machine) Handle(ctx context.Context, env *Envelope, ui UI) (*State, error) {
	state := m.match(env)
	if state == nil {
		return nil, ErrNoMatch
	}

	_, isTransition := env.Contents.(Transition)
	if !isTransition {
		// Substitution applies only to the naive landing-state match.
		// Input claimed by a more specific state, a slash command above
		// all, outranks an in-progress dialog.
		if state.id == m.landing {
			if target := m.redirectTarget(ctx, env.User.ID); target != nil {
				logger.Debug(ctx, logComponent, "redirect",
					slog.String("from", state.id), slog.String("to", target.id))
				state = target
			}
		}
	} else if state.dialog != nil && state.id != m.landing {
		if err := m.setRedirect(ctx, env.User.ID, state.id); err != nil {
			return nil, fmt.Errorf("redirect save for state %s: %w", state.id, err)
		}
	} else if state.id == m.landing {
		if err := m.clearRedirect(ctx, env.User.ID); err != nil {
			return nil, fmt.Errorf("redirect clear: %w", err)
		}
	}

	logger.Debug(ctx, logComponent, "state_entered",
		slog.String("state_id", state.id), slog.Int64("user_id", env.User.ID))

	var (
		action StateAction
		err    error
	)
	switch {
	case state.action != nil:
		action, err = state.action(env)
	case state.dialog != nil:
		action, err = state.dialog.process(ctx, env)
	default:
		return state, fmt.Errorf("%w: %s", ErrNoAction, state.id)
	}
	if err != nil {
		return state, fmt.Errorf("action for state %s: %w", state.id, err)
	}

	if err := m.render(env, action, ui); err != nil {
		return state, err
	}
	return state, nil
}

// match returns the first registered state accepting the envelope. Command
// equality is checked over all states before fingerprint matching: a slash
// command carries an empty fingerprint and would otherwise be claimed by
// whichever fingerprint-empty state registered first.
func (m *Machine) match(env *Envelope) *State {
	if env.Command != "" {
		for _, s := range m.states {
			if !s.ignored && s.command != "" && s.command == env.Command {
				return s
			}
		}
	}
	for _, s := range m.states {
		if s.Matches(env) {
			return s
		}
	}
	return nil
}

// render resolves every button of the action into a wire payload and hands
// the finished message to the UI sink.
func (m *Machine) render(env *Envelope, action StateAction, ui UI) error {
	block := action.Buttons()
	wire := make([]WireButton, 0, len(block.Buttons))
	for _, b := range block.Buttons {
		if b.Payload != "" {
			wire = append(wire, WireButton{Label: b.Label, Payload: b.Payload})
			continue
		}
		target := m.byID[b.Target]
		if target == nil {
			return fmt.Errorf("%w: %q", ErrDanglingState, b.Target)
		}
		output := b.Output
		if output == nil {
			output = IdentityOutput
		}
		payload, err := target.required.Merge(output(env))
		if err != nil {
			return fmt.Errorf("payload for button %q: %w", b.Label, err)
		}
		wire = append(wire, WireButton{Label: b.Label, Payload: string(payload)})
	}
	columns := block.Columns
	if columns < 1 {
		columns = 1
	}
	_, fromButton := env.Contents.(Transition)
	return ui.Show(WireMessage{
		Text:        action.Text(),
		Buttons:     wire,
		Columns:     columns,
		InplaceEdit: block.InplaceEdit && fromButton,
	})
}

// redirectTarget reads the landing session's redirect slot and resolves it
// to a registered state. A stale id pointing nowhere is ignored.
func (m *Machine) redirectTarget(ctx context.Context, userID int64) *State {
	blob := m.loadBlob(ctx, userID, m.landing)
	id, _ := blob[KeyRedirect].(string)
	if id == "" {
		return nil
	}
	return m.byID[id]
}

// setRedirect records stateID in the landing session so that subsequent
// freeform messages keep routing into the in-progress dialog.
func (m *Machine) setRedirect(ctx context.Context, userID int64, stateID string) error {
	blob := m.loadBlob(ctx, userID, m.landing)
	blob[KeyRedirect] = stateID
	return m.saveBlob(ctx, userID, m.landing, blob)
}

// clearRedirect removes only the redirect slot, preserving whatever else
// lives in the landing session.
func (m *Machine) clearRedirect(ctx context.Context, userID int64) error {
	blob := m.loadBlob(ctx, userID, m.landing)
	if _, ok := blob[KeyRedirect]; !ok {
		return nil
	}
	delete(blob, KeyRedirect)
	if len(blob) == 0 {
		return m.store.Reset(ctx, userID, m.landing)
	}
	return m.saveBlob(ctx, userID, m.landing, blob)
}

// loadBlob reads a session blob as a JSON object. Absence and corruption
// both yield an empty object; a session is advisory state, never a reason
// to fail an update.
func (m *Machine) loadBlob(ctx context.Context, userID int64, stateID string) map[string]any {
	data, err := m.store.Load(ctx, userID, stateID)
	if err != nil {
		logger.Warn(ctx, logComponent, "session_load_failed",
			slog.String("state_id", stateID), slog.Int64("user_id", userID), slog.Any("error", err))
		return map[string]any{}
	}
	if len(data) == 0 {
		return map[string]any{}
	}
	var blob map[string]any
	if err := json.Unmarshal(data, &blob); err != nil {
		logger.Warn(ctx, logComponent, "session_blob_corrupt",
			slog.String("state_id", stateID), slog.Int64("user_id", userID), slog.Any("error", err))
		return map[string]any{}
	}
	return blob
}

func (m *Machine) saveBlob(ctx context.Context, userID int64, stateID string, blob map[string]any) error {
	data, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("session blob for state %s: %w", stateID, err)
	}
	return m.store.Save(ctx, userID, stateID, data)
}
