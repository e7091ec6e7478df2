package engine

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

var testUser = User{ID: 123, Username: "test", DisplayName: "test"}

type captureUI struct {
	messages []WireMessage
}

func (c *captureUI) Show(msg WireMessage) error {
	c.messages = append(c.messages, msg)
	return nil
}

func (c *captureUI) last(t *testing.T) WireMessage {
	t.Helper()
	if len(c.messages) == 0 {
		t.Fatal("no message rendered")
	}
	return c.messages[len(c.messages)-1]
}

func textInput(text string) *Envelope {
	env := NewEnvelope(testUser)
	env.Contents = Text{Text: text}
	return env
}

func commandInput(name string) *Envelope {
	env := NewEnvelope(testUser)
	env.Command = name
	env.Contents = Command{Name: name}
	return env
}

func transitionTo(s *State) *Envelope {
	env := NewEnvelope(testUser)
	env.State = s.Fingerprint().Clone()
	env.Contents = Transition{Raw: env.State}
	return env
}

// clickButton turns a rendered wire button back into the envelope the
// platform would deliver when the user taps it.
func clickButton(t *testing.T, btn WireButton) *Envelope {
	t.Helper()
	var raw map[string]any
	if err := json.Unmarshal([]byte(btn.Payload), &raw); err != nil {
		t.Fatalf("button payload %q: %v", btn.Payload, err)
	}
	state, ctx := SplitContext(raw)
	env := NewEnvelope(testUser)
	env.State = state
	env.Context = ctx
	env.Contents = Transition{Raw: state}
	return env
}

func noopAction(*Envelope) (StateAction, error) {
	return NewButtonsAction(Plain("")), nil
}

func TestEmptyMachineMatchesNothing(t *testing.T) {
	m := New(NewMemoryStore())
	_, err := m.Handle(context.Background(), textInput("hello"), DiscardUI)
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestStatesRegisteredButNoneMatch(t *testing.T) {
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.State("STATE_A", "", func(s *State) { s.Require("A", true) })
		m.State("STATE_B", "", func(s *State) { s.Require("B", true) })
	})
	env := NewEnvelope(testUser)
	env.State = NewFingerprint().With("A", false)
	env.Contents = Transition{Raw: env.State}
	if _, err := m.Handle(context.Background(), env, DiscardUI); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestMatchedStateWithoutAction(t *testing.T) {
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.State("STATE_B", "", func(s *State) { s.Require("B", true) })
	})
	env := NewEnvelope(testUser)
	env.State = NewFingerprint().With("B", true)
	env.Contents = Transition{Raw: env.State}
	_, err := m.Handle(context.Background(), env, DiscardUI)
	if !errors.Is(err, ErrNoAction) {
		t.Fatalf("expected ErrNoAction, got %v", err)
	}
}

func TestMatchedStateRunsAction(t *testing.T) {
	calls := 0
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.State("STATE_B", "", func(s *State) {
			s.Require("B", true)
			s.Action(func(env *Envelope) (StateAction, error) {
				calls++
				return NewButtonsAction(Plain("hi")), nil
			})
		})
	})
	env := NewEnvelope(testUser)
	env.State = NewFingerprint().With("B", true)
	env.Contents = Transition{Raw: env.State}
	state, err := m.Handle(context.Background(), env, DiscardUI)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if state.ID() != "STATE_B" || calls != 1 {
		t.Fatalf("state=%s calls=%d", state.ID(), calls)
	}
}

func TestFirstRegisteredWins(t *testing.T) {
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.State("STATE_B0", "", func(s *State) {
			s.Require("B", true)
			s.Action(noopAction)
		})
		m.State("STATE_B1", "", func(s *State) {
			s.Require("B", true)
			s.Action(noopAction)
		})
	})
	env := NewEnvelope(testUser)
	env.State = NewFingerprint().With("B", true)
	env.Contents = Transition{Raw: env.State}
	state, err := m.Handle(context.Background(), env, DiscardUI)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if state.ID() != "STATE_B0" {
		t.Fatalf("expected first registered state, got %s", state.ID())
	}
}

func TestExactMatchRejectsExtraKeys(t *testing.T) {
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.State("EXACT", "", func(s *State) {
			s.Require("B", true)
			s.Action(noopAction)
		})
	})
	env := NewEnvelope(testUser)
	env.State = NewFingerprint().With("B", true).With("extra", 1)
	env.Contents = Transition{Raw: env.State}
	if _, err := m.Handle(context.Background(), env, DiscardUI); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch for extra key, got %v", err)
	}
}

func TestSubsetMatchAllowsExtraKeys(t *testing.T) {
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.State("CATCH", "", func(s *State) {
			s.Require("B", true)
			s.Subset()
			s.Action(noopAction)
		})
	})
	env := NewEnvelope(testUser)
	env.State = NewFingerprint().With("B", true).With("extra", 1)
	env.Contents = Transition{Raw: env.State}
	state, err := m.Handle(context.Background(), env, DiscardUI)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if state.ID() != "CATCH" {
		t.Fatalf("got %s", state.ID())
	}
}

func TestIgnoredStateNeverMatches(t *testing.T) {
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.State("HIDDEN", "", func(s *State) {
			s.Require("B", true)
			s.Ignore()
			s.Action(noopAction)
		})
	})
	env := NewEnvelope(testUser)
	env.State = NewFingerprint().With("B", true)
	env.Contents = Transition{Raw: env.State}
	if _, err := m.Handle(context.Background(), env, DiscardUI); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestCommandMatchBypassesFingerprint(t *testing.T) {
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.State("HELP", "h", func(s *State) {
			s.Command("help")
			s.Action(noopAction)
		})
	})
	state, err := m.Handle(context.Background(), commandInput("help"), DiscardUI)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if state.ID() != "HELP" {
		t.Fatalf("got %s", state.ID())
	}
}

func TestPredicateMatch(t *testing.T) {
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.State("NUM", "", func(s *State) {
			s.RequireFunc("n", func(v any) bool {
				n, ok := v.(int64)
				return ok && n > 10
			})
			s.Action(noopAction)
		})
	})
	env := NewEnvelope(testUser)
	env.State = NewFingerprint().With("n", 42)
	env.Contents = Transition{Raw: env.State}
	if _, err := m.Handle(context.Background(), env, DiscardUI); err != nil {
		t.Fatalf("accepting predicate: %v", err)
	}
	env.State = NewFingerprint().With("n", 5)
	if _, err := m.Handle(context.Background(), env, DiscardUI); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch for rejected predicate, got %v", err)
	}
}

func TestDanglingButtonTarget(t *testing.T) {
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.Landing(func(s *State) {
			s.Menu(Plain("menu"), Button{Target: "NOWHERE", Label: "go"})
		})
	})
	_, err := m.Handle(context.Background(), textInput("hi"), DiscardUI)
	if !errors.Is(err, ErrDanglingState) {
		t.Fatalf("expected ErrDanglingState, got %v", err)
	}
}

func TestButtonPayloadMergesTargetFingerprintAndContext(t *testing.T) {
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.Landing(func(s *State) {
			s.Menu(Plain("menu"), Button{
				Target: "STATE_B",
				Label:  "go",
				Output: func(*Envelope) Fingerprint {
					return NewFingerprint().With("from", "landing")
				},
			})
		})
		m.State("STATE_B", "B", func(s *State) { s.Action(noopAction) })
	})
	ui := &captureUI{}
	if _, err := m.Handle(context.Background(), textInput("hi"), ui); err != nil {
		t.Fatalf("handle: %v", err)
	}
	msg := ui.last(t)
	if len(msg.Buttons) != 1 {
		t.Fatalf("expected one button, got %d", len(msg.Buttons))
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(msg.Buttons[0].Payload), &raw); err != nil {
		t.Fatalf("payload: %v", err)
	}
	state, ctx := SplitContext(raw)
	if got := state.GetString(KeyShortID); got != "B" {
		t.Fatalf("short id = %q", got)
	}
	if got := ctx.GetString("from"); got != "landing" {
		t.Fatalf("context from = %q", got)
	}
}

func TestRedirectToDialogState(t *testing.T) {
	callsLanding := 0
	callsB := 0
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.Landing(func(s *State) {
			s.Action(func(env *Envelope) (StateAction, error) {
				callsLanding++
				return NewSimpleAction("", LandingStateID, env, nil), nil
			})
		})
		m.State("STATE_B", "B", func(s *State) {
			s.Dialog(func(*Dialog) {})
			s.Action(func(env *Envelope) (StateAction, error) {
				callsB++
				return NewSimpleAction("", LandingStateID, env, nil), nil
			})
		})
	})
	ctx := context.Background()

	if _, err := m.Handle(ctx, transitionTo(m.GetState("STATE_B")), DiscardUI); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if callsB != 1 {
		t.Fatalf("callsB = %d", callsB)
	}

	// A freeform message carries no fingerprint and would naively land on
	// the root state, but the stored redirect routes it back to STATE_B.
	if _, err := m.Handle(ctx, textInput("test"), DiscardUI); err != nil {
		t.Fatalf("text: %v", err)
	}
	if callsB != 2 || callsLanding != 0 {
		t.Fatalf("callsB = %d, callsLanding = %d", callsB, callsLanding)
	}
}

func TestCommandOutranksActiveRedirect(t *testing.T) {
	callsHelp := 0
	callsForm := 0
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.Landing(func(s *State) {
			s.Action(func(env *Envelope) (StateAction, error) {
				return NewSimpleAction("", LandingStateID, env, nil), nil
			})
		})
		m.State("HELP", "h", func(s *State) {
			s.Command("help")
			s.Action(func(env *Envelope) (StateAction, error) {
				callsHelp++
				return NewSimpleAction("", LandingStateID, env, nil), nil
			})
		})
		m.State("FORM", "F", func(s *State) {
			s.Dialog(func(*Dialog) {})
			s.Action(func(env *Envelope) (StateAction, error) {
				callsForm++
				return NewSimpleAction("", LandingStateID, env, nil), nil
			})
		})
	})
	ctx := context.Background()

	if _, err := m.Handle(ctx, transitionTo(m.GetState("FORM")), DiscardUI); err != nil {
		t.Fatalf("transition to FORM: %v", err)
	}
	if callsForm != 1 {
		t.Fatalf("callsForm = %d", callsForm)
	}

	// A slash command matches its own state; the stored redirect only
	// reroutes input that would naively land on the root state.
	state, err := m.Handle(ctx, commandInput("help"), DiscardUI)
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	if state.ID() != "HELP" || callsHelp != 1 {
		t.Fatalf("state = %s, callsHelp = %d", state.ID(), callsHelp)
	}

	// The redirect survives the command; freeform input keeps routing into
	// the dialog state.
	if _, err := m.Handle(ctx, textInput("more"), DiscardUI); err != nil {
		t.Fatalf("text: %v", err)
	}
	if callsForm != 2 {
		t.Fatalf("callsForm = %d", callsForm)
	}
}

func TestRedirectClearsWhenReturningToLanding(t *testing.T) {
	callsLanding := 0
	callsB := 0
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.Landing(func(s *State) {
			s.Action(func(env *Envelope) (StateAction, error) {
				callsLanding++
				return NewSimpleAction("", LandingStateID, env, nil), nil
			})
		})
		m.State("STATE_B", "B", func(s *State) {
			s.Dialog(func(*Dialog) {})
			s.Action(func(env *Envelope) (StateAction, error) {
				callsB++
				return NewSimpleAction("", LandingStateID, env, nil), nil
			})
		})
	})
	ctx := context.Background()

	if _, err := m.Handle(ctx, transitionTo(m.GetState("STATE_B")), DiscardUI); err != nil {
		t.Fatalf("transition to B: %v", err)
	}
	if _, err := m.Handle(ctx, transitionTo(m.GetState(LandingStateID)), DiscardUI); err != nil {
		t.Fatalf("transition to landing: %v", err)
	}
	if callsB != 1 || callsLanding != 1 {
		t.Fatalf("callsB = %d, callsLanding = %d", callsB, callsLanding)
	}

	// With the redirect cleared, freeform input stays on the landing state.
	if _, err := m.Handle(ctx, textInput("test"), DiscardUI); err != nil {
		t.Fatalf("text: %v", err)
	}
	if callsB != 1 || callsLanding != 2 {
		t.Fatalf("callsB = %d, callsLanding = %d", callsB, callsLanding)
	}
}

func TestHandleIsIdempotentForMenus(t *testing.T) {
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.Landing(func(s *State) {
			s.Menu(Plain("menu"), Button{Target: "STATE_B", Label: "go"})
		})
		m.State("STATE_B", "B", func(s *State) { s.Action(noopAction) })
	})
	ctx := context.Background()
	first := &captureUI{}
	second := &captureUI{}
	if _, err := m.Handle(ctx, textInput("hi"), first); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := m.Handle(ctx, textInput("hi"), second); err != nil {
		t.Fatalf("second: %v", err)
	}
	if !reflect.DeepEqual(first.messages, second.messages) {
		t.Fatalf("renders differ: %v vs %v", first.messages, second.messages)
	}
}

func TestInplaceEditOnlyForButtonClicks(t *testing.T) {
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.Landing(func(s *State) {
			s.Menu(Plain("menu"), Button{Target: LandingStateID, Label: "again"})
		})
	})
	ctx := context.Background()
	ui := &captureUI{}
	if _, err := m.Handle(ctx, textInput("hi"), ui); err != nil {
		t.Fatalf("text: %v", err)
	}
	if ui.last(t).InplaceEdit {
		t.Fatal("freeform input must not request in-place edit")
	}
	if _, err := m.Handle(ctx, clickButton(t, ui.last(t).Buttons[0]), ui); err != nil {
		t.Fatalf("click: %v", err)
	}
	if !ui.last(t).InplaceEdit {
		t.Fatal("button click should request in-place edit")
	}
}
