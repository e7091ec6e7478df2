package engine

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func dialogBlob(t *testing.T, m *Machine, stateID string) map[string]any {
	t.Helper()
	data, err := m.Store().Load(context.Background(), testUser.ID, stateID)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if len(data) == 0 {
		return map[string]any{}
	}
	var blob map[string]any
	if err := json.Unmarshal(data, &blob); err != nil {
		t.Fatalf("session blob: %v", err)
	}
	return blob
}

func TestDialogStoresTextInput(t *testing.T) {
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.Landing(func(s *State) {
			s.Dialog(func(d *Dialog) {
				d.Text("f1", Plain("Prompt"), "")
				d.Apply(Plain("Confirm?"), Plain("Done"), nil)
			})
		})
	})
	ctx := context.Background()

	if _, err := m.Handle(ctx, transitionTo(m.GetState(LandingStateID)), DiscardUI); err != nil {
		t.Fatalf("enter dialog: %v", err)
	}
	if _, err := m.Handle(ctx, textInput("Hello World"), DiscardUI); err != nil {
		t.Fatalf("text: %v", err)
	}

	blob := dialogBlob(t, m, LandingStateID)
	if got, _ := blob["f1"].(string); got != "Hello World" {
		t.Fatalf("f1 = %v", blob["f1"])
	}
}

func TestDialogCancelReturnsToConfiguredState(t *testing.T) {
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.Landing(func(s *State) {
			s.Dialog(func(d *Dialog) {
				d.Text("f1", Plain("Prompt"), "")
				d.Apply(Plain("Confirm?"), Plain("Done"), nil)
				d.Cancel("EXIT")
			})
		})
		m.State("EXIT", "s1", func(s *State) {
			s.Action(func(env *Envelope) (StateAction, error) {
				return NewSimpleAction("EXIT", LandingStateID, env, nil), nil
			})
		})
	})
	ctx := context.Background()

	// 1. Enter the dialog.
	if _, err := m.Handle(ctx, transitionTo(m.GetState(LandingStateID)), DiscardUI); err != nil {
		t.Fatalf("enter dialog: %v", err)
	}
	// 2. Answer the text step; expect the Yes/No confirmation.
	ui := &captureUI{}
	if _, err := m.Handle(ctx, textInput("Hello World"), ui); err != nil {
		t.Fatalf("text: %v", err)
	}
	confirm := ui.last(t)
	if len(confirm.Buttons) != 2 {
		t.Fatalf("expected Yes/No, got %d buttons", len(confirm.Buttons))
	}
	// 3. Click "No"; expect a cancellation message with one go-back button.
	ui = &captureUI{}
	if _, err := m.Handle(ctx, clickButton(t, confirm.Buttons[1]), ui); err != nil {
		t.Fatalf("cancel click: %v", err)
	}
	cancelled := ui.last(t)
	if len(cancelled.Buttons) != 1 {
		t.Fatalf("expected one go-back button, got %d", len(cancelled.Buttons))
	}
	// 4. Click the go-back button; expect to land in EXIT.
	ui = &captureUI{}
	state, err := m.Handle(ctx, clickButton(t, cancelled.Buttons[0]), ui)
	if err != nil {
		t.Fatalf("go back: %v", err)
	}
	if state.ID() != "EXIT" || ui.last(t).Text.Text != "EXIT" {
		t.Fatalf("state=%s text=%q", state.ID(), ui.last(t).Text.Text)
	}
	if blob := dialogBlob(t, m, LandingStateID); len(blob) != 0 {
		t.Fatalf("dialog session not empty: %v", blob)
	}
}

func TestDialogConfirmCommitsFields(t *testing.T) {
	var committed map[string]any
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.Landing(func(s *State) {
			s.Dialog(func(d *Dialog) {
				d.Text("name", Plain("Name?"), "")
				d.Apply(Plain("Save?"), Plain("Saved"), func(fields map[string]any) error {
					committed = fields
					return nil
				})
			})
		})
	})
	ctx := context.Background()

	if _, err := m.Handle(ctx, transitionTo(m.GetState(LandingStateID)), DiscardUI); err != nil {
		t.Fatalf("enter: %v", err)
	}
	ui := &captureUI{}
	if _, err := m.Handle(ctx, textInput("Alice"), ui); err != nil {
		t.Fatalf("text: %v", err)
	}
	yes := ui.last(t).Buttons[0]
	ui = &captureUI{}
	if _, err := m.Handle(ctx, clickButton(t, yes), ui); err != nil {
		t.Fatalf("yes click: %v", err)
	}
	if committed == nil || committed["name"] != "Alice" {
		t.Fatalf("committed = %v", committed)
	}
	if got := ui.last(t).Text.Text; got != "Saved" {
		t.Fatalf("done message = %q", got)
	}
	if blob := dialogBlob(t, m, LandingStateID); len(blob) != 0 {
		t.Fatalf("session should be reset after commit: %v", blob)
	}
}

func TestDialogInvalidInputRepeatsStep(t *testing.T) {
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.Landing(func(s *State) {
			s.Dialog(func(d *Dialog) {
				d.Int("age", Plain("Age?"), "Numbers only")
				d.Apply(Plain("Save?"), Plain("Saved"), nil)
			})
		})
	})
	ctx := context.Background()

	if _, err := m.Handle(ctx, transitionTo(m.GetState(LandingStateID)), DiscardUI); err != nil {
		t.Fatalf("enter: %v", err)
	}
	ui := &captureUI{}
	if _, err := m.Handle(ctx, textInput("not a number"), ui); err != nil {
		t.Fatalf("invalid text: %v", err)
	}
	if got := ui.last(t).Text.Text; got != "Numbers only" {
		t.Fatalf("invalid reply = %q", got)
	}
	if blob := dialogBlob(t, m, LandingStateID); blob["age"] != nil {
		t.Fatalf("invalid input must not be stored: %v", blob)
	}

	// The awaited field is unchanged, so a valid retry is accepted.
	if _, err := m.Handle(ctx, textInput("42"), DiscardUI); err != nil {
		t.Fatalf("valid retry: %v", err)
	}
	blob := dialogBlob(t, m, LandingStateID)
	if got, _ := blob["age"].(float64); got != 42 {
		t.Fatalf("age = %v", blob["age"])
	}
}

func TestDialogIntroButtonAdvancesToFirstField(t *testing.T) {
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.Landing(func(s *State) {
			s.Dialog(func(d *Dialog) {
				d.Intro(Plain("Welcome"), "Begin")
				d.Text("f1", Plain("Prompt"), "")
				d.Apply(Plain("Confirm?"), Plain("Done"), nil)
			})
		})
	})
	ctx := context.Background()

	ui := &captureUI{}
	if _, err := m.Handle(ctx, transitionTo(m.GetState(LandingStateID)), ui); err != nil {
		t.Fatalf("enter: %v", err)
	}
	intro := ui.last(t)
	if intro.Text.Text != "Welcome" || len(intro.Buttons) != 1 || intro.Buttons[0].Label != "Begin" {
		t.Fatalf("unexpected intro render: %+v", intro)
	}

	ui = &captureUI{}
	if _, err := m.Handle(ctx, clickButton(t, intro.Buttons[0]), ui); err != nil {
		t.Fatalf("start click: %v", err)
	}
	if got := ui.last(t).Text.Text; got != "Prompt" {
		t.Fatalf("expected first prompt, got %q", got)
	}
	if _, err := m.Handle(ctx, textInput("value"), DiscardUI); err != nil {
		t.Fatalf("text: %v", err)
	}
	blob := dialogBlob(t, m, LandingStateID)
	if got, _ := blob["f1"].(string); got != "value" {
		t.Fatalf("f1 = %v", blob["f1"])
	}
}

func TestDialogDateStepParsesFlexibleFormats(t *testing.T) {
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.Landing(func(s *State) {
			s.Dialog(func(d *Dialog) {
				d.Date("when", Plain("When?"), "")
				d.Apply(Plain("Save?"), Plain("Saved"), nil)
			})
		})
	})
	ctx := context.Background()

	if _, err := m.Handle(ctx, transitionTo(m.GetState(LandingStateID)), DiscardUI); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if _, err := m.Handle(ctx, textInput("31.01.2024"), DiscardUI); err != nil {
		t.Fatalf("date: %v", err)
	}
	blob := dialogBlob(t, m, LandingStateID)
	when, _ := blob["when"].(string)
	if !strings.HasPrefix(when, "2024-01-31") {
		t.Fatalf("when = %q", when)
	}
}

func TestEmptyDialogRendersPlaceholder(t *testing.T) {
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.Landing(func(s *State) {
			s.Dialog(func(*Dialog) {})
		})
	})
	ui := &captureUI{}
	if _, err := m.Handle(context.Background(), textInput("hi"), ui); err != nil {
		t.Fatalf("handle: %v", err)
	}
	msg := ui.last(t)
	if msg.Text.Text == "" || len(msg.Buttons) != 1 {
		t.Fatalf("placeholder render: %+v", msg)
	}
}

func TestDialogOnNonLandingStateRedirectsFreeform(t *testing.T) {
	m := Build(NewMemoryStore(), func(m *Machine) {
		m.Landing(func(s *State) {
			s.Menu(Plain("menu"), Button{Target: "FORM", Label: "fill in"})
		})
		m.State("FORM", "F", func(s *State) {
			s.Dialog(func(d *Dialog) {
				d.Text("f1", Plain("First?"), "")
				d.Text("f2", Plain("Second?"), "")
				d.Apply(Plain("Save?"), Plain("Saved"), nil)
			})
		})
	})
	ctx := context.Background()

	if _, err := m.Handle(ctx, transitionTo(m.GetState("FORM")), DiscardUI); err != nil {
		t.Fatalf("enter form: %v", err)
	}
	// Two consecutive freeform messages both belong to the dialog even
	// though neither carries the form's fingerprint.
	if _, err := m.Handle(ctx, textInput("one"), DiscardUI); err != nil {
		t.Fatalf("f1: %v", err)
	}
	ui := &captureUI{}
	if _, err := m.Handle(ctx, textInput("two"), ui); err != nil {
		t.Fatalf("f2: %v", err)
	}
	blob := dialogBlob(t, m, "FORM")
	if blob["f1"] != "one" || blob["f2"] != "two" {
		t.Fatalf("blob = %v", blob)
	}

	// Commit; the redirect must be gone and freeform input must return to
	// the landing menu.
	yes := ui.last(t).Buttons[0]
	if _, err := m.Handle(ctx, clickButton(t, yes), DiscardUI); err != nil {
		t.Fatalf("yes: %v", err)
	}
	ui = &captureUI{}
	state, err := m.Handle(ctx, textInput("hello"), ui)
	if err != nil {
		t.Fatalf("post-commit text: %v", err)
	}
	if state.ID() != LandingStateID {
		t.Fatalf("expected landing after commit, got %s", state.ID())
	}
}
