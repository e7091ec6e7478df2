package engine

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/botfsm/botfsm/core/logger"
)

// StepKind classifies a dialog step's expected input.
type StepKind int

const (
	// StepStart renders an intro with a single button that enters the form.
	StepStart StepKind = iota
	// StepText expects a freeform text reply.
	StepText
	// StepInt expects a whole number.
	StepInt
	// StepNumber expects a decimal number.
	StepNumber
	// StepDate expects a calendar date in one of the accepted layouts.
	StepDate
	// StepLocation is reserved for geo input; no DSL primitive yet.
	StepLocation
	// StepBoolean renders Yes/No buttons carrying the answer on the wire.
	StepBoolean
	// StepConfirmation is the terminal marker rendered after a commit.
	StepConfirmation
	// StepVideo expects a video attachment.
	StepVideo
)

// StepStatus is a step processor's verdict over the current envelope.
type StepStatus int

const (
	// StatusWaiting means no field data changed; continue to the next step.
	StatusWaiting StepStatus = iota
	// StatusValid means field data was accepted and must be persisted.
	StatusValid
	// StatusInvalid means the input was unusable; re-prompt the same step.
	StatusInvalid
	// StatusCancel aborts the whole dialog and clears its session.
	StatusCancel
)

// Step is one ordered field of a dialog. Validate gates Process: the
// processor runs only on envelopes the validator accepted.
type Step struct {
	Field        string
	Prompt       TextMessage
	Kind         StepKind
	ShortLabel   string
	InvalidReply string

	validate func(*Envelope) bool
	process  func(ctx context.Context, env *Envelope, blob map[string]any) StepStatus
}

// Dialog is an ordered multi-step form attached to a single state. Between
// messages its only memory is the session blob keyed by the owning state's
// id: accumulated answers plus the name of the field awaited next.
type Dialog struct {
	state *State
	steps []Step
	exit  string
}

func newDialog(s *State) *Dialog {
	return &Dialog{state: s, exit: s.machine.landing}
}

const (
	startFieldName   = "start"
	confirmFieldName = "confirm"
	exitFieldName    = "exit"
	confirmYesKey    = "y"

	defaultStartLabel = "Start"
	emptyDialogReply  = "EMPTY DIALOG"
	cancelledReply    = "Changes discarded"
	committedReply    = "All done"
)

// Intro inserts a START step: message plus one button entering the form.
func (d *Dialog) Intro(message TextMessage, buttonLabel string) *Dialog {
	if buttonLabel == "" {
		buttonLabel = defaultStartLabel
	}
	d.steps = append(d.steps, Step{
		Field:      startFieldName,
		Prompt:     message,
		Kind:       StepStart,
		ShortLabel: buttonLabel,
		validate:   func(*Envelope) bool { return true },
		process: func(context.Context, *Envelope, map[string]any) StepStatus {
			return StatusWaiting
		},
	})
	return d
}

// Text appends a step storing a raw text answer under fieldName.
func (d *Dialog) Text(fieldName string, prompt TextMessage, invalidReply string) *Dialog {
	if invalidReply == "" {
		invalidReply = "Please send a text message"
	}
	d.steps = append(d.steps, Step{
		Field:        fieldName,
		Prompt:       prompt,
		Kind:         StepText,
		InvalidReply: invalidReply,
		validate: func(env *Envelope) bool {
			_, ok := env.Contents.(Text)
			return ok
		},
		process: func(_ context.Context, env *Envelope, blob map[string]any) StepStatus {
			text, ok := env.Contents.(Text)
			if !ok {
				return StatusInvalid
			}
			blob[fieldName] = text.Text
			return StatusValid
		},
	})
	return d
}

// Int appends a step storing a whole-number answer under fieldName.
func (d *Dialog) Int(fieldName string, prompt TextMessage, invalidReply string) *Dialog {
	if invalidReply == "" {
		invalidReply = "Please send a whole number"
	}
	d.steps = append(d.steps, Step{
		Field:        fieldName,
		Prompt:       prompt,
		Kind:         StepInt,
		InvalidReply: invalidReply,
		validate: func(env *Envelope) bool {
			_, ok := parseEnvelopeInt(env)
			return ok
		},
		process: func(_ context.Context, env *Envelope, blob map[string]any) StepStatus {
			n, ok := parseEnvelopeInt(env)
			if !ok {
				return StatusInvalid
			}
			blob[fieldName] = n
			return StatusValid
		},
	})
	return d
}

// Number appends a step storing a decimal answer under fieldName.
func (d *Dialog) Number(fieldName string, prompt TextMessage, invalidReply string) *Dialog {
	if invalidReply == "" {
		invalidReply = "Please send a number"
	}
	d.steps = append(d.steps, Step{
		Field:        fieldName,
		Prompt:       prompt,
		Kind:         StepNumber,
		InvalidReply: invalidReply,
		validate: func(env *Envelope) bool {
			_, ok := parseEnvelopeFloat(env)
			return ok
		},
		process: func(_ context.Context, env *Envelope, blob map[string]any) StepStatus {
			n, ok := parseEnvelopeFloat(env)
			if !ok {
				return StatusInvalid
			}
			blob[fieldName] = n
			return StatusValid
		},
	})
	return d
}

// Date appends a step storing a parsed date under fieldName in RFC 3339.
func (d *Dialog) Date(fieldName string, prompt TextMessage, invalidReply string) *Dialog {
	if invalidReply == "" {
		invalidReply = "Please send a date like 2024-01-31"
	}
	d.steps = append(d.steps, Step{
		Field:        fieldName,
		Prompt:       prompt,
		Kind:         StepDate,
		InvalidReply: invalidReply,
		validate: func(env *Envelope) bool {
			_, ok := parseEnvelopeDate(env)
			return ok
		},
		process: func(_ context.Context, env *Envelope, blob map[string]any) StepStatus {
			t, ok := parseEnvelopeDate(env)
			if !ok {
				return StatusInvalid
			}
			blob[fieldName] = t.Format(time.RFC3339)
			return StatusValid
		},
	})
	return d
}

// Video appends a step expecting a video attachment. On success the bytes
// are fetched through the document's bound download capability and handed
// to onVideo; a marker is stored so the answer survives in the blob.
func (d *Dialog) Video(fieldName string, prompt TextMessage, invalidReply string, onVideo func([]byte) error) *Dialog {
	if invalidReply == "" {
		invalidReply = "Please send a video"
	}
	d.steps = append(d.steps, Step{
		Field:        fieldName,
		Prompt:       prompt,
		Kind:         StepVideo,
		InvalidReply: invalidReply,
		validate: func(env *Envelope) bool {
			_, ok := env.Contents.(Video)
			return ok
		},
		process: func(ctx context.Context, env *Envelope, blob map[string]any) StepStatus {
			video, ok := env.Contents.(Video)
			if !ok || video.Doc.Download == nil {
				return StatusInvalid
			}
			bytes, err := video.Doc.Download()
			if err != nil {
				logger.Warn(ctx, logComponent, "video_download_failed",
					slog.String("doc_id", video.Doc.ID), slog.Any("error", err))
				return StatusInvalid
			}
			if onVideo != nil {
				if err := onVideo(bytes); err != nil {
					logger.Warn(ctx, logComponent, "video_handler_failed",
						slog.String("doc_id", video.Doc.ID), slog.Any("error", err))
					return StatusInvalid
				}
			}
			blob["video_"+video.Doc.ID] = true
			return StatusValid
		},
	})
	return d
}

// Apply appends the closing confirmation pair: a Yes/No question and the
// terminal marker shown after commit. Answering Yes runs onSuccess over the
// accumulated answers and resets the dialog session; answering No cancels
// the whole dialog.
func (d *Dialog) Apply(question, doneMessage TextMessage, onSuccess func(fields map[string]any) error) *Dialog {
	d.steps = append(d.steps, Step{
		Field:        confirmFieldName,
		Prompt:       question,
		Kind:         StepBoolean,
		InvalidReply: cancelledReply,
		validate: func(env *Envelope) bool {
			_, ok := parseBool(env.Context.Get(confirmYesKey))
			return ok
		},
		process: func(ctx context.Context, env *Envelope, blob map[string]any) StepStatus {
			yes, ok := parseBool(env.Context.Get(confirmYesKey))
			if !ok {
				return StatusInvalid
			}
			if !yes {
				return StatusCancel
			}
			if onSuccess != nil {
				if err := onSuccess(fieldsOf(blob)); err != nil {
					logger.Error(ctx, logComponent, "dialog_commit_failed",
						slog.String("state_id", d.state.id), slog.Any("error", err))
					return StatusCancel
				}
			}
			d.finish(ctx, env.User.ID)
			return StatusWaiting
		},
	})
	d.steps = append(d.steps, Step{
		Field:    exitFieldName,
		Prompt:   doneMessage,
		Kind:     StepConfirmation,
		validate: func(*Envelope) bool { return true },
		process: func(context.Context, *Envelope, map[string]any) StepStatus {
			return StatusWaiting
		},
	})
	return d
}

// Cancel overrides the state a cancelled or finished dialog returns to.
// The default is the landing state.
func (d *Dialog) Cancel(exitStateID string) *Dialog {
	d.exit = exitStateID
	return d
}

// process runs one envelope through the dialog. See the package doc for the
// step resolution and persistence rules.
func (d *Dialog) process(ctx context.Context, env *Envelope) (StateAction, error) {
	machine := d.state.machine
	if len(d.steps) == 0 {
		return NewSimpleAction(emptyDialogReply, machine.landing, env, nil), nil
	}

	userID := env.User.ID
	blob := machine.loadBlob(ctx, userID, d.state.id)

	current := env.Context.GetString(KeyNextField)
	if current == "" {
		current, _ = blob[KeyNextField].(string)
	}
	idx := d.stepIndex(current)

	if idx >= 0 {
		step := d.steps[idx]
		if !step.validate(env) {
			return NewSimpleAction(step.InvalidReply, machine.landing, env, nil), nil
		}
		switch step.process(ctx, env, blob) {
		case StatusValid:
			if err := machine.saveBlob(ctx, userID, d.state.id, blob); err != nil {
				return nil, err
			}
		case StatusInvalid:
			return NewSimpleAction(step.InvalidReply, machine.landing, env, nil), nil
		case StatusCancel:
			d.finish(ctx, userID)
			logger.Debug(ctx, logComponent, "dialog_cancelled",
				slog.String("state_id", d.state.id), slog.Int64("user_id", userID))
			return NewSimpleAction(cancelledReply, d.exit, env, nil), nil
		case StatusWaiting:
			// Nothing to persist; the processor already settled its state.
		}
	}

	if idx+1 >= len(d.steps) {
		d.finish(ctx, userID)
		return NewSimpleAction(committedReply, d.exit, env, nil), nil
	}
	return d.renderStep(ctx, env, blob, d.steps[idx+1])
}

// renderStep produces the outgoing action for the step about to run.
func (d *Dialog) renderStep(ctx context.Context, env *Envelope, blob map[string]any, next Step) (StateAction, error) {
	machine := d.state.machine
	switch next.Kind {
	case StepStart:
		field := next.Field
		return NewButtonsAction(next.Prompt, Button{
			Target: d.state.id,
			Label:  next.ShortLabel,
			Output: func(*Envelope) Fingerprint {
				return Fingerprint{KeyNextField: field}
			},
		}), nil
	case StepBoolean:
		field := next.Field
		yes := func(*Envelope) Fingerprint {
			return Fingerprint{KeyNextField: field, confirmYesKey: 1}
		}
		no := func(*Envelope) Fingerprint {
			return Fingerprint{KeyNextField: field, confirmYesKey: 0}
		}
		return NewButtonsAction(next.Prompt,
			Button{Target: d.state.id, Label: "Yes", Output: yes},
			Button{Target: d.state.id, Label: "No", Output: no},
		), nil
	case StepConfirmation:
		return NewSimpleAction(next.Prompt.Text, d.exit, env, nil), nil
	default:
		// Freeform steps remember the awaited field so that the next
		// inbound message without navigation context lands back here.
		blob[KeyNextField] = next.Field
		if err := machine.saveBlob(ctx, env.User.ID, d.state.id, blob); err != nil {
			return nil, err
		}
		return &promptAction{message: next.Prompt}, nil
	}
}

// finish drops the dialog's session and the landing redirect slot. Both are
// best-effort: a failed reset only means the next message replays the last
// step, which the session model documents as self-healing.
func (d *Dialog) finish(ctx context.Context, userID int64) {
	machine := d.state.machine
	if err := machine.store.Reset(ctx, userID, d.state.id); err != nil {
		logger.Warn(ctx, logComponent, "session_reset_failed",
			slog.String("state_id", d.state.id), slog.Int64("user_id", userID), slog.Any("error", err))
	}
	if err := machine.clearRedirect(ctx, userID); err != nil {
		logger.Warn(ctx, logComponent, "redirect_clear_failed",
			slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

func (d *Dialog) stepIndex(fieldName string) int {
	if fieldName == "" {
		return -1
	}
	for i, step := range d.steps {
		if step.Field == fieldName {
			return i
		}
	}
	return -1
}

// fieldsOf strips bookkeeping keys, leaving only accumulated answers.
func fieldsOf(blob map[string]any) map[string]any {
	fields := make(map[string]any, len(blob))
	for k, v := range blob {
		if k == KeyNextField || k == KeyRedirect {
			continue
		}
		fields[k] = v
	}
	return fields
}

func parseEnvelopeInt(env *Envelope) (int64, bool) {
	text, ok := env.Contents.(Text)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(text.Text), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseEnvelopeFloat(env *Envelope) (float64, bool) {
	text, ok := env.Contents.(Text)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(text.Text), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseEnvelopeDate(env *Envelope) (time.Time, bool) {
	text, ok := env.Contents.(Text)
	if !ok {
		return time.Time{}, false
	}
	return ParseFlexibleDate(text.Text)
}

// parseBool folds the answer encodings a confirmation button or a typed
// reply may carry.
func parseBool(v any) (bool, bool) {
	switch b := normalizeScalar(v).(type) {
	case bool:
		return b, true
	case int64:
		if b == 1 {
			return true, true
		}
		if b == 0 {
			return false, true
		}
		return false, false
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "true", "y", "yes":
			return true, true
		case "0", "false", "no", "n":
			return false, true
		}
		return false, false
	default:
		return false, false
	}
}
