package telegram

import (
	"errors"

	tele "gopkg.in/telebot.v4"

	"github.com/botfsm/botfsm/core/engine"
	"github.com/botfsm/botfsm/core/logger"
	tghelpers "github.com/botfsm/botfsm/core/telegram/helpers"
	"log/slog"
)

const defaultFailureReply = "Something went wrong, please try again."

// EngineDispatcher routes Telegram updates into a state machine. ErrNoMatch
// is passed back to the caller so routers can fall through to the command
// registry; every other failure is absorbed here with a generic reply,
// since from the user's point of view the update was delivered.
type EngineDispatcher struct {
	machine      *engine.Machine
	failureReply string
}

// NewEngineDispatcher wraps a fully registered machine.
func NewEngineDispatcher(m *engine.Machine) *EngineDispatcher {
	return &EngineDispatcher{machine: m, failureReply: defaultFailureReply}
}

// SetFailureReply overrides the generic message shown on internal errors.
func (d *EngineDispatcher) SetFailureReply(text string) {
	if text != "" {
		d.failureReply = text
	}
}

// Dispatch builds the envelope, runs the machine, and renders the outcome.
func (d *EngineDispatcher) Dispatch(c tele.Context) error {
	if d == nil || d.machine == nil {
		return engine.ErrNoMatch
	}
	ctx := tghelpers.BuildContext(c)
	env := BuildEnvelope(c)

	state, err := d.machine.Handle(ctx, env, NewRenderer(c))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrNoMatch):
		return err
	case errors.Is(err, engine.ErrNoAction):
		logger.Error(ctx, "engine", "state_misconfigured",
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, d.failureReply)
	default:
		attrs := []slog.Attr{slog.String("err", logger.SanitizeLimit(err.Error(), 256))}
		if state != nil {
			attrs = append(attrs, slog.String("state_id", state.ID()))
		}
		logger.Error(ctx, "engine", "handle_failed", attrs...)
		return tghelpers.SendText(c, d.failureReply)
	}
}
