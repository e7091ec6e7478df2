package router

import (
	"errors"
	"time"

	"github.com/botfsm/botfsm/core/engine"
	tg "github.com/botfsm/botfsm/core/telegram"
	"github.com/botfsm/botfsm/core/telegram/middleware"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

// CallbackRoute returns a handler that routes button clicks. Payloads
// carrying a state fingerprint go to the state machine; legacy key-style
// payloads fall through to the registry.
func CallbackRoute(eng Dispatcher, reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		cb := c.Callback()
		if cb == nil {
			return nil
		}

		_ = c.Respond()

		if eng != nil && tg.IsEnginePayload(cb.Data) {
			err := eng.Dispatch(c)
			if !errors.Is(err, engine.ErrNoMatch) {
				return handleWithSummary(c, "engine_callback", start, "", "", func() error {
					return err
				})
			}
			// A stale button from an older deployment; treat as unknown.
		}

		key, _ := parseCallback(cb)
		name := "callback." + normalizeHandlerName(key)
		extras := []slog.Attr{slog.String("cb_key", key)}

		cbHandler, ok := reg.GetCallback(key)
		if !ok || cbHandler == nil {
			fallback := reg.CallbackNotFound()
			if fallback == nil {
				fallback = opts.NotFound
			}
			extras = append(extras, slog.String("reason", "not_found"))
			return handleWithSummary(c, name, start, "", "", func() error {
				if fallback != nil {
					return fallback(c)
				}
				return nil
			}, extras...)
		}

		return handleWithSummary(c, name, start, "", "", func() error {
			return cbHandler(c)
		}, extras...)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
