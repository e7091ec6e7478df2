package router

import (
	"errors"
	"time"

	"github.com/botfsm/botfsm/core/engine"
	tg "github.com/botfsm/botfsm/core/telegram"
	"github.com/botfsm/botfsm/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Dispatcher is the minimal interface a state-machine bridge exposes to the
// routers. Dispatch returns engine.ErrNoMatch when no state accepted the
// update, which hands control back to the legacy registry path.
type Dispatcher interface {
	Dispatch(c tele.Context) error
}

// TextOptions controls fallback behaviour for text/document updates.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

// TextRoutes builds handlers for text and document updates. The state
// machine gets the first look; commands and registry fallbacks only run for
// input no state claimed.
func TextRoutes(eng Dispatcher, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if eng != nil {
			err := eng.Dispatch(c)
			if !errors.Is(err, engine.ErrNoMatch) {
				return handleWithSummary(c, "engine", start, "", "", func() error {
					return err
				})
			}
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, "", "", func() error {
					return cmd.Handler(c)
				})
			}
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, "", "", func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, "", "", func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
		return nil
	}

	docHandler := func(c tele.Context) error {
		start := time.Now()
		if opts.UnknownDocument != nil {
			return handleWithSummary(c, "unexpected_document", start, "", "", func() error {
				return opts.UnknownDocument(c)
			})
		}
		logHandlerSummary(c, "unexpected_document", start, "skip", "ok", nil)
		return nil
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
		},
		{
			Endpoint: tele.OnDocument,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(docHandler)),
		},
	}
}

// MediaRoutes builds handlers for photo and video updates, which exist for
// the sake of dialog steps expecting attachments.
func MediaRoutes(eng Dispatcher, opts TextOptions) []tg.Route {
	mediaHandler := func(name string) tele.HandlerFunc {
		return func(c tele.Context) error {
			start := time.Now()
			if eng != nil {
				err := eng.Dispatch(c)
				if !errors.Is(err, engine.ErrNoMatch) {
					return handleWithSummary(c, name, start, "", "", func() error {
						return err
					})
				}
			}
			if opts.UnknownText != nil {
				return handleWithSummary(c, "unknown_"+name, start, "", "", func() error {
					return opts.UnknownText(c)
				})
			}
			logHandlerSummary(c, "unknown_"+name, start, "skip", "ok", nil)
			return nil
		}
	}

	return []tg.Route{
		{
			Endpoint: tele.OnPhoto,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(mediaHandler("photo"))),
		},
		{
			Endpoint: tele.OnVideo,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(mediaHandler("video"))),
		},
	}
}
