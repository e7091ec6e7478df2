package telegram

import (
	tele "gopkg.in/telebot.v4"

	"github.com/botfsm/botfsm/core/engine"
	tghelpers "github.com/botfsm/botfsm/core/telegram/helpers"
)

// Renderer translates engine wire messages into Telegram sends. It
// implements engine.UI for the lifetime of a single update.
type Renderer struct {
	c tele.Context
}

// NewRenderer binds a renderer to the update being handled.
func NewRenderer(c tele.Context) *Renderer {
	return &Renderer{c: c}
}

var _ engine.UI = (*Renderer)(nil)

// Show renders the message. In-place edits are honoured only when the
// update itself was a button click on an existing message; everything else
// is sent as a new message. Markdown text must arrive pre-escaped.
func (r *Renderer) Show(msg engine.WireMessage) error {
	opts := &tele.SendOptions{}
	if msg.Text.Markup == engine.MarkupMarkdown {
		opts.ParseMode = tele.ModeMarkdownV2
	}
	if len(msg.Buttons) > 0 {
		opts.ReplyMarkup = buttonMarkup(msg.Buttons, msg.Columns)
	}

	if msg.InplaceEdit && r.c.Callback() != nil {
		return r.c.Edit(msg.Text.Text, opts)
	}
	return tghelpers.SendText(r.c, msg.Text.Text, opts)
}

// buttonMarkup lays resolved buttons out in rows of the requested width.
// Payloads go on the wire verbatim; the engine already serialized them.
func buttonMarkup(buttons []engine.WireButton, columns int) *tele.ReplyMarkup {
	if columns < 1 {
		columns = 1
	}
	markup := &tele.ReplyMarkup{}
	var rows [][]tele.InlineButton
	for i := 0; i < len(buttons); i += columns {
		end := i + columns
		if end > len(buttons) {
			end = len(buttons)
		}
		row := make([]tele.InlineButton, 0, end-i)
		for _, b := range buttons[i:end] {
			row = append(row, tele.InlineButton{Text: b.Label, Data: b.Payload})
		}
		rows = append(rows, row)
	}
	markup.InlineKeyboard = rows
	return markup
}
