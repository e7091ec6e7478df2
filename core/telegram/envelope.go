package telegram

import (
	"io"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/botfsm/botfsm/core/engine"
	tghelpers "github.com/botfsm/botfsm/core/telegram/helpers"
)

// BuildEnvelope normalizes one Telegram update into an engine envelope.
// Button callbacks are classified first; message content then runs through
// classifiers in fixed priority order, first success wins: video, photo,
// slash command, plain text, void. A malformed callback payload degrades
// to void instead of failing the update.
func BuildEnvelope(c tele.Context) *engine.Envelope {
	env := engine.NewEnvelope(senderOf(c))

	// A button click is classified before anything else: the message
	// attached to a callback is the bot's own keyboard message, not user
	// input.
	if cb := c.Callback(); cb != nil {
		if state, context, ok := parseCallbackPayload(cb.Data); ok {
			env.State = state
			env.Context = context
			env.Contents = engine.Transition{Raw: state}
		}
		return env
	}

	msg := c.Message()
	if msg != nil && msg.Video != nil {
		env.Contents = engine.Video{Doc: documentOf(c, msg.Video.FileID, msg.Caption, msg.Video.File)}
		return env
	}
	if msg != nil && msg.Photo != nil {
		env.Contents = engine.PhotoList{Docs: []engine.Document{
			documentOf(c, msg.Photo.FileID, msg.Caption, msg.Photo.File),
		}}
		return env
	}
	if text := c.Text(); text != "" {
		if strings.HasPrefix(text, "/") {
			name := strings.TrimPrefix(strings.Fields(text)[0], "/")
			// Strip the @botname suffix used in group chats.
			if at := strings.IndexByte(name, '@'); at >= 0 {
				name = name[:at]
			}
			env.Command = name
			env.Contents = engine.Command{Name: name}
			return env
		}
		env.Contents = engine.Text{Text: text}
		return env
	}
	return env
}

// parseCallbackPayload decodes a button payload into the matching
// fingerprint and the embedded context. Non-JSON data (legacy callback
// keys) and malformed objects report ok=false.
func parseCallbackPayload(data string) (engine.Fingerprint, engine.Fingerprint, bool) {
	raw := strings.TrimPrefix(strings.TrimSpace(data), "\f")
	if !strings.HasPrefix(raw, "{") {
		return nil, nil, false
	}
	payload, err := engine.ParseFingerprint([]byte(raw))
	if err != nil {
		return nil, nil, false
	}
	state, context := engine.SplitContext(payload)
	return state, context, true
}

// IsEnginePayload reports whether callback data carries a state fingerprint
// rather than a legacy registry key.
func IsEnginePayload(data string) bool {
	_, _, ok := parseCallbackPayload(data)
	return ok
}

func senderOf(c tele.Context) engine.User {
	u := c.Sender()
	if u == nil {
		return engine.User{}
	}
	return engine.User{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: tghelpers.DisplayName(u),
	}
}

// documentOf binds lazy file download to the bot owning the update.
func documentOf(c tele.Context, fileID, caption string, file tele.File) engine.Document {
	return engine.Document{
		ID:      fileID,
		Caption: caption,
		Download: func() ([]byte, error) {
			rc, err := c.Bot().File(&file)
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		},
	}
}
