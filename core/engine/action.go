package engine

// Markup selects how outbound text is interpreted by the transport.
type Markup int

const (
	// MarkupPlain sends text verbatim.
	MarkupPlain Markup = iota
	// MarkupMarkdown sends text as markdown. Escaping is the producer's
	// responsibility; the renderer does not re-escape.
	MarkupMarkdown
)

// TextMessage is the textual part of a state's output.
type TextMessage struct {
	Text   string
	Markup Markup
}

// Plain wraps a string into a plain-text message.
func Plain(text string) TextMessage {
	return TextMessage{Text: text}
}

// MD wraps a string into a markdown message.
func MD(text string) TextMessage {
	return TextMessage{Text: text, Markup: MarkupMarkdown}
}

// OutputFunc computes the context attached to a button payload from the
// envelope that produced the output.
type OutputFunc func(*Envelope) Fingerprint

// IdentityOutput forwards the envelope's own state fingerprint as context,
// so the target state can see where the user came from.
func IdentityOutput(env *Envelope) Fingerprint {
	return env.State
}

// NoOutput attaches no context.
func NoOutput(*Envelope) Fingerprint {
	return NewFingerprint()
}

// Button declares a single inline button. At render time its wire payload is
// the target state's fingerprint merged with the computed context, unless a
// literal Payload override is set.
type Button struct {
	Target  string
	Label   string
	Payload string
	Output  OutputFunc
}

// ButtonBlock groups a state's buttons with layout and rendering hints.
type ButtonBlock struct {
	Buttons []Button
	Columns int
	// InplaceEdit requests editing the triggering message instead of
	// sending a new one; the renderer honours it only for button clicks.
	InplaceEdit bool
}

// StateAction is the contract every state handler fulfills: text to show and
// buttons to offer.
type StateAction interface {
	Text() TextMessage
	Buttons() ButtonBlock
}

// ActionFunc produces a StateAction for an envelope. Expected failures are
// returned as errors, never panics.
type ActionFunc func(*Envelope) (StateAction, error)

// ButtonsAction is static text plus a caller-supplied button list.
type ButtonsAction struct {
	Message TextMessage
	Block   ButtonBlock
}

// NewButtonsAction builds a ButtonsAction with in-place editing enabled,
// which is the common case for menu screens refreshed by button clicks.
func NewButtonsAction(message TextMessage, buttons ...Button) *ButtonsAction {
	return &ButtonsAction{
		Message: message,
		Block:   ButtonBlock{Buttons: buttons, Columns: 1, InplaceEdit: true},
	}
}

// Text implements StateAction.
func (a *ButtonsAction) Text() TextMessage { return a.Message }

// Buttons implements StateAction.
func (a *ButtonsAction) Buttons() ButtonBlock { return a.Block }

const backButtonLabel = "« Back"

// SimpleAction is fixed text plus a single back button. The side-effecting
// closure runs at construction time, which makes it the shape for simple
// "do X and go back" screens.
type SimpleAction struct {
	message     TextMessage
	returnState string
}

// NewSimpleAction runs fn against the envelope immediately and returns an
// action showing text with one button leading to returnState.
func NewSimpleAction(text string, returnState string, env *Envelope, fn func(*Envelope)) *SimpleAction {
	if fn != nil {
		fn(env)
	}
	return &SimpleAction{message: Plain(text), returnState: returnState}
}

// Text implements StateAction.
func (a *SimpleAction) Text() TextMessage { return a.message }

// Buttons implements StateAction.
func (a *SimpleAction) Buttons() ButtonBlock {
	return ButtonBlock{
		Buttons: []Button{{Target: a.returnState, Label: backButtonLabel}},
		Columns: 1,
	}
}

// promptAction is a bare prompt with no buttons, used by dialog steps that
// expect a freeform reply.
type promptAction struct {
	message TextMessage
}

func (a *promptAction) Text() TextMessage    { return a.message }
func (a *promptAction) Buttons() ButtonBlock { return ButtonBlock{} }

// WireButton is a fully resolved button: label plus serialized payload.
type WireButton struct {
	Label   string
	Payload string
}

// WireMessage is the rendered form of a StateAction handed to the UI sink.
type WireMessage struct {
	Text        TextMessage
	Buttons     []WireButton
	Columns     int
	InplaceEdit bool
}

// UI is the output sink the engine renders into.
type UI interface {
	Show(msg WireMessage) error
}

// UIFunc adapts a function to the UI interface.
type UIFunc func(msg WireMessage) error

// Show implements UI.
func (f UIFunc) Show(msg WireMessage) error { return f(msg) }

// DiscardUI drops all output; useful in tests.
var DiscardUI = UIFunc(func(WireMessage) error { return nil })
