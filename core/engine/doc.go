// Package engine implements a declarative state machine for conversational
// bots: inbound updates are classified into envelopes, matched against a
// registry of states by fingerprint, and answered by the matched state's
// action or multi-step dialog. It is transport-agnostic; the Telegram
// adapter lives in core/telegram.
package engine
