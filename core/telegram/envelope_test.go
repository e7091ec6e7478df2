package telegram

import (
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/botfsm/botfsm/core/engine"
)

type fakeContext struct {
	tele.Context
	msg    *tele.Message
	cb     *tele.Callback
	sender *tele.User
}

func (f *fakeContext) Message() *tele.Message   { return f.msg }
func (f *fakeContext) Callback() *tele.Callback { return f.cb }
func (f *fakeContext) Sender() *tele.User       { return f.sender }

func (f *fakeContext) Text() string {
	if f.msg == nil {
		return ""
	}
	return f.msg.Text
}

var fakeSender = &tele.User{ID: 123, Username: "test", FirstName: "Test", LastName: "User"}

func TestBuildEnvelopeClassifiesVideo(t *testing.T) {
	c := &fakeContext{
		msg:    &tele.Message{Video: &tele.Video{File: tele.File{FileID: "vid-1"}}, Caption: "clip"},
		sender: fakeSender,
	}
	env := BuildEnvelope(c)
	video, ok := env.Contents.(engine.Video)
	if !ok {
		t.Fatalf("contents = %T", env.Contents)
	}
	if video.Doc.ID != "vid-1" || video.Doc.Caption != "clip" {
		t.Fatalf("doc = %+v", video.Doc)
	}
	if env.User.ID != 123 || env.User.DisplayName != "Test User" {
		t.Fatalf("user = %+v", env.User)
	}
}

func TestBuildEnvelopeClassifiesCommand(t *testing.T) {
	c := &fakeContext{msg: &tele.Message{Text: "/start@somebot now"}, sender: fakeSender}
	env := BuildEnvelope(c)
	if env.Command != "start" {
		t.Fatalf("command = %q", env.Command)
	}
	if _, ok := env.Contents.(engine.Command); !ok {
		t.Fatalf("contents = %T", env.Contents)
	}
}

func TestBuildEnvelopeClassifiesText(t *testing.T) {
	c := &fakeContext{msg: &tele.Message{Text: "hello"}, sender: fakeSender}
	env := BuildEnvelope(c)
	text, ok := env.Contents.(engine.Text)
	if !ok || text.Text != "hello" {
		t.Fatalf("contents = %#v", env.Contents)
	}
	if !env.State.IsEmpty() {
		t.Fatalf("freeform text must carry no fingerprint, got %s", env.State)
	}
}

func TestBuildEnvelopeClassifiesTransition(t *testing.T) {
	c := &fakeContext{
		cb:     &tele.Callback{Data: `{"#":"B","_":{">":"f1"}}`},
		sender: fakeSender,
	}
	env := BuildEnvelope(c)
	if _, ok := env.Contents.(engine.Transition); !ok {
		t.Fatalf("contents = %T", env.Contents)
	}
	if got := env.State.GetString(engine.KeyShortID); got != "B" {
		t.Fatalf("short id = %q", got)
	}
	if got := env.Context.GetString(engine.KeyNextField); got != "f1" {
		t.Fatalf("next field = %q", got)
	}
}

func TestBuildEnvelopeMalformedCallbackDegradesToVoid(t *testing.T) {
	for _, data := range []string{"{not json", "legacy_key|42", ""} {
		c := &fakeContext{cb: &tele.Callback{Data: data}, sender: fakeSender}
		env := BuildEnvelope(c)
		if _, ok := env.Contents.(engine.Void); !ok {
			t.Fatalf("data %q: contents = %T", data, env.Contents)
		}
	}
}

func TestIsEnginePayload(t *testing.T) {
	if !IsEnginePayload(`{"#":"B"}`) {
		t.Fatal("object payload should be recognised")
	}
	if IsEnginePayload("key|payload") {
		t.Fatal("legacy payload should not be recognised")
	}
	if !IsEnginePayload("\f{\"#\":\"B\"}") {
		t.Fatal("prefixed payload should be recognised")
	}
}
