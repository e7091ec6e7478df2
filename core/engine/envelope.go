package engine

// User identifies the person behind an inbound update.
type User struct {
	ID          int64
	Username    string
	DisplayName string
}

// Document references a platform-hosted file. Download is bound by the
// transport adapter and fetches the raw bytes on demand.
type Document struct {
	ID       string
	Caption  string
	Download func() ([]byte, error)
}

// Envelope is the normalized, per-update representation of user input.
// State carries the declared fingerprint used for matching, Context the
// opaque payload carried across transitions, and Contents the typed input.
type Envelope struct {
	State    Fingerprint
	Context  Fingerprint
	User     User
	Command  string
	Contents Contents
}

// NewEnvelope builds an envelope with empty fingerprint/context and Void
// contents for the given user.
func NewEnvelope(user User) *Envelope {
	return &Envelope{
		State:    NewFingerprint(),
		Context:  NewFingerprint(),
		User:     user,
		Contents: Void{},
	}
}

// Contents is the sealed set of input shapes an update can take. Exactly one
// implementation is attached to each envelope.
type Contents interface {
	isContents()
}

// Void marks an update that carried nothing the engine understands.
type Void struct{}

// Command is a slash-command with the prefix stripped.
type Command struct {
	Name string
}

// Text is a plain freeform text message.
type Text struct {
	Text string
}

// PhotoList is one or more photos attached to a message.
type PhotoList struct {
	Docs []Document
}

// Video is a single video attachment.
type Video struct {
	Doc Document
}

// Transition is a button click carrying an explicit state fingerprint.
type Transition struct {
	Raw Fingerprint
}

func (Void) isContents()       {}
func (Command) isContents()    {}
func (Text) isContents()       {}
func (PhotoList) isContents()  {}
func (Video) isContents()      {}
func (Transition) isContents() {}
