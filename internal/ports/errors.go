package ports

import "errors"

// Error kinds returned by adapters. Match them with errors.Is.
var (
	ErrSource        = errors.New("source error")
	ErrMedia         = errors.New("media error")
	ErrTranscription = errors.New("transcription error")
	ErrLLMTransport  = errors.New("llm transport error")
	ErrNotConfigured = errors.New("not configured")
)

// Error tags an adapter failure with its kind while keeping the message of
// the underlying error.
type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() []error { return []error{e.Kind, e.Err} }

// Wrap tags err with kind. A nil err stays nil.
func Wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}
