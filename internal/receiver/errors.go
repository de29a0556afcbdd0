package receiver

import "errors"

var (
	// ErrConnect means the receiver could not be reached or stopped answering.
	ErrConnect = errors.New("receiver: cannot connect")

	// ErrUnknownModel means the receiver answered with a model that is not
	// in the registry.
	ErrUnknownModel = errors.New("receiver: unknown model")

	// ErrUnsupportedModel means neither the configured model name nor a
	// probe of the host identified a supported model.
	ErrUnsupportedModel = errors.New("receiver: unsupported model")

	// ErrNotConnected is returned by Client.Send before Connect or after
	// Disconnect.
	ErrNotConnected = errors.New("receiver: not connected")

	// ErrInvalidMessage is returned for lines that are not "!NAME..." frames.
	ErrInvalidMessage = errors.New("receiver: invalid message")
)
