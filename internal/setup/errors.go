package setup

import (
	"errors"

	"github.com/nerrad567/lyngdorf-core/internal/receiver"
)

var (
	// ErrUnsupportedModel means neither the stored model name nor a probe
	// of the host identified a supported receiver.
	ErrUnsupportedModel = receiver.ErrUnsupportedModel

	// ErrIgnoredEntry is returned when asked to set up an ignored entry.
	ErrIgnoredEntry = errors.New("setup: entry is ignored")

	// ErrAlreadyLoaded is returned when the entry is already set up.
	ErrAlreadyLoaded = errors.New("setup: entry already loaded")

	// ErrNotLoaded is returned for an entry that is not set up.
	ErrNotLoaded = errors.New("setup: entry not loaded")

	// ErrInvalidCommand is returned for a command the receiver cannot take.
	ErrInvalidCommand = errors.New("setup: invalid command")
)
