package flow

import (
	"errors"

	"github.com/nerrad567/lyngdorf-core/internal/receiver"
)

var (
	// ErrUnsupportedModel is returned when neither lookup nor probe
	// identifies a supported model.
	ErrUnsupportedModel = receiver.ErrUnsupportedModel

	// ErrConnect is returned when the receiver cannot be reached.
	ErrConnect = receiver.ErrConnect

	// ErrIdentityIncomplete is returned when finalizing without a MAC.
	ErrIdentityIncomplete = errors.New("flow: identity incomplete")

	// ErrDuplicateIdentity is returned when the MAC is already configured.
	ErrDuplicateIdentity = errors.New("flow: duplicate identity")

	// ErrFlowNotFound is returned for unknown or finished flow IDs.
	ErrFlowNotFound = errors.New("flow: not found")

	// ErrInvalidSource is returned when starting a flow from an unknown source.
	ErrInvalidSource = errors.New("flow: invalid source")

	// ErrInvalidInput is returned when required start data is missing.
	ErrInvalidInput = errors.New("flow: invalid input")
)
