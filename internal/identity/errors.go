package identity

import "errors"

var (
	// ErrNotInitialized is returned when the registry singleton does not exist yet.
	ErrNotInitialized = errors.New("registry not initialized")

	// ErrAlreadyInitialized guards against creating the registry twice.
	ErrAlreadyInitialized = errors.New("registry already initialized")

	// ErrAlreadyOnboarded indicates the wallet is already bound to an identity.
	ErrAlreadyOnboarded = errors.New("wallet already onboarded")

	// ErrUnauthorized indicates the caller lacks the role the operation requires.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSameAccount rejects operations where caller and target are the same wallet.
	ErrSameAccount = errors.New("caller and target are the same account")

	// ErrGroupMismatch indicates the target wallet belongs to a different identity.
	ErrGroupMismatch = errors.New("wallet belongs to a different identity")

	// ErrNotFound indicates a record or index entry is absent.
	ErrNotFound = errors.New("not found")
)
