package index

import "errors"

var (
	// ErrShardFull is returned when a shard already holds MaxItems entries.
	ErrShardFull = errors.New("shard is full")
	// ErrInvalidShardID is returned for a shard id that is out of range or
	// does not match the identity's shard.
	ErrInvalidShardID = errors.New("invalid shard id")
	// ErrModeMismatch is returned when the registry was initialized with a
	// different index mode than the running service uses.
	ErrModeMismatch = errors.New("index mode mismatch")
	// ErrUnknownMode is returned by ParseMode and ParseRouting.
	ErrUnknownMode = errors.New("unknown index mode")
)
