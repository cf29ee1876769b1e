package ports

import (
	"context"
	"errors"
)

// ErrTokenExpired distinguishes an expired credential from a generally
// invalid one, so clients can decide whether a refresh is worth trying.
var ErrTokenExpired = errors.New("token expired")

// TokenVerifier checks a bearer token against the identity provider and
// returns the owning user id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (ownerID string, err error)
}

// Notifier is the only entry point other components have into the
// notification gateway. It addresses rooms, never connections or owners;
// notifying a room with no subscribers is a no-op.
type Notifier interface {
	Notify(roomKey, event string, payload any)
}

// Transcriber runs the actual transcription pipeline for one file. The
// pipeline reports coarse progress through the callback; implementations
// live outside this repo.
type Transcriber interface {
	Transcribe(ctx context.Context, filePath string, progress func(percent int, stage, message string)) error
}
