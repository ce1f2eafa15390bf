package port

import "context"

type CacheRepository interface {
	// ClaimIdempotency reserves key for the caller, returns the stored value and false if already held.
	// An empty value means the original holder has not completed yet.
	ClaimIdempotency(ctx context.Context, key string) (string, bool, error)

	// CompleteIdempotency records the outcome for a claimed key
	CompleteIdempotency(ctx context.Context, key, value string) error

	// ReleaseIdempotency drops a claim so the request can be retried (for rollback on failure)
	ReleaseIdempotency(ctx context.Context, key string) error
}
