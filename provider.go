package provbatch

import "context"

// Provider is the external collaborator that performs the actual
// provisioning work. Each call returns the raw captured output of the
// operation; deciding whether that output spells success, a transient
// failure, or a fatal one is the retry policy's job, not the provider's.
//
// Operations are expected to be idempotent enough that a retried call after
// an ambiguous failure does not corrupt provider-side state.
type Provider interface {
	// CreateResource provisions the resource with the given ID.
	CreateResource(ctx context.Context, id string) (string, error)

	// EnableCapability enables the required capability on the resource.
	EnableCapability(ctx context.Context, id string) (string, error)

	// IssueCredential mints a credential scoped to the resource. The
	// returned payload carries the secret for artifact extraction.
	IssueCredential(ctx context.Context, id string) (string, error)

	// DeleteResource tears the resource down. Used both for explicit
	// teardown batches and for compensating cleanup.
	DeleteResource(ctx context.Context, id string) (string, error)
}
