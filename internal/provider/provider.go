// Package provider holds the delivery adapters, one per channel. Adapters are
// stateless with respect to the pipeline: everything they need arrives in the
// Delivery, and they hand back only a provider-assigned reference id.
package provider

import "context"

// Delivery is the uniform payload handed to any adapter.
type Delivery struct {
	To      string
	Subject string
	Text    string
	HTML    string
	// Metadata carries opaque correlation data (internal message id, tenant)
	// so asynchronous provider callbacks can be matched back to the ledger.
	Metadata map[string]string
}

// Adapter is the collaborator contract for one channel's provider.
type Adapter interface {
	Name() string
	Deliver(ctx context.Context, d Delivery) (providerMessageID string, err error)
}

// Registry maps a channel name to its configured adapter.
type Registry map[string]Adapter
