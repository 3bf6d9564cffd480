package types

import "errors"

// Error kinds used across pipeline stages. Stages wrap these with %w so the
// orchestrator and the retry wrapper can classify failures with errors.Is.
var (
	// ErrConfiguration marks missing or invalid assets, templates, or
	// credentials. Never retried; surfaced immediately with the offending
	// path or key named.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransient marks network, timeout, and rate-limit failures from
	// external services. Retried per-stage with bounded backoff.
	ErrTransient = errors.New("transient service error")

	// ErrSync marks a rendered scene whose duration diverges from the
	// narration beyond tolerance. Triggers one re-render before escalation.
	ErrSync = errors.New("audio/visual sync error")

	// ErrComposition marks a failed decode, mix, or encode. Fatal; no
	// partial file is ever left at the final artifact path.
	ErrComposition = errors.New("composition failed")
)
