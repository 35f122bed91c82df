package provider

import (
	"context"
	"time"
)

// ExecuteOptions carries per-call tuning that the dispatcher controls.
type ExecuteOptions struct {
	Timeout time.Duration
}

// Provider is the uniform façade every remote search/research service
// implements. Execute is mandatory; Submit/Poll/Retrieve/Test are optional
// and gated by Descriptor().Capabilities — callers must check the
// capability flag before invoking the corresponding method (an
// unsupported optional method returns ErrUnsupported rather than being
// nil-valued, so custom (script/module) providers can share the same
// interface as built-ins).
type Provider interface {
	// Descriptor returns static identity/contract metadata.
	Descriptor() Descriptor

	// Execute performs a synchronous query and always returns a Result;
	// remote/network failures are folded into Result.Error rather than
	// returned as a Go error. Execute itself only returns an error for
	// caller misuse (e.g. a cancelled context before the call begins).
	Execute(ctx context.Context, query string, opts ExecuteOptions) (Result, error)

	// Submit starts a long-running task and returns a handle. Only valid
	// when Descriptor().Capabilities.Submit is true.
	Submit(ctx context.Context, query string, opts ExecuteOptions) (Handle, error)

	// Poll checks the status of a previously submitted task. Only valid
	// when Descriptor().Capabilities.Poll is true.
	Poll(ctx context.Context, h Handle) (PollStatus, error)

	// Retrieve fetches the artifact of a completed task. Only valid when
	// Descriptor().Capabilities.Retrieve is true.
	Retrieve(ctx context.Context, h Handle) (Result, error)

	// Test performs a lightweight connectivity/credential check. Only
	// valid when Descriptor().Capabilities.Test is true.
	Test(ctx context.Context) (TestResult, error)
}

// ErrUnsupported is returned by the optional methods of a provider that
// does not declare the corresponding capability.
var ErrUnsupported = &Error{Code: ErrCodeInvalidRequest, Message: "operation not supported by this provider"}
