package provider

import "context"

// Base implements the optional Provider methods as ErrUnsupported so that
// concrete adapters can embed it and only override what they actually
// support, declaring the matching capability flag in their Descriptor.
// A provider that only does Execute embeds Base and writes nothing else.
type Base struct{}

func (Base) Submit(ctx context.Context, query string, opts ExecuteOptions) (Handle, error) {
	return Handle{}, ErrUnsupported
}

func (Base) Poll(ctx context.Context, h Handle) (PollStatus, error) {
	return PollStatus{}, ErrUnsupported
}

func (Base) Retrieve(ctx context.Context, h Handle) (Result, error) {
	return Result{}, ErrUnsupported
}

func (Base) Test(ctx context.Context) (TestResult, error) {
	return TestResult{}, ErrUnsupported
}

// ResolveAPIKey resolves a provider's API key for the config-layer apiKey
// field: values starting with "$" are looked up in the process
// environment; everything else is used literally. An
// empty resolved value counts as missing (returns "", false).
func ResolveAPIKey(getenv func(string) string, ref string) (string, bool) {
	if ref == "" {
		return "", false
	}
	val := ref
	if len(ref) > 0 && ref[0] == '$' {
		val = getenv(ref[1:])
	}
	if val == "" {
		return "", false
	}
	return val, true
}
