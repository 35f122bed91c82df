package customprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/sanix-darker/librarium/internal/config"
	"github.com/sanix-darker/librarium/internal/provider"
)

// protocolVersion is the subprocess IPC envelope version.
const protocolVersion = 1

// Default per-operation timeouts; execute/submit instead use the caller's
// options.timeout, floored at 1 second.
const (
	describeTimeout = 30 * time.Second
	pollTimeout     = 30 * time.Second
	testTimeout     = 30 * time.Second
	retrieveTimeout = 120 * time.Second
	minOpTimeout    = 1 * time.Second
)

type envelopeRequest struct {
	ProtocolVersion int                    `json:"protocolVersion"`
	Operation       string                 `json:"operation"`
	ProviderID      string                 `json:"providerId"`
	Query           string                 `json:"query,omitempty"`
	Handle          *provider.Handle       `json:"handle,omitempty"`
	Options         map[string]interface{} `json:"options,omitempty"`
	ProviderConfig  map[string]interface{} `json:"providerConfig,omitempty"`
	SourceOptions   map[string]interface{} `json:"sourceOptions,omitempty"`
}

type envelopeResponse struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

type describeData struct {
	ID             string                `json:"id,omitempty"`
	DisplayName    string                `json:"displayName"`
	Tier           provider.Tier         `json:"tier"`
	EnvVar         string                `json:"envVar,omitempty"`
	RequiresAPIKey bool                  `json:"requiresApiKey,omitempty"`
	Capabilities   provider.Capabilities `json:"capabilities"`
}

// scriptProvider is a subprocess-backed custom provider: one process
// spawned per operation, over stdin/stdout JSON envelopes, adapted from a
// long-lived request/response pipe client into one-process-per-operation.
type scriptProvider struct {
	provider.Base
	id         string
	entry      config.CustomProviderEntry
	cfg        provider.Entry
	descriptor provider.Descriptor
}

// NewScriptProvider spawns the subprocess's "describe" operation and, on
// success, returns a Provider ready to serve Execute/Submit/Poll/Retrieve/
// Test according to the capabilities it reported.
func NewScriptProvider(ctx context.Context, id string, entry config.CustomProviderEntry, cfg provider.Entry) (provider.Provider, error) {
	sp := &scriptProvider{id: id, entry: entry, cfg: cfg}

	resp, err := sp.call(ctx, "describe", describeTimeout, envelopeRequest{})
	if err != nil {
		return nil, fmt.Errorf("customprovider: describe failed for %q: %w", id, err)
	}

	var data describeData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("customprovider: invalid describe response for %q: %w", id, err)
	}
	if data.ID != "" && data.ID != id {
		return nil, fmt.Errorf("customprovider: describe returned id %q, expected %q", data.ID, id)
	}

	desc := provider.Descriptor{
		ID:             id,
		DisplayName:    data.DisplayName,
		Tier:           data.Tier,
		EnvVar:         data.EnvVar,
		Source:         provider.SourceScript,
		RequiresAPIKey: data.RequiresAPIKey,
		Capabilities:   data.Capabilities,
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("customprovider: %w", err)
	}
	sp.descriptor = desc

	return sp, nil
}

func (s *scriptProvider) Descriptor() provider.Descriptor { return s.descriptor }

func (s *scriptProvider) Execute(ctx context.Context, query string, opts provider.ExecuteOptions) (provider.Result, error) {
	timeout := opts.Timeout
	if timeout < minOpTimeout {
		timeout = minOpTimeout
	}
	resp, err := s.call(ctx, "execute", timeout, envelopeRequest{Query: query})
	if err != nil {
		return provider.Result{}, err
	}
	var result provider.Result
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return provider.Result{}, fmt.Errorf("customprovider: invalid execute response: %w", err)
	}
	return result, nil
}

func (s *scriptProvider) Submit(ctx context.Context, query string, opts provider.ExecuteOptions) (provider.Handle, error) {
	if !s.descriptor.Capabilities.Submit {
		return provider.Handle{}, provider.ErrUnsupported
	}
	timeout := opts.Timeout
	if timeout < minOpTimeout {
		timeout = minOpTimeout
	}
	resp, err := s.call(ctx, "submit", timeout, envelopeRequest{Query: query})
	if err != nil {
		return provider.Handle{}, err
	}
	var handle provider.Handle
	if err := json.Unmarshal(resp.Data, &handle); err != nil {
		return provider.Handle{}, fmt.Errorf("customprovider: invalid submit response: %w", err)
	}
	return handle, nil
}

func (s *scriptProvider) Poll(ctx context.Context, h provider.Handle) (provider.PollStatus, error) {
	if !s.descriptor.Capabilities.Poll {
		return provider.PollStatus{}, provider.ErrUnsupported
	}
	resp, err := s.call(ctx, "poll", pollTimeout, envelopeRequest{Handle: &h})
	if err != nil {
		return provider.PollStatus{}, err
	}
	var status provider.PollStatus
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return provider.PollStatus{}, fmt.Errorf("customprovider: invalid poll response: %w", err)
	}
	return status, nil
}

func (s *scriptProvider) Retrieve(ctx context.Context, h provider.Handle) (provider.Result, error) {
	if !s.descriptor.Capabilities.Retrieve {
		return provider.Result{}, provider.ErrUnsupported
	}
	resp, err := s.call(ctx, "retrieve", retrieveTimeout, envelopeRequest{Handle: &h})
	if err != nil {
		return provider.Result{}, err
	}
	var result provider.Result
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return provider.Result{}, fmt.Errorf("customprovider: invalid retrieve response: %w", err)
	}
	return result, nil
}

func (s *scriptProvider) Test(ctx context.Context) (provider.TestResult, error) {
	if !s.descriptor.Capabilities.Test {
		return provider.TestResult{}, provider.ErrUnsupported
	}
	resp, err := s.call(ctx, "test", testTimeout, envelopeRequest{})
	if err != nil {
		return provider.TestResult{}, err
	}
	var result provider.TestResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return provider.TestResult{}, fmt.Errorf("customprovider: invalid test response: %w", err)
	}
	return result, nil
}

// call spawns one subprocess for a single operation, writes one request
// envelope to its stdin, reads one response envelope from its stdout, and
// kills the child on timeout.
func (s *scriptProvider) call(ctx context.Context, operation string, timeout time.Duration, partial envelopeRequest) (envelopeResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := partial
	req.ProtocolVersion = protocolVersion
	req.Operation = operation
	req.ProviderID = s.id
	req.ProviderConfig = map[string]interface{}{
		"apiKey":  s.cfg.APIKey,
		"model":   s.cfg.Model,
		"options": s.cfg.Options,
	}
	if s.entry.Args != nil {
		req.SourceOptions = map[string]interface{}{"args": s.entry.Args}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return envelopeResponse{}, fmt.Errorf("customprovider: failed to encode request: %w", err)
	}

	cmd := exec.CommandContext(callCtx, s.entry.Command, s.entry.Args...)
	cmd.Dir = s.entry.Cwd
	cmd.Env = mergedEnv(s.entry.Env)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if callCtx.Err() != nil {
			return envelopeResponse{}, fmt.Errorf("customprovider: %s operation timed out after %s", operation, timeout)
		}
		return envelopeResponse{}, fmt.Errorf("customprovider: %s failed: %w (%s)", operation, err, stderr.String())
	}

	var resp envelopeResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return envelopeResponse{}, fmt.Errorf("customprovider: %s produced non-JSON output: %w", operation, err)
	}
	if !resp.OK {
		if resp.Error == "" {
			return envelopeResponse{}, fmt.Errorf("customprovider: %s failed with empty error", operation)
		}
		return envelopeResponse{}, fmt.Errorf("customprovider: %s: %s", operation, resp.Error)
	}
	return resp, nil
}

func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}
