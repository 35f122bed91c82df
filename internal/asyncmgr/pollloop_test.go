package asyncmgr

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanix-darker/librarium/internal/config"
	"github.com/sanix-darker/librarium/internal/provider"
)

// fakeAsyncProvider returns StatusRunning for the first two Poll calls and
// StatusCompleted on the third, then Retrieve yields content + citations.
type fakeAsyncProvider struct {
	provider.Base
	id        string
	pollCalls int
}

func (f *fakeAsyncProvider) Descriptor() provider.Descriptor {
	return provider.Descriptor{
		ID: f.id, Tier: provider.TierDeepResearch, Source: provider.SourceBuiltin,
		Capabilities: provider.Capabilities{Submit: true, Poll: true, Retrieve: true},
	}
}

func (f *fakeAsyncProvider) Execute(ctx context.Context, query string, opts provider.ExecuteOptions) (provider.Result, error) {
	return provider.Result{}, provider.ErrUnsupported
}

func (f *fakeAsyncProvider) Poll(ctx context.Context, h provider.Handle) (provider.PollStatus, error) {
	f.pollCalls++
	if f.pollCalls >= 3 {
		return provider.PollStatus{Status: provider.StatusCompleted}, nil
	}
	return provider.PollStatus{Status: provider.StatusRunning}, nil
}

func (f *fakeAsyncProvider) Retrieve(ctx context.Context, h provider.Handle) (provider.Result, error) {
	return provider.Result{
		Content: "deep research result",
		Citations: []provider.Citation{
			{URL: "https://x.com", Provider: f.id},
			{URL: "https://y.com", Provider: f.id},
		},
	}, nil
}

func TestPollLoop_SubmitPollRetrieveRoundTrip(t *testing.T) {
	p := &fakeAsyncProvider{id: "anthropic-research"}
	reg := provider.NewRegistry()
	require.NoError(t, reg.TryRegister(p.Descriptor(), func(cfg provider.Entry) (provider.Provider, error) { return p, nil }))

	cfg := config.NewDefaultConfig()
	cfg.Providers["anthropic-research"] = config.ProviderEntry{APIKey: "$KEY", Enabled: true}
	os.Setenv("KEY", "test")

	base := t.TempDir()
	runDir := filepath.Join(base, "run-1")
	require.NoError(t, Save(runDir, []provider.Handle{
		{Provider: "anthropic-research", TaskID: "task-1", Status: provider.StatusPending},
	}))

	err := PollLoop(context.Background(), reg, &cfg, base, time.Millisecond, 5*time.Second)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, p.pollCalls, 3)

	remaining, err := Load(runDir)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	content, err := os.ReadFile(filepath.Join(runDir, "anthropic-research.md"))
	require.NoError(t, err)
	assert.Equal(t, "deep research result", string(content))

	meta, err := os.ReadFile(filepath.Join(runDir, "anthropic-research.meta.json"))
	require.NoError(t, err)
	assert.Contains(t, string(meta), "x.com")
	assert.Contains(t, string(meta), "y.com")
}

func TestPollLoop_MarksFailedWhenProviderLacksPoll(t *testing.T) {
	// noPollProvider only has Submit capability, so the loop should mark
	// the handle failed rather than spin forever.
	reg := provider.NewRegistry()
	desc := provider.Descriptor{ID: "no-poll", Tier: provider.TierDeepResearch, Capabilities: provider.Capabilities{Submit: true}}
	np := &noPollProvider{}
	require.NoError(t, reg.TryRegister(desc, func(cfg provider.Entry) (provider.Provider, error) { return np, nil }))

	cfg := config.NewDefaultConfig()
	cfg.Providers["no-poll"] = config.ProviderEntry{APIKey: "$KEY2", Enabled: true}
	os.Setenv("KEY2", "test")

	base := t.TempDir()
	runDir := filepath.Join(base, "run-1")
	require.NoError(t, Save(runDir, []provider.Handle{{Provider: "no-poll", TaskID: "task-x", Status: provider.StatusPending}}))

	err := PollLoop(context.Background(), reg, &cfg, base, time.Millisecond, time.Second)
	require.NoError(t, err)

	remaining, err := Load(runDir)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, provider.StatusFailed, remaining[0].Status)
}

type noPollProvider struct{ provider.Base }

func (p *noPollProvider) Descriptor() provider.Descriptor {
	return provider.Descriptor{ID: "no-poll", Tier: provider.TierDeepResearch, Capabilities: provider.Capabilities{Submit: true}}
}
func (p *noPollProvider) Execute(ctx context.Context, query string, opts provider.ExecuteOptions) (provider.Result, error) {
	return provider.Result{}, provider.ErrUnsupported
}

func TestPollLoop_RespectsContextCancellation(t *testing.T) {
	p := &fakeAsyncProvider{id: "anthropic-research"}
	reg := provider.NewRegistry()
	require.NoError(t, reg.TryRegister(p.Descriptor(), func(cfg provider.Entry) (provider.Provider, error) { return p, nil }))

	cfg := config.NewDefaultConfig()
	cfg.Providers["anthropic-research"] = config.ProviderEntry{APIKey: "$KEY", Enabled: true}

	base := t.TempDir()
	runDir := filepath.Join(base, "run-1")
	require.NoError(t, Save(runDir, []provider.Handle{{Provider: "anthropic-research", TaskID: "t1", Status: provider.StatusPending}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := PollLoop(ctx, reg, &cfg, base, time.Millisecond, time.Second)
	assert.Error(t, err)
}

func TestPollOnce_RetrievesOnlyWhatCompletesInOneSweep(t *testing.T) {
	p := &fakeAsyncProvider{id: "anthropic-research", pollCalls: 2}
	reg := provider.NewRegistry()
	require.NoError(t, reg.TryRegister(p.Descriptor(), func(cfg provider.Entry) (provider.Provider, error) { return p, nil }))

	cfg := config.NewDefaultConfig()
	cfg.Providers["anthropic-research"] = config.ProviderEntry{APIKey: "$KEY", Enabled: true}
	os.Setenv("KEY", "test")

	base := t.TempDir()
	runDir := filepath.Join(base, "run-1")
	require.NoError(t, Save(runDir, []provider.Handle{
		{Provider: "anthropic-research", TaskID: "task-1", Status: provider.StatusPending},
	}))

	require.NoError(t, PollOnce(context.Background(), reg, &cfg, base))

	remaining, err := Load(runDir)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	content, err := os.ReadFile(filepath.Join(runDir, "anthropic-research.md"))
	require.NoError(t, err)
	assert.Equal(t, "deep research result", string(content))
}

func TestPollOnce_LeavesHandleRunningWhenNotYetComplete(t *testing.T) {
	p := &fakeAsyncProvider{id: "anthropic-research"}
	reg := provider.NewRegistry()
	require.NoError(t, reg.TryRegister(p.Descriptor(), func(cfg provider.Entry) (provider.Provider, error) { return p, nil }))

	cfg := config.NewDefaultConfig()
	cfg.Providers["anthropic-research"] = config.ProviderEntry{APIKey: "$KEY", Enabled: true}
	os.Setenv("KEY", "test")

	base := t.TempDir()
	runDir := filepath.Join(base, "run-1")
	require.NoError(t, Save(runDir, []provider.Handle{
		{Provider: "anthropic-research", TaskID: "task-1", Status: provider.StatusPending},
	}))

	require.NoError(t, PollOnce(context.Background(), reg, &cfg, base))

	remaining, err := Load(runDir)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, provider.StatusRunning, remaining[0].Status)
}
