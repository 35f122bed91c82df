package asyncmgr

import (
	"context"
	"fmt"
	"time"

	"github.com/sanix-darker/librarium/internal/artifact"
	"github.com/sanix-darker/librarium/internal/config"
	"github.com/sanix-darker/librarium/internal/dispatch"
	"github.com/sanix-darker/librarium/internal/provider"
)

// PollLoop drives the `status --wait` command path: repeatedly sweeps
// baseDir's run directories for
// pending/running handles, polls each, persists status transitions, and
// once a sweep finds nothing left pending/running, retrieves every handle
// that just completed and writes its artifacts.
func PollLoop(ctx context.Context, reg *provider.Registry, cfg *config.Config, baseDir string, interval, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	justCompleted := map[string]bool{}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			break
		}

		entries, err := Query(baseDir, provider.StatusPending, provider.StatusRunning)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			break
		}

		for _, entry := range entries {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			pollOne(ctx, reg, cfg, entry, justCompleted)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	return retrieveCompleted(ctx, reg, cfg, baseDir, justCompleted)
}

// PollOnce drives a single sweep: poll every pending/running handle exactly
// once, then retrieve and write artifacts for any that completed in that
// sweep. It is the non-blocking counterpart to PollLoop, used by `status
// --retrieve` without `--wait`.
func PollOnce(ctx context.Context, reg *provider.Registry, cfg *config.Config, baseDir string) error {
	entries, err := Query(baseDir, provider.StatusPending, provider.StatusRunning)
	if err != nil {
		return err
	}

	justCompleted := map[string]bool{}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pollOne(ctx, reg, cfg, entry, justCompleted)
	}

	return retrieveCompleted(ctx, reg, cfg, baseDir, justCompleted)
}

func pollOne(ctx context.Context, reg *provider.Registry, cfg *config.Config, entry QueryEntry, justCompleted map[string]bool) {
	h := entry.Handle
	p, err := resolveProvider(reg, cfg, h.Provider)
	if err != nil {
		_ = UpdateOne(entry.Dir, h.TaskID, func(handle *provider.Handle) {
			handle.Status = provider.StatusFailed
			now := time.Now().UnixMilli()
			handle.CompletedAt = &now
		})
		return
	}

	desc := p.Descriptor()
	if !desc.Capabilities.Poll {
		_ = UpdateOne(entry.Dir, h.TaskID, func(handle *provider.Handle) {
			handle.Status = provider.StatusFailed
			now := time.Now().UnixMilli()
			handle.CompletedAt = &now
		})
		return
	}

	status, err := p.Poll(ctx, h)
	now := time.Now().UnixMilli()
	if err != nil {
		_ = UpdateOne(entry.Dir, h.TaskID, func(handle *provider.Handle) {
			handle.Status = provider.StatusFailed
			handle.CompletedAt = &now
		})
		return
	}

	if status.Status.Terminal() {
		_ = UpdateOne(entry.Dir, h.TaskID, func(handle *provider.Handle) {
			handle.Status = status.Status
			handle.CompletedAt = &now
		})
		if status.Status == provider.StatusCompleted {
			justCompleted[h.TaskID] = true
		}
		return
	}

	_ = UpdateOne(entry.Dir, h.TaskID, func(handle *provider.Handle) {
		handle.Status = status.Status
		handle.LastPolledAt = &now
	})
}

func retrieveCompleted(ctx context.Context, reg *provider.Registry, cfg *config.Config, baseDir string, justCompleted map[string]bool) error {
	entries, err := Query(baseDir, provider.StatusCompleted)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !justCompleted[entry.Handle.TaskID] {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		h := entry.Handle
		p, err := resolveProvider(reg, cfg, h.Provider)
		if err != nil {
			continue
		}
		if !p.Descriptor().Capabilities.Retrieve {
			continue
		}

		result, err := p.Retrieve(ctx, h)
		if err != nil {
			// Leave the handle in place; next invocation retries retrieval.
			continue
		}

		sanitized := dispatch.SanitizeID(h.Provider)
		if err := artifact.WriteProviderFiles(entry.Dir, sanitized, result); err != nil {
			continue
		}
		_ = RemoveOne(entry.Dir, h.TaskID)
	}

	return nil
}

func resolveProvider(reg *provider.Registry, cfg *config.Config, id string) (provider.Provider, error) {
	canon := provider.CanonicalID(id)
	entry, ok := cfg.Providers[canon]
	if !ok {
		return nil, fmt.Errorf("asyncmgr: no config entry for provider %q", id)
	}
	apiKey, _ := config.ResolveAPIKey(entry.APIKey)
	return reg.Get(id, provider.Entry{ID: id, APIKey: apiKey, Model: entry.Model, Options: entry.Options})
}
