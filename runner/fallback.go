package runner

import (
	"context"
	"errors"
	"log/slog"
)

// Fallback tries Primary first; if it returns an error, tries Secondary.
// A cancelled or expired context is returned as-is without trying Secondary.
type Fallback struct {
	Primary   Runner
	Secondary Runner
}

// Name joins the primary and secondary backend names.
func (f *Fallback) Name() string {
	if f.Secondary == nil {
		return f.Primary.Name()
	}
	return f.Primary.Name() + "+" + f.Secondary.Name()
}

// Complete calls Primary.Complete; on any error, calls Secondary.Complete.
func (f *Fallback) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	s, err := f.Primary.Complete(ctx, prompt, opts)
	if err == nil || f.Secondary == nil || ctx.Err() != nil {
		return s, err
	}
	slog.Warn("primary runner failed, trying fallback",
		"primary", f.Primary.Name(), "fallback", f.Secondary.Name(), "error", err)
	s, err2 := f.Secondary.Complete(ctx, prompt, opts)
	if err2 != nil {
		return "", errors.Join(err, err2)
	}
	return s, nil
}

// Heartbeat succeeds if either runner is reachable. Runners that cannot be
// probed count as reachable.
func (f *Fallback) Heartbeat(ctx context.Context) error {
	err := heartbeat(ctx, f.Primary)
	if err == nil || f.Secondary == nil {
		return err
	}
	if err2 := heartbeat(ctx, f.Secondary); err2 != nil {
		return errors.Join(err, err2)
	}
	return nil
}

func heartbeat(ctx context.Context, r Runner) error {
	if p, ok := r.(Pinger); ok {
		return p.Heartbeat(ctx)
	}
	return nil
}

// Close closes both runners.
func (f *Fallback) Close() error {
	err := f.Primary.Close()
	if f.Secondary != nil {
		err = errors.Join(err, f.Secondary.Close())
	}
	return err
}
