package runner

import (
	"context"
	"errors"
	"testing"
)

type stubRunner struct {
	name  string
	text  string
	err   error
	calls int
}

func (s *stubRunner) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	s.calls++
	return s.text, s.err
}

func (s *stubRunner) Name() string { return s.name }

func (s *stubRunner) Close() error { return nil }

func TestFallbackPrimarySucceeds(t *testing.T) {
	primary := &stubRunner{name: "a", text: "wire w;"}
	secondary := &stubRunner{name: "b", text: "reg r;"}
	f := &Fallback{Primary: primary, Secondary: secondary}

	got, err := f.Complete(context.Background(), "p", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got != "wire w;" {
		t.Errorf("expected primary text, got %q", got)
	}
	if secondary.calls != 0 {
		t.Errorf("expected secondary not called, got %d calls", secondary.calls)
	}
	if f.Name() != "a+b" {
		t.Errorf("unexpected name %q", f.Name())
	}
}

func TestFallbackUsesSecondary(t *testing.T) {
	primary := &stubRunner{name: "a", err: errors.New("connection refused")}
	secondary := &stubRunner{name: "b", text: "reg r;"}
	f := &Fallback{Primary: primary, Secondary: secondary}

	got, err := f.Complete(context.Background(), "p", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got != "reg r;" {
		t.Errorf("expected secondary text, got %q", got)
	}
}

func TestFallbackBothFail(t *testing.T) {
	errA := errors.New("a down")
	errB := errors.New("b down")
	f := &Fallback{
		Primary:   &stubRunner{name: "a", err: errA},
		Secondary: &stubRunner{name: "b", err: errB},
	}
	_, err := f.Complete(context.Background(), "p", Options{})
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("expected both errors joined, got %v", err)
	}
}

func TestFallbackSkipsSecondaryWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	secondary := &stubRunner{name: "b", text: "reg r;"}
	f := &Fallback{
		Primary:   &stubRunner{name: "a", err: context.Canceled},
		Secondary: secondary,
	}
	_, err := f.Complete(ctx, "p", Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if secondary.calls != 0 {
		t.Error("expected secondary not called after cancellation")
	}
}

type pingStub struct {
	stubRunner
	err error
}

func (p *pingStub) Heartbeat(context.Context) error { return p.err }

func TestFallbackHeartbeat(t *testing.T) {
	down := errors.New("down")
	tests := []struct {
		name      string
		primary   Runner
		secondary Runner
		wantErr   bool
	}{
		{"primary up", &pingStub{}, &pingStub{err: down}, false},
		{"secondary up", &pingStub{err: down}, &pingStub{}, false},
		{"both down", &pingStub{err: down}, &pingStub{err: down}, true},
		{"no secondary", &pingStub{err: down}, nil, true},
		{"unprobed primary", &stubRunner{}, &pingStub{err: down}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &Fallback{Primary: tt.primary, Secondary: tt.secondary}
			err := f.Heartbeat(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Heartbeat() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
