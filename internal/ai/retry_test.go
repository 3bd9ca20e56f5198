package ai

import (
	"context"
	"errors"
	"testing"
	"time"
)

func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var waits []time.Duration
	original := sleep
	sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	t.Cleanup(func() { sleep = original })
	return &waits
}

func TestRetryPolicyExhaustsAttempts(t *testing.T) {
	waits := stubSleep(t)

	cause := &ProviderError{Provider: "fake", Kind: ErrBackendUnavailable, StatusCode: 503}
	provider := &fakeProvider{errs: []error{cause, cause, cause}}

	_, err := RetryPolicy{MaxRetries: 3}.Chat(context.Background(), provider, Request{Model: "m"})
	if err != cause {
		t.Fatalf("expected original error to propagate unchanged, got %v", err)
	}
	if provider.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", provider.calls)
	}
	if len(*waits) != 2 || (*waits)[0] != time.Second || (*waits)[1] != 2*time.Second {
		t.Fatalf("unexpected backoff schedule: %v", *waits)
	}
}

func TestRetryPolicyRecovers(t *testing.T) {
	stubSleep(t)

	want := &Response{Text: "ok"}
	provider := &fakeProvider{errs: []error{errors.New("boom")}, resp: want}

	got, err := RetryPolicy{MaxRetries: 3}.Chat(context.Background(), provider, Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want || provider.calls != 2 {
		t.Fatalf("expected success on second call, calls=%d", provider.calls)
	}
}

func TestRetryPolicyHonorsRetryAfter(t *testing.T) {
	waits := stubSleep(t)

	limited := &ProviderError{Provider: "fake", Kind: ErrRateLimited, RetryAfter: 5 * time.Second}
	provider := &fakeProvider{errs: []error{limited}, resp: &Response{}}

	policy := RetryPolicy{MaxRetries: 2, HonorRetryAfter: true}
	if _, err := policy.Chat(context.Background(), provider, Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*waits) != 1 || (*waits)[0] != 5*time.Second {
		t.Fatalf("expected retry-after delay, got %v", *waits)
	}

	*waits = nil
	provider = &fakeProvider{errs: []error{limited}, resp: &Response{}}
	if _, err := (RetryPolicy{MaxRetries: 2}).Chat(context.Background(), provider, Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if (*waits)[0] != time.Second {
		t.Fatalf("expected exponential delay when retry-after is ignored, got %v", *waits)
	}
}

func TestRetryPolicyStopsOnCancel(t *testing.T) {
	stubSleep(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &fakeProvider{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	if _, err := (RetryPolicy{MaxRetries: 3}).Chat(ctx, provider, Request{}); err == nil {
		t.Fatal("expected error")
	}
	if provider.calls != 1 {
		t.Fatalf("expected a single call after cancellation, got %d", provider.calls)
	}
}
