package resilience

import (
	"errors"
	"testing"
	"time"
)

func newGroup(maxFailures int) *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: maxFailures, ResetTimeout: time.Hour},
	})
	fg.AddFallback("secondary", "secondary")
	return fg
}

func TestFallbackGroup_Execute(t *testing.T) {
	tests := []struct {
		name    string
		failing map[string]bool
		want    string
		wantErr bool
	}{
		{name: "primary succeeds", want: "primary"},
		{name: "primary fails", failing: map[string]bool{"primary": true}, want: "secondary"},
		{name: "all fail", failing: map[string]bool{"primary": true, "secondary": true}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fg := newGroup(3)
			var called string
			err := fg.Execute(func(v string) error {
				if tc.failing[v] {
					return errTest
				}
				called = v
				return nil
			})
			if tc.wantErr {
				if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest) {
					t.Fatalf("err = %v, want ErrAllFailed wrapping errTest", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if called != tc.want {
				t.Errorf("called = %q, want %q", called, tc.want)
			}
		})
	}
}

func TestFallbackGroup_SkipsOpenProvider(t *testing.T) {
	fg := newGroup(2)

	var primaryCalls int
	fail := func(v string) error {
		if v == "primary" {
			primaryCalls++
			return errTest
		}
		return nil
	}
	_ = fg.Execute(fail)
	_ = fg.Execute(fail)
	_ = fg.Execute(fail)

	if primaryCalls != 2 {
		t.Errorf("primary called %d times, want 2 (breaker should open)", primaryCalls)
	}

	statuses := fg.Statuses()
	if len(statuses) != 2 || fg.Len() != 2 {
		t.Fatalf("statuses = %+v", statuses)
	}
	if statuses[0] != (EntryStatus{Name: "primary", State: "open"}) {
		t.Errorf("primary status = %+v", statuses[0])
	}
	if statuses[1] != (EntryStatus{Name: "secondary", State: "closed"}) {
		t.Errorf("secondary status = %+v", statuses[1])
	}
}

func TestExecuteWithResult(t *testing.T) {
	fg := newGroup(3)

	got, err := ExecuteWithResult(fg, func(v string) (int, error) {
		if v == "primary" {
			return 0, errTest
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("ExecuteWithResult = %d, %v; want 42, nil", got, err)
	}

	got, err = ExecuteWithResult(fg, func(string) (int, error) { return 7, errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if got != 0 {
		t.Errorf("result on failure = %d, want zero value", got)
	}
}
