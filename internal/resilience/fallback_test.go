package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestFallbackGroup_PrimarySucceeds(t *testing.T) {
	g := NewFallbackGroup("primary", "primary", FallbackConfig{})
	g.AddFallback("backup", "backup")

	var used string
	err := g.Do(func(v string) error {
		used = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if used != "primary" {
		t.Errorf("used = %q, want primary", used)
	}
}

func TestFallbackGroup_FailsOverToBackup(t *testing.T) {
	g := NewFallbackGroup("primary", "primary", FallbackConfig{})
	g.AddFallback("backup", "backup")

	var tried []string
	err := g.Do(func(v string) error {
		tried = append(tried, v)
		if v == "primary" {
			return errTest
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tried) != 2 || tried[0] != "primary" || tried[1] != "backup" {
		t.Errorf("tried = %v, want [primary backup]", tried)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	g := NewFallbackGroup("primary", "primary", FallbackConfig{})
	g.AddFallback("backup", "backup")

	err := g.Do(func(string) error { return errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	g := NewFallbackGroup("primary", "primary", FallbackConfig{
		Breaker: BreakerConfig{Threshold: 1, Cooldown: time.Hour},
	})
	g.AddFallback("backup", "backup")

	// Trip the primary's breaker.
	_ = g.Do(func(v string) error {
		if v == "primary" {
			return errTest
		}
		return nil
	})

	var tried []string
	err := g.Do(func(v string) error {
		tried = append(tried, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tried) != 1 || tried[0] != "backup" {
		t.Errorf("tried = %v, want [backup] (primary breaker open)", tried)
	}
}

func TestDoWithResult(t *testing.T) {
	g := NewFallbackGroup(1, "one", FallbackConfig{})
	g.AddFallback("two", 2)

	got, err := DoWithResult(g, func(v int) (int, error) {
		if v == 1 {
			return 0, errTest
		}
		return v * 10, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 20 {
		t.Errorf("result = %d, want 20", got)
	}
}

func TestDoWithResult_AllFail(t *testing.T) {
	g := NewFallbackGroup(1, "one", FallbackConfig{})

	_, err := DoWithResult(g, func(int) (int, error) { return 0, errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
