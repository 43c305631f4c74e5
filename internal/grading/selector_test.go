package grading

import (
	"errors"
	"testing"

	"exam-grading-service/internal/domain"
)

func TestSelectorDefaultsToLocal(t *testing.T) {
	s := NewSelector("", RemoteOptions{})
	g, err := s.Select("")
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if g.Name() != "local" {
		t.Fatalf("expected local grader, got %q", g.Name())
	}
}

func TestSelectorRemote(t *testing.T) {
	s := NewSelector("local", RemoteOptions{APIKey: "test-key"})
	g, err := s.Select("remote")
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if g.Name() != "remote" {
		t.Fatalf("expected remote grader, got %q", g.Name())
	}
}

func TestSelectorRemoteMisconfiguredFallsBackToLocal(t *testing.T) {
	// No API key configured, so a remote request degrades instead of failing.
	s := NewSelector("remote", RemoteOptions{})
	g, err := s.Select("")
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if g.Name() != "local" {
		t.Fatalf("expected local fallback, got %q", g.Name())
	}
}

func TestSelectorUnknownKind(t *testing.T) {
	s := NewSelector("local", RemoteOptions{})
	_, err := s.Select("oracle")
	var cerr *domain.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSelectorLookup(t *testing.T) {
	s := NewSelector("local", RemoteOptions{})
	s.Register("Custom", func() (Grader, error) { return NewLocalGrader(), nil })

	if _, err := s.Lookup("custom"); err != nil {
		t.Fatalf("lookup should be case-insensitive: %v", err)
	}
	if _, err := s.Lookup("missing"); err == nil {
		t.Fatal("expected error for unregistered grader")
	}
	// Registered graders are not reachable through Select.
	if _, err := s.Select("custom"); err == nil {
		t.Fatal("expected Select to reject registry-only names")
	}
}
