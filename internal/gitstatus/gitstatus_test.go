package gitstatus

import (
	"testing"

	"github.com/rybkr/ffpick/internal/query"
)

func TestRefreshWithoutRepoIsNotAnError(t *testing.T) {
	c := New(t.TempDir(), nil)
	changed, err := c.Refresh()
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if changed != 0 {
		t.Fatalf("changed = %d, want 0", changed)
	}
	if c.HasRepository() {
		t.Fatal("expected no repository detected")
	}
	if got := c.Status("anything.go"); got != query.GitStatusUnknown {
		t.Fatalf("status = %v, want Unknown", got)
	}
}
