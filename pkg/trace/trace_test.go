package trace

import (
	"context"
	"testing"
)

func TestEnsure_KeepsExistingID(t *testing.T) {
	ctx := WithContext(context.Background(), "abc")
	_, id := Ensure(ctx)
	if id != "abc" {
		t.Fatalf("Ensure() id=%q, want %q", id, "abc")
	}
}

func TestEnsure_GeneratesID(t *testing.T) {
	ctx, id := Ensure(context.Background())
	if len(id) != 32 {
		t.Fatalf("len(id)=%d, want 32", len(id))
	}
	if FromContext(ctx) != id {
		t.Fatalf("FromContext()=%q, want %q", FromContext(ctx), id)
	}
}
