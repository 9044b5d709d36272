package message

import "testing"

func TestNewAssignsIdentity(t *testing.T) {
	a := New("hello", "a1", RoleUser)
	b := New("hello", "a1", RoleUser)

	if a.ID == "" || b.ID == "" {
		t.Fatal("New() left ID empty")
	}
	if a.ID == b.ID {
		t.Error("two messages share an ID")
	}
	if a.Timestamp.IsZero() {
		t.Error("New() left Timestamp zero")
	}
	if a.IsInternal {
		t.Error("New() message marked internal")
	}
}

func TestNewInternal(t *testing.T) {
	m := NewInternal("bookkeeping", "a1", RoleSystem)
	if !m.IsInternal {
		t.Error("NewInternal() message not marked internal")
	}
}

func TestWithMetadataCopies(t *testing.T) {
	orig := New("hello", "a1", RoleUser)
	md := map[string]string{"source": "test"}

	m := orig.WithMetadata(md)
	if m == orig {
		t.Fatal("WithMetadata() returned the receiver, want a copy")
	}
	if orig.Metadata != nil {
		t.Error("WithMetadata() mutated the receiver")
	}

	md["source"] = "changed"
	if m.Metadata["source"] != "test" {
		t.Error("WithMetadata() aliased the caller's map")
	}
}
