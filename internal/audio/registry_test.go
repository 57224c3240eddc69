package audio

import "testing"

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(1001, Identity{SpeakerID: "user-1", DisplayName: "Alice", Username: "alice"})

	info, ok := r.Get(1001)
	if !ok {
		t.Fatal("expected stream to be registered")
	}
	if info.SpeakerID != "user-1" || info.DisplayName != "Alice" || info.Username != "alice" {
		t.Errorf("identity mismatch: %+v", info)
	}
	if info.JoinedAt.IsZero() {
		t.Error("JoinedAt not set")
	}

	byUser, ok := r.GetByUserID("user-1")
	if !ok || byUser.SSRC != 1001 {
		t.Errorf("reverse lookup = %+v ok=%v, want ssrc 1001", byUser, ok)
	}

	ssrc, ok := r.GetSSRCByUserID("user-1")
	if !ok || ssrc != 1001 {
		t.Errorf("GetSSRCByUserID = %d ok=%v, want 1001", ssrc, ok)
	}
}

func TestRegistry_MissReturnsNotFound(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get(42); ok {
		t.Error("expected miss on unknown ssrc")
	}
	if _, ok := r.GetByUserID("ghost"); ok {
		t.Error("expected miss on unknown speaker")
	}
}

func TestRegistry_ReRegisterPrunesStaleStream(t *testing.T) {
	r := NewRegistry()
	r.Register(1001, Identity{SpeakerID: "user-1"})
	r.Register(2002, Identity{SpeakerID: "user-1"})

	if _, ok := r.Get(1001); ok {
		t.Error("stale ssrc entry survived re-register")
	}
	if ssrc, _ := r.GetSSRCByUserID("user-1"); ssrc != 2002 {
		t.Errorf("reverse index = %d, want 2002", ssrc)
	}
	if r.Size() != 1 {
		t.Errorf("Size = %d, want 1", r.Size())
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	r.Register(1001, Identity{SpeakerID: "user-1"})
	r.Register(2002, Identity{SpeakerID: "user-2"})

	if !r.Remove(1001) {
		t.Fatal("Remove reported nothing removed")
	}
	if r.Remove(1001) {
		t.Error("second Remove should be a no-op")
	}
	if _, ok := r.Get(1001); ok {
		t.Error("forward entry survived Remove")
	}
	if _, ok := r.GetSSRCByUserID("user-1"); ok {
		t.Error("reverse entry survived Remove")
	}
	if r.Size() != 1 {
		t.Errorf("Size = %d, want 1", r.Size())
	}
}

func TestRegistry_RemoveByUserID(t *testing.T) {
	r := NewRegistry()
	r.Register(1001, Identity{SpeakerID: "user-1"})

	if !r.RemoveByUserID("user-1") {
		t.Fatal("RemoveByUserID reported nothing removed")
	}
	if _, ok := r.Get(1001); ok {
		t.Error("forward entry survived RemoveByUserID")
	}
	if r.RemoveByUserID("user-1") {
		t.Error("second RemoveByUserID should be a no-op")
	}
}

func TestRegistry_ClearAndAllUsers(t *testing.T) {
	r := NewRegistry()
	r.Register(1, Identity{SpeakerID: "a"})
	r.Register(2, Identity{SpeakerID: "b"})

	if got := len(r.AllUsers()); got != 2 {
		t.Errorf("AllUsers returned %d entries, want 2", got)
	}

	r.Clear()
	if r.Size() != 0 {
		t.Errorf("Size after Clear = %d, want 0", r.Size())
	}
}
