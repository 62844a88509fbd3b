package rooms_test

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskwire/taskwire/internal/rooms"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestTracker() *rooms.Tracker {
	return rooms.NewTracker(newTestLogger())
}

func member(userID string) rooms.Member {
	return rooms.Member{UserID: userID, UserName: userID, JoinedAt: time.Now()}
}

func TestJoinCreatesRoomLazily(t *testing.T) {
	tr := newTestTracker()
	connID := uuid.New()

	if tr.Exists("L1") {
		t.Fatal("Room exists before any join")
	}
	count := tr.Join(connID, "L1", member("u1"))
	if count != 1 {
		t.Errorf("Expected member count 1 after first join, got %d", count)
	}
	if !tr.Exists("L1") {
		t.Error("Room missing after join")
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	tr := newTestTracker()
	connID := uuid.New()

	tr.Join(connID, "L1", member("u1"))
	count := tr.Join(connID, "L1", member("u1"))
	if count != 1 {
		t.Errorf("Rejoining duplicated membership: count %d", count)
	}
	if got := tr.MemberCount("L1"); got != 1 {
		t.Errorf("Expected member count 1, got %d", got)
	}
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	tr := newTestTracker()
	c1, c2 := uuid.New(), uuid.New()
	tr.Join(c1, "L1", member("u1"))
	tr.Join(c2, "L1", member("u2"))

	if !tr.Leave(c1, "L1") {
		t.Error("Leave of a member reported not-a-member")
	}
	if !tr.Exists("L1") {
		t.Fatal("Room deleted while it still had a member")
	}

	tr.Leave(c2, "L1")
	if tr.Exists("L1") {
		t.Error("Expected room entry to be gone after the last member left")
	}
}

func TestLeaveUnknownIsNoOp(t *testing.T) {
	tr := newTestTracker()
	if tr.Leave(uuid.New(), "never-created") {
		t.Error("Leaving a room that never existed reported membership")
	}

	tr.Join(uuid.New(), "L1", member("u1"))
	if tr.Leave(uuid.New(), "L1") {
		t.Error("Leaving a room the connection is not in reported membership")
	}
	if got := tr.MemberCount("L1"); got != 1 {
		t.Errorf("No-op leave mutated membership: count %d", got)
	}
}

func TestRemoveConnectionSweepsAllRooms(t *testing.T) {
	tr := newTestTracker()
	target, other := uuid.New(), uuid.New()

	tr.Join(target, "L1", member("u1"))
	tr.Join(target, "L2", member("u1"))
	tr.Join(target, "L3", member("u1"))
	tr.Join(other, "L2", member("u2"))

	affected := tr.RemoveConnection(target)
	if len(affected) != 3 {
		t.Fatalf("Expected 3 affected rooms, got %d", len(affected))
	}
	if tr.Exists("L1") || tr.Exists("L3") {
		t.Error("Rooms emptied by disconnect were not deleted")
	}
	if !tr.Exists("L2") {
		t.Error("Room with a remaining member was deleted")
	}
	if got := tr.MemberCount("L2"); got != 1 {
		t.Errorf("Expected 1 member left in L2, got %d", got)
	}
}

func TestReconcileDropsStaleMembers(t *testing.T) {
	tr := newTestTracker()
	stale, live := uuid.New(), uuid.New()
	tr.Join(stale, "L1", member("gone"))
	tr.Join(live, "L1", member("here"))
	tr.Join(stale, "L2", member("gone"))

	dropped := tr.Reconcile(func(id uuid.UUID) bool { return id == live })
	if dropped != 2 {
		t.Errorf("Expected 2 stale records dropped, got %d", dropped)
	}
	if tr.Exists("L2") {
		t.Error("Room emptied by reconcile was not deleted")
	}
	members := tr.Members("L1")
	if len(members) != 1 || members[0].UserID != "here" {
		t.Errorf("Unexpected L1 membership after reconcile: %+v", members)
	}
}

func TestMembersOfAbsentRoomIsEmpty(t *testing.T) {
	tr := newTestTracker()
	if got := tr.Members("nope"); len(got) != 0 {
		t.Errorf("Expected empty member list, got %d entries", len(got))
	}
	if got := tr.Connections("nope"); len(got) != 0 {
		t.Errorf("Expected empty connection list, got %d entries", len(got))
	}
}
