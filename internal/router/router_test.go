package router_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskwire/taskwire/internal/protocol"
	"github.com/taskwire/taskwire/internal/registry"
	"github.com/taskwire/taskwire/internal/rooms"
	"github.com/taskwire/taskwire/internal/router"
	"github.com/taskwire/taskwire/pkg/permission"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type fakeStore struct {
	owners map[string]string
	shares map[string]map[string]permission.Level
}

func (f *fakeStore) ListOwnership(_ context.Context, listID, userID string) (*permission.ListRecord, error) {
	if f.owners[listID] != userID {
		return nil, nil
	}
	return &permission.ListRecord{ID: listID, OwnerID: userID}, nil
}

func (f *fakeStore) Share(_ context.Context, listID, userID string) (*permission.ShareRecord, error) {
	level, ok := f.shares[listID][userID]
	if !ok {
		return nil, nil
	}
	return &permission.ShareRecord{ListID: listID, User: permission.UserRef{ID: userID}, Level: level}, nil
}

func (f *fakeStore) ListWithShares(_ context.Context, listID string) (*permission.ListAccess, error) {
	ownerID, ok := f.owners[listID]
	if !ok {
		return nil, nil
	}
	access := &permission.ListAccess{Owner: permission.UserRef{ID: ownerID}}
	for userID, level := range f.shares[listID] {
		access.Shares = append(access.Shares, permission.ShareRecord{
			ListID: listID, User: permission.UserRef{ID: userID}, Level: level,
		})
	}
	return access, nil
}

type fakeTransport struct {
	id     uuid.UUID
	frames [][]byte
}

func (f *fakeTransport) ID() uuid.UUID { return f.id }

func (f *fakeTransport) Send(m []byte) { f.frames = append(f.frames, m) }

func (f *fakeTransport) Close(err error) {}

func (f *fakeTransport) lastMessage(t *testing.T) protocol.Message {
	t.Helper()
	require.NotEmpty(t, f.frames, "expected at least one outbound frame")
	var msg protocol.Message
	require.NoError(t, json.Unmarshal(f.frames[len(f.frames)-1], &msg))
	return msg
}

type harness struct {
	reg     *registry.Registry
	tracker *rooms.Tracker
	router  *router.Router
}

func newHarness(st permission.Store) *harness {
	logger := newTestLogger()
	reg := registry.New(logger)
	tracker := rooms.NewTracker(logger)
	resolver := permission.NewResolver(st, logger)
	return &harness{
		reg:     reg,
		tracker: tracker,
		router:  router.New(logger, reg, tracker, resolver),
	}
}

func (h *harness) connect(t *testing.T, userID string) *fakeTransport {
	t.Helper()
	ft := &fakeTransport{id: uuid.New()}
	_, err := h.reg.Register(ft, "127.0.0.1")
	require.NoError(t, err)
	if userID != "" {
		_, err = h.reg.Identify(ft.id, registry.Identity{ID: userID, Name: userID, Email: userID + "@example.com"})
		require.NoError(t, err)
	}
	return ft
}

func (h *harness) send(ft *fakeTransport, event, listID string) {
	payload, _ := json.Marshal(map[string]string{"listId": listID})
	frame, _ := json.Marshal(protocol.Message{Event: event, Payload: payload})
	h.router.HandleMessage(context.Background(), ft.id, frame)
}

func TestJoinGranted(t *testing.T) {
	h := newHarness(&fakeStore{owners: map[string]string{"L": "alice"}})
	conn := h.connect(t, "alice")

	h.send(conn, protocol.EventJoinListRoom, "L")

	msg := conn.lastMessage(t)
	assert.Equal(t, protocol.EventListRoomJoined, msg.Event)

	var payload protocol.RoomJoinedPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "L", payload.ListID)
	assert.Equal(t, "list-L", payload.RoomName)
	assert.Equal(t, 1, payload.MemberCount)
	assert.True(t, h.tracker.Exists("L"))
}

func TestJoinDeniedWithoutAccess(t *testing.T) {
	h := newHarness(&fakeStore{owners: map[string]string{"L": "alice"}})
	conn := h.connect(t, "mallory")

	h.send(conn, protocol.EventJoinListRoom, "L")

	msg := conn.lastMessage(t)
	assert.Equal(t, protocol.EventError, msg.Event)

	var payload protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Contains(t, payload.Message, "Access denied")
	assert.Equal(t, "L", payload.ListID)
	assert.False(t, h.tracker.Exists("L"), "denied join must not create the room")
}

func TestJoinRequiresIdentity(t *testing.T) {
	h := newHarness(&fakeStore{owners: map[string]string{"L": "alice"}})
	conn := h.connect(t, "") // registered but never identified

	h.send(conn, protocol.EventJoinListRoom, "L")

	msg := conn.lastMessage(t)
	assert.Equal(t, protocol.EventError, msg.Event)

	var payload protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "Authentication required", payload.Message)
	assert.False(t, h.tracker.Exists("L"))
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	h := newHarness(&fakeStore{owners: map[string]string{"L1": "alice"}})
	conn := h.connect(t, "alice")
	h.send(conn, protocol.EventJoinListRoom, "L1")
	require.True(t, h.tracker.Exists("L1"))

	h.send(conn, protocol.EventLeaveListRoom, "L1")

	msg := conn.lastMessage(t)
	assert.Equal(t, protocol.EventListRoomLeft, msg.Event)
	assert.False(t, h.tracker.Exists("L1"), "room entry must be gone once its last member leaves")
}

func TestLeaveWithoutJoinStillConfirms(t *testing.T) {
	h := newHarness(&fakeStore{owners: map[string]string{"L": "alice"}})
	conn := h.connect(t, "alice")

	h.send(conn, protocol.EventLeaveListRoom, "L")

	msg := conn.lastMessage(t)
	assert.Equal(t, protocol.EventListRoomLeft, msg.Event)
}

func TestGetRoomMembers(t *testing.T) {
	st := &fakeStore{
		owners: map[string]string{"L": "alice"},
		shares: map[string]map[string]permission.Level{"L": {"bob": permission.LevelViewer}},
	}
	h := newHarness(st)
	alice := h.connect(t, "alice")
	bob := h.connect(t, "bob")
	h.send(alice, protocol.EventJoinListRoom, "L")
	h.send(bob, protocol.EventJoinListRoom, "L")

	h.send(bob, protocol.EventGetRoomMembers, "L")

	msg := bob.lastMessage(t)
	assert.Equal(t, protocol.EventRoomMembers, msg.Event)

	var payload protocol.RoomMembersPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, 2, payload.MemberCount)
	ids := []string{payload.Members[0].UserID, payload.Members[1].UserID}
	assert.ElementsMatch(t, []string{"alice", "bob"}, ids)
}

func TestGetRoomMembersDeniedWithoutAccess(t *testing.T) {
	h := newHarness(&fakeStore{owners: map[string]string{"L": "alice"}})
	mallory := h.connect(t, "mallory")

	h.send(mallory, protocol.EventGetRoomMembers, "L")

	msg := mallory.lastMessage(t)
	assert.Equal(t, protocol.EventError, msg.Event)
}

func TestUnknownEvent(t *testing.T) {
	h := newHarness(&fakeStore{})
	conn := h.connect(t, "alice")

	h.send(conn, "self-destruct", "L")

	msg := conn.lastMessage(t)
	assert.Equal(t, protocol.EventError, msg.Event)
}

func TestOnDisconnectSweepsRoomsAndRegistry(t *testing.T) {
	h := newHarness(&fakeStore{owners: map[string]string{"L1": "alice", "L2": "alice"}})
	conn := h.connect(t, "alice")
	h.send(conn, protocol.EventJoinListRoom, "L1")
	h.send(conn, protocol.EventJoinListRoom, "L2")

	h.router.OnDisconnect(conn.id)

	assert.False(t, h.tracker.Exists("L1"))
	assert.False(t, h.tracker.Exists("L2"))
	assert.False(t, h.reg.Alive(conn.id))
}

func TestRejoinIsIdempotent(t *testing.T) {
	h := newHarness(&fakeStore{owners: map[string]string{"L": "alice"}})
	conn := h.connect(t, "alice")

	h.send(conn, protocol.EventJoinListRoom, "L")
	h.send(conn, protocol.EventJoinListRoom, "L")

	var payload protocol.RoomJoinedPayload
	require.NoError(t, json.Unmarshal(conn.lastMessage(t).Payload, &payload))
	assert.Equal(t, 1, payload.MemberCount, "rejoining must not double-count the member")
}
