package hub

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/planning-poker-backend/internal/archive"
	"github.com/DoyleJ11/planning-poker-backend/internal/room"
	"github.com/DoyleJ11/planning-poker-backend/internal/types"
	"github.com/DoyleJ11/planning-poker-backend/internal/view"
	api "github.com/DoyleJ11/planning-poker-backend/pkg/types"
)

type Msg interface{ isHubMsg() }

// Connect registers the outbox a connection wants its events delivered to.
type Connect struct {
	ConnID string
	Outbox chan types.ServerMessage
}

type Disconnect struct{ ConnID string }

// FromClient carries one raw inbound frame.
type FromClient struct {
	ConnID string
	Frame  []byte
}

type GetRoom struct {
	RoomID string
	Reply  chan *api.RoomInfo
}

// Stats is a point-in-time count of live rooms and registered connections.
type Stats struct {
	Rooms   int
	Clients int
}

type GetStats struct {
	Reply chan Stats
}

type timerFired struct{ fn func() }

func (Connect) isHubMsg()    {}
func (Disconnect) isHubMsg() {}
func (FromClient) isHubMsg() {}
func (GetRoom) isHubMsg()    {}
func (GetStats) isHubMsg()   {}
func (timerFired) isHubMsg() {}

type Archiver interface {
	Record(r archive.Round) bool
}

type Options struct {
	GracePeriod time.Duration
	Logger      *zap.Logger
	Archiver    Archiver
	// IDGenerator overrides room id generation.
	IDGenerator func() (string, error)
	NewEventID  func() string
}

// Hub owns the room store. Every intent, timer and query is handled on the
// loop goroutine, one at a time.
type Hub struct {
	inbox      chan Msg
	store      *room.Store
	clients    map[string]chan types.ServerMessage
	log        *zap.Logger
	archive    Archiver
	newEventID func() string
	now        func() time.Time
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:      make(chan Msg, 256),
		clients:    make(map[string]chan types.ServerMessage),
		log:        log.Named("hub"),
		archive:    opts.Archiver,
		newEventID: uuid.NewString,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	storeOpts := []room.Option{room.WithExpiryHook(h.onExpire)}
	if opts.GracePeriod > 0 {
		storeOpts = append(storeOpts, room.WithGracePeriod(opts.GracePeriod))
	}
	if opts.IDGenerator != nil {
		storeOpts = append(storeOpts, room.WithIDGenerator(opts.IDGenerator))
	}
	if opts.NewEventID != nil {
		h.newEventID = opts.NewEventID
	}
	h.store = room.NewStore(loopScheduler{h}, storeOpts...)

	go h.loop()
	return h
}

// Send posts m to the loop unless the hub has stopped.
func (h *Hub) Send(m Msg) bool {
	if h.ctx.Err() != nil {
		return false
	}
	select {
	case h.inbox <- m:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Stop ends the loop and waits until every outbox is closed.
func (h *Hub) Stop(ctx context.Context) error {
	h.cancel()
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loopScheduler turns grace-period timers into inbox messages so their
// callbacks run on the loop goroutine.
type loopScheduler struct{ h *Hub }

func (s loopScheduler) AfterFunc(d time.Duration, f func()) room.Timer {
	return time.AfterFunc(d, func() { s.h.Send(timerFired{fn: f}) })
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Connect:
				if old, ok := h.clients[msg.ConnID]; ok {
					close(old)
				}
				h.clients[msg.ConnID] = msg.Outbox
				h.log.Info("connected", zap.String("conn_id", msg.ConnID))

			case Disconnect:
				h.handleDisconnect(msg.ConnID)

			case FromClient:
				h.dispatch(msg.ConnID, msg.Frame)

			case timerFired:
				msg.fn()

			case GetRoom:
				msg.Reply <- h.roomInfo(msg.RoomID)

			case GetStats:
				msg.Reply <- Stats{Rooms: h.store.NumRooms(), Clients: len(h.clients)}
			}
		}
	}
}

func (h *Hub) shutdown() {
	for id, ch := range h.clients {
		close(ch)
		delete(h.clients, id)
	}
	h.log.Info("hub stopped")
}

func (h *Hub) handleDisconnect(connID string) {
	if ch, ok := h.clients[connID]; ok {
		close(ch)
		delete(h.clients, connID)
	}
	h.log.Info("disconnected", zap.String("conn_id", connID))
	if r, ok := h.store.HandleDisconnect(connID); ok {
		h.broadcastState(r)
	}
}

func (h *Hub) onExpire(roomID string, removed *room.Participant) {
	h.log.Info("grace period expired",
		zap.String("room_id", roomID),
		zap.String("conn_id", removed.ID),
		zap.String("name", removed.Name))
	if r, ok := h.store.Get(roomID); ok {
		h.broadcastState(r)
		return
	}
	h.log.Info("room closed", zap.String("room_id", roomID))
}

func (h *Hub) roomInfo(roomID string) *api.RoomInfo {
	r, ok := h.store.Get(normalizeRoomID(roomID))
	if !ok {
		return nil
	}
	return &api.RoomInfo{
		ID:           r.ID,
		Name:         r.Name,
		CardSetType:  string(r.CardSetType),
		Participants: len(r.Participants),
	}
}

// send queues one event for connID. A full outbox means the client is not
// keeping up; it is dropped and its socket closes, which comes back to us as
// a Disconnect.
func (h *Hub) send(connID, typ string, data any) {
	ch, ok := h.clients[connID]
	if !ok {
		return
	}
	select {
	case ch <- types.ServerMessage{Type: typ, Data: data}:
	default:
		close(ch)
		delete(h.clients, connID)
		h.log.Warn("dropping slow client", zap.String("conn_id", connID))
	}
}

func (h *Hub) sendError(connID, message string) {
	h.send(connID, api.EventRoomError, api.RoomError{Message: message})
}

// broadcastState sends every member its own projection of r.
func (h *Hub) broadcastState(r *room.Room) {
	for _, p := range r.Members() {
		h.send(p.ID, api.EventRoomState, view.ToRoomView(r, p.ID))
	}
}

// broadcast sends the same event to every member of r. data must not be
// mutated afterwards.
func (h *Hub) broadcast(r *room.Room, typ string, data any) {
	for _, p := range r.Members() {
		h.send(p.ID, typ, data)
	}
}
