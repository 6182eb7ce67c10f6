// ABOUTME: Event-type handler table and the catch-and-ignore dispatch loop
// ABOUTME: One dispatcher per server session; intent guard keys are server-qualified

package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/chatsync/client"
	"github.com/2389/chatsync/coalesce"
	"github.com/2389/chatsync/ephemeral"
	"github.com/2389/chatsync/model"
	"github.com/2389/chatsync/reconcile"
	"github.com/2389/chatsync/store"
)

// Handler applies one event to local state. Returned errors are logged
// and discarded by the dispatcher.
type Handler func(ctx context.Context, ev *model.Event) error

// Dispatcher routes push events for one server session.
type Dispatcher struct {
	serverURL string
	store     *store.SQLiteStore
	client    *client.Client
	engine    *reconcile.Engine
	guard     *ephemeral.Guard
	statuses  *coalesce.Queue
	logger    *slog.Logger
	handlers  map[string]Handler

	// OnKickedFromChannel fires when an event removes the user from the
	// channel currently open in the UI.
	OnKickedFromChannel func(channelID string)

	statusDelay time.Duration
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithStatusDelay overrides the coalescing window for presence fetches.
// Zero keeps the default.
func WithStatusDelay(d time.Duration) Option {
	return func(dp *Dispatcher) {
		dp.statusDelay = d
	}
}

// NewDispatcher builds a dispatcher with the default handler table. The
// guard is process-wide and shared across servers; its keys are
// qualified by serverURL here.
func NewDispatcher(serverURL string, st *store.SQLiteStore, cl *client.Client, guard *ephemeral.Guard, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		serverURL: serverURL,
		store:     st,
		client:    cl,
		engine:    reconcile.NewEngine(st, cl),
		guard:     guard,
		logger:    slog.Default().With("component", "dispatch", "server", serverURL),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.statuses = coalesce.NewQueue(d.statusDelay, d.flushStatuses)

	d.handlers = map[string]Handler{
		model.EventPosted:               d.handlePosted,
		model.EventPostEdited:           d.handlePostEdited,
		model.EventPostDeleted:          d.handlePostDeleted,
		model.EventPostUnread:           d.handlePostUnread,
		model.EventChannelCreated:       d.handleChannelCreated,
		model.EventChannelUpdated:       d.handleChannelUpdated,
		model.EventChannelConverted:     d.handleChannelUpdated,
		model.EventChannelDeleted:       d.handleChannelDeleted,
		model.EventChannelUnarchived:    d.handleChannelUnarchived,
		model.EventChannelViewed:        d.handleChannelViewed,
		model.EventChannelMemberUpdated: d.handleChannelMemberUpdated,
		model.EventDirectAdded:          d.handleDirectAdded,
		model.EventGroupAdded:           d.handleDirectAdded,
		model.EventUserAdded:            d.handleUserAdded,
		model.EventUserRemoved:          d.handleUserRemoved,
		model.EventUserUpdated:          d.handleUserUpdated,
		model.EventStatusChanged:        d.handleStatusChanged,
		model.EventLeaveTeam:            d.handleLeaveTeam,
		model.EventUpdateTeam:           d.handleUpdateTeam,
		model.EventAddedToTeam:          d.handleAddedToTeam,
		model.EventDeleteTeam:           d.handleDeleteTeam,
		model.EventRestoreTeam:          d.handleUpdateTeam,
		model.EventPreferenceChanged:    d.handlePreferenceChanged,
		model.EventPreferencesChanged:   d.handlePreferencesChanged,
		model.EventPreferencesDeleted:   d.handlePreferencesDeleted,
		model.EventReactionAdded:        d.handleReactionAdded,
		model.EventReactionRemoved:      d.handleReactionRemoved,
		model.EventRoleUpdated:          d.handleRoleUpdated,
		model.EventUserRoleUpdated:      d.handleUserRoleUpdated,
		model.EventMemberRoleUpdated:    d.handleChannelMemberUpdated,
		model.EventThreadUpdated:        d.handleThreadUpdated,
		model.EventThreadReadChanged:    d.handleThreadReadChanged,
		model.EventThreadFollowChanged:  d.handleThreadFollowChanged,
		model.EventConfigChanged:        d.handleConfigChanged,
		model.EventLicenseChanged:       d.handleLicenseChanged,
	}
	return d
}

// Register installs or replaces the handler for an event type.
func (d *Dispatcher) Register(eventType string, h Handler) {
	d.handlers[eventType] = h
}

// Dispatch routes one event. Unknown types are ignored; handler errors
// are logged, never propagated.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *model.Event) {
	h, ok := d.handlers[ev.Type]
	if !ok {
		return
	}
	if err := h(ctx, ev); err != nil {
		d.logger.Debug("event handler failed", "type", ev.Type, "error", err)
	}
}

// Close releases the dispatcher's background resources.
func (d *Dispatcher) Close() {
	d.statuses.Stop()
}

// commit batches the prepared ops and writes them atomically. Nil ops
// drop out; an all-nil set commits nothing.
func (d *Dispatcher) commit(ctx context.Context, ops ...*store.Op) error {
	batch := store.NewBatch()
	batch.Add(ops...)
	return d.store.Commit(ctx, batch)
}

// qualify prefixes an entity id with the server URL so guard marks never
// leak across servers.
func (d *Dispatcher) qualify(entityID string) string {
	return d.serverURL + "\x00" + entityID
}

// MarkIntent brackets a client-initiated action: mark before the REST
// call, and the echoed event consumes the mark.
func (d *Dispatcher) MarkIntent(entityID, action string) {
	d.guard.Mark(d.qualify(entityID), action)
}

// ClearIntent drops a mark after the originating action completes or
// fails, without waiting for the echo.
func (d *Dispatcher) ClearIntent(entityID, action string) {
	d.guard.Consume(d.qualify(entityID), action)
}

// selfEcho reports and consumes a pending intent mark for the entity.
func (d *Dispatcher) selfEcho(entityID, action string) bool {
	return d.guard.Consume(d.qualify(entityID), action)
}

// flushStatuses is the coalesced presence fetch: one remote call per
// burst of status events.
func (d *Dispatcher) flushStatuses(ids []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statuses, err := d.client.GetStatusesByIDs(ctx, ids)
	if err != nil {
		d.logger.Debug("coalesced status fetch failed", "count", len(ids), "error", err)
		return
	}
	if err := d.commit(ctx, d.engine.PlanStatuses(statuses)...); err != nil {
		d.logger.Debug("committing statuses", "error", err)
	}
}

// eventChannelID resolves a channel id from data or broadcast.
func eventChannelID(ev *model.Event) string {
	if id := ev.DataString("channel_id"); id != "" {
		return id
	}
	return ev.Broadcast.ChannelID
}

// eventTeamID resolves a team id from data or broadcast.
func eventTeamID(ev *model.Event) string {
	if id := ev.DataString("team_id"); id != "" {
		return id
	}
	return ev.Broadcast.TeamID
}

// eventUserID resolves a user id from data or broadcast.
func eventUserID(ev *model.Event) string {
	if id := ev.DataString("user_id"); id != "" {
		return id
	}
	return ev.Broadcast.UserID
}
