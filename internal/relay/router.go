package relay

import (
	"fmt"

	"go.uber.org/zap"

	"chatrelay/internal/registry"
	"chatrelay/pkg/protocol"
)

// Router decides delivery for commands from authenticated sessions:
// broadcast to all, direct to one, or session termination. It also
// emits presence notifications when the roster changes.
type Router struct {
	registry *registry.Registry
	log      *zap.Logger
}

// NewRouter creates a router over the given registry.
func NewRouter(reg *registry.Registry, log *zap.Logger) *Router {
	return &Router{
		registry: reg,
		log:      log,
	}
}

// Route handles one command from an authenticated session and reports
// whether the session should terminate. Delivery failures to the
// sender are swallowed like any other recipient's; the sender's own
// receive loop notices a dead connection soon enough.
func (r *Router) Route(from string, cmd protocol.Command, sender registry.Sink) (terminate bool) {
	switch cmd.Command {
	case protocol.CommandPublic:
		// The sender is not excluded from its own broadcasts.
		r.Broadcast(protocol.BroadcastEvent(from, cmd.Message), "")
		return false

	case protocol.CommandDirect:
		target, ok := r.registry.Get(cmd.To)
		if !ok {
			r.deliver(cmd.To, sender, protocol.ErrorEvent(fmt.Sprintf("User %s not found.", cmd.To)))
			return false
		}
		r.deliver(cmd.To, target, protocol.DirectEvent(from, cmd.Message))
		r.deliver(from, sender, protocol.StatusEvent(fmt.Sprintf("DM sent to %s.", cmd.To)))
		return false

	case protocol.CommandExit:
		r.deliver(from, sender, protocol.StatusEvent("Exiting chat..."))
		return true

	default:
		r.deliver(from, sender, protocol.ErrorEvent(fmt.Sprintf("Unknown command %q.", cmd.Command)))
		return false
	}
}

// Broadcast delivers one event to every registered session except the
// named one (empty excludes nobody). A failed delivery never aborts
// the rest of the fan-out.
func (r *Router) Broadcast(event protocol.Event, exclude string) {
	for _, entry := range r.registry.Snapshot() {
		if entry.Username == exclude {
			continue
		}
		r.deliver(entry.Username, entry.Sink, event)
	}
}

// AnnounceJoin broadcasts a join notice and the updated roster.
func (r *Router) AnnounceJoin(username string) {
	r.Broadcast(protocol.StatusEvent(fmt.Sprintf("%s has joined the chat.", username)), "")
	r.BroadcastRoster()
}

// AnnounceLeave broadcasts a leave notice and the updated roster.
func (r *Router) AnnounceLeave(username string) {
	r.Broadcast(protocol.StatusEvent(fmt.Sprintf("%s has left the chat.", username)), "")
	r.BroadcastRoster()
}

// BroadcastRoster sends the current user list to everyone.
func (r *Router) BroadcastRoster() {
	r.Broadcast(protocol.UserListEvent(r.registry.Usernames()), "")
}

// deliver writes one event to one sink, swallowing the error. The peer
// may have disconnected between snapshot and write; its own session
// handles the cleanup.
func (r *Router) deliver(username string, sink registry.Sink, event protocol.Event) {
	if err := sink.Send(event); err != nil {
		r.log.Debug("delivery failed",
			zap.String("user", username),
			zap.String("event", event.Type),
			zap.Error(err))
	}
}
