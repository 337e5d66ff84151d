package protocol

// Client-to-server command discriminants.
const (
	CommandLogin  = "login"
	CommandPublic = "pm"
	CommandDirect = "dm"
	CommandExit   = "ex"
)

// Server-to-client event discriminants.
const (
	EventStatus    = "status"
	EventError     = "error"
	EventBroadcast = "broadcast"
	EventDirect    = "direct"
	EventUserList  = "user_list"
)

// Command is a client-to-server message. The Command field selects the
// operation; the remaining fields are populated per operation.
type Command struct {
	Command  string `json:"command"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	To       string `json:"to,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Event is a server-to-client message. Every event carries a Type
// discriminant; Users is only set for user_list events.
type Event struct {
	Type    string   `json:"type"`
	From    string   `json:"from,omitempty"`
	Message string   `json:"message,omitempty"`
	Users   []string `json:"users,omitempty"`
}

// Validate checks that the required fields for the command are present.
// Unknown command names are not an error here; the session decides how
// to react to those.
func (c *Command) Validate() error {
	switch c.Command {
	case CommandLogin:
		if c.Username == "" {
			return ErrMissingUsername
		}
		if c.Password == "" {
			return ErrMissingPassword
		}
	case CommandDirect:
		if c.To == "" {
			return ErrMissingRecipient
		}
	}
	return nil
}

// StatusEvent builds an informational event.
func StatusEvent(message string) Event {
	return Event{Type: EventStatus, Message: message}
}

// ErrorEvent builds a recoverable-failure notice.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

// BroadcastEvent builds a public chat line.
func BroadcastEvent(from, message string) Event {
	return Event{Type: EventBroadcast, From: from, Message: message}
}

// DirectEvent builds a private chat line.
func DirectEvent(from, message string) Event {
	return Event{Type: EventDirect, From: from, Message: message}
}

// UserListEvent builds a full roster snapshot.
func UserListEvent(users []string) Event {
	return Event{Type: EventUserList, Users: users}
}
