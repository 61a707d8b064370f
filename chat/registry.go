package chat

import "context"

// Request is what a command handler receives. Args[0] is the sender's nick and
// Args[1:] are the tokens following the command name.
type Request struct {
	Args  []string
	Event ChatEvent
}

// Nick returns the sender nickname (Args[0]).
func (r Request) Nick() string {
	if len(r.Args) == 0 {
		return ""
	}
	return r.Args[0]
}

// Params returns the tokens after the command name.
func (r Request) Params() []string {
	if len(r.Args) < 2 {
		return nil
	}
	return r.Args[1:]
}

// Handler runs a command. Handlers reply through the mailbox and queues; they have no return value.
type Handler func(ctx context.Context, req Request)

// Command is a registered chat command with its authorization rule.
type Command struct {
	Name           string
	Handler        Handler
	RequiredBadges []string // empty: public
	NoBadgesOnly   bool
}

// Authorizes applies the command's badge rule to a sender's badge set.
func (c *Command) Authorizes(badges []string) bool {
	if c.NoBadgesOnly {
		return len(badges) == 0
	}
	if len(c.RequiredBadges) == 0 {
		return true
	}
	return ChatEvent{Badges: badges}.HasAnyBadge(c.RequiredBadges)
}

// Registry is the ordered command table. It is filled at startup and read-only afterwards.
type Registry struct {
	commands     []Command
	experimental bool
}

// NewRegistry returns an empty registry. In experimental mode every command is also
// reachable under a "_" prefixed alias.
func NewRegistry(experimental bool) *Registry {
	return &Registry{experimental: experimental}
}

// Register appends a command. Duplicate names are allowed; Lookup returns the first.
func (r *Registry) Register(name string, h Handler, requiredBadges []string, noBadgesOnly bool) {
	r.commands = append(r.commands, Command{Name: name, Handler: h, RequiredBadges: requiredBadges, NoBadgesOnly: noBadgesOnly})
	if r.experimental {
		r.commands = append(r.commands, Command{Name: "_" + name, Handler: h, RequiredBadges: requiredBadges, NoBadgesOnly: noBadgesOnly})
	}
}

// Lookup finds the first command registered under name.
func (r *Registry) Lookup(name string) (*Command, bool) {
	for i := range r.commands {
		if r.commands[i].Name == name {
			return &r.commands[i], true
		}
	}
	return nil, false
}

// Names lists command names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c.Name)
	}
	return out
}

func (r *Registry) Len() int { return len(r.commands) }
