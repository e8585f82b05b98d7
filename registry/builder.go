package registry

// Builder assembles a Declaration. Hub starts the hub-level part and On /
// Handle add the per-handler subscriptions:
//
//	func (c *ChatService) HubDeclaration() registry.Declaration {
//		return registry.Hub("chatHub").
//			Handle("MessageReceived").
//			On("userJoined", "OnUserJoined").
//			Declaration()
//	}
type Builder struct {
	decl Declaration
}

// Hub starts a declaration for the named hub in the given groups.
func Hub(name string, groups ...string) *Builder {
	return &Builder{
		decl: Declaration{
			HubName: name,
			Groups:  NewGroups(groups...),
		},
	}
}

// On subscribes handler to event.
func (b *Builder) On(event, handler string) *Builder {
	if event == "" {
		event = handler
	}
	b.decl.Subscriptions = append(b.decl.Subscriptions, Subscription{Event: event, Handler: handler})
	return b
}

// Handle subscribes handler to the event of the same name.
func (b *Builder) Handle(handler string) *Builder {
	return b.On(handler, handler)
}

// Declaration returns the assembled declaration with duplicate
// subscriptions collapsed.
func (b *Builder) Declaration() Declaration {
	return Declaration{HubName: b.decl.HubName, Groups: b.decl.Groups}.merge(b.decl)
}
