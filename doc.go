// Package hubconn keeps one persistent connection to a real-time hub server,
// multiplexes named hubs over it and fans inbound hub events out to
// registered subscribers.
//
// Subscribers describe themselves with a registry.Declaration:
//
//	type ChatService struct{}
//
//	func (s *ChatService) HubDeclaration() registry.Declaration {
//		return registry.Hub("chatHub").Handle("MessageReceived").Declaration()
//	}
//
//	func (s *ChatService) MessageReceived(user, text string) {}
//
// A Connection builds one hub proxy per declaration at its first Connect and
// binds registered subscribers to it. Calls made through Invoke wait out a
// running reconnect instead of failing.
package hubconn
