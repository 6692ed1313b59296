package table

import (
	"github.com/mcdev12/poolhall/go/internal/table/events"
)

// SendChat relays a participant message after the rate limit and content checks
func (t *Table) SendChat(key, id, content string) error {
	s, err := t.sessions.Authorize(key, id)
	if err != nil {
		return err
	}

	now := t.now()
	if err := t.relay.CheckRate(s.LastChat, now); err != nil {
		return err
	}
	text, err := t.relay.Validate(content)
	if err != nil {
		return err
	}

	s.LastChat = now
	s.LastSeen = now
	t.relay.Post(events.ChatKindParticipant, s.ID, text, now)
	return nil
}

// ChatHistory returns a snapshot of the chat history
func (t *Table) ChatHistory() []events.ChatMessage {
	return t.relay.History()
}
