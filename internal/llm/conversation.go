package llm

import openai "github.com/sashabaranov/go-openai"

// Role of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a completion conversation.
type Turn struct {
	Role    Role
	Content string
}

// Conversation is an ordered, append-only sequence of turns. Retrying
// callers grow the same conversation with corrective instructions instead
// of restarting it, so each attempt sees the full failure history.
type Conversation struct {
	turns []Turn
}

// NewConversation starts a conversation with a system and a user turn.
func NewConversation(system, user string) *Conversation {
	return &Conversation{turns: []Turn{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}}
}

// AddUser appends a user turn.
func (c *Conversation) AddUser(content string) {
	c.turns = append(c.turns, Turn{Role: RoleUser, Content: content})
}

// Turns returns a copy of the conversation so far.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len reports the number of turns.
func (c *Conversation) Len() int { return len(c.turns) }

func (c *Conversation) chatMessages() []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(c.turns))
	for _, t := range c.turns {
		role := openai.ChatMessageRoleUser
		switch t.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	return msgs
}
