package ai

// ConversationState is the message history of one multi-round extraction.
// It is a value: every append returns a new state and never mutates the
// receiver, so a state can be shared between goroutines and retried calls.
type ConversationState struct {
	messages []ChatMessage
}

// NewConversation starts a history with the initial user prompt.
func NewConversation(prompt string) ConversationState {
	return ConversationState{messages: []ChatMessage{{Role: RoleUser, Message: prompt}}}
}

func (c ConversationState) with(role, message string) ConversationState {
	messages := make([]ChatMessage, len(c.messages), len(c.messages)+1)
	copy(messages, c.messages)
	messages = append(messages, ChatMessage{Role: role, Message: message})
	return ConversationState{messages: messages}
}

// WithUser returns a copy with a user turn appended.
func (c ConversationState) WithUser(message string) ConversationState {
	return c.with(RoleUser, message)
}

// WithAssistant returns a copy with an assistant turn appended.
func (c ConversationState) WithAssistant(message string) ConversationState {
	return c.with(RoleAssistant, message)
}

// Messages returns a copy of the history.
func (c ConversationState) Messages() []ChatMessage {
	out := make([]ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c ConversationState) Len() int {
	return len(c.messages)
}

// Last returns the most recent message, or a zero message for an empty
// history.
func (c ConversationState) Last() ChatMessage {
	if len(c.messages) == 0 {
		return ChatMessage{}
	}
	return c.messages[len(c.messages)-1]
}
