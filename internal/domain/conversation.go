package domain

// Message is one entry of a conversation history (user or assistant).
// Once appended it is never modified.
type Message struct {
	ID             MessageID      `json:"id"`
	ConversationID ConversationID `json:"conversation_id"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	CreatedAt      Timestamp      `json:"timestamp"`
}
