package store

import (
	"fmt"

	"github.com/google/uuid"
)

// Logical key layout, shared by the cache-backed engine and the cache-aside
// projections in front of the document engine.

func userKey(externalID string) string {
	return fmt.Sprintf("user:%s", externalID)
}

func conversationKey(userID, conversationID uuid.UUID) string {
	return fmt.Sprintf("conversation:%s:%s", userID, conversationID)
}

func conversationPrefix(userID uuid.UUID) string {
	return fmt.Sprintf("conversation:%s:", userID)
}

func conversationListKey(userID uuid.UUID) string {
	return fmt.Sprintf("conversation-list:%s", userID)
}

func messageKey(conversationID, messageID uuid.UUID) string {
	return fmt.Sprintf("message:%s:%s", conversationID, messageID)
}

func messagePrefix(conversationID uuid.UUID) string {
	return fmt.Sprintf("message:%s:", conversationID)
}

func messageListKey(conversationID uuid.UUID) string {
	return fmt.Sprintf("message-list:%s", conversationID)
}

func usageKey(userID uuid.UUID) string {
	return fmt.Sprintf("usage:%s", userID)
}
