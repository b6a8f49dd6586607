package enums

import "fmt"

// MessageType tags messages exchanged between the foreground and the background worker.
type MessageType string

const (
	MessageShowSyncNotification MessageType = "SHOW_SYNC_NOTIFICATION"
	MessageCloseNotification    MessageType = "CLOSE_NOTIFICATION"
	MessageNotificationAction   MessageType = "NOTIFICATION_ACTION"
	MessageStaleOperations      MessageType = "STALE_OPERATIONS"
	MessageSyncResult           MessageType = "SYNC_RESULT"
)

var validMessageTypes = []MessageType{
	MessageShowSyncNotification,
	MessageCloseNotification,
	MessageNotificationAction,
	MessageStaleOperations,
	MessageSyncResult,
}

// IsValid checks whether the given type matches a known message.
func (m MessageType) IsValid() bool {
	for _, candidate := range validMessageTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMessageType converts raw strings into MessageType.
func ParseMessageType(value string) (MessageType, error) {
	for _, candidate := range validMessageTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid message type %q", value)
}

// NotificationAction is a button the user can press on a notification.
type NotificationAction string

const (
	NotificationActionSync  NotificationAction = "sync"
	NotificationActionRetry NotificationAction = "retry"
	NotificationActionView  NotificationAction = "view"
)

var validNotificationActions = []NotificationAction{
	NotificationActionSync,
	NotificationActionRetry,
	NotificationActionView,
}

// IsValid checks whether the given action is known.
func (a NotificationAction) IsValid() bool {
	for _, candidate := range validNotificationActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// RequestsDrain reports whether the action asks the foreground to sync.
func (a NotificationAction) RequestsDrain() bool {
	return a == NotificationActionSync || a == NotificationActionRetry
}

// ParseNotificationAction converts raw strings into NotificationAction.
func ParseNotificationAction(value string) (NotificationAction, error) {
	for _, candidate := range validNotificationActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification action %q", value)
}
