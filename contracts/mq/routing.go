package mq

// Routing keys on the "events" topic exchange.
const (
	RoutingSyncRequested       = "pam.sync.requested"
	RoutingSyncCompleted       = "pam.sync.completed"
	RoutingNotificationCreated = "notification.created"
)
