package mq

import "time"

// NotificationCreatedPayload 通知落库后经 outbox 发布，供推送渠道消费
type NotificationCreatedPayload struct {
	NotificationID string    `json:"notification_id"`
	OrgID          string    `json:"org_id"`
	UserID         string    `json:"user_id"`
	TaskID         string    `json:"task_id,omitempty"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
	TraceID        string    `json:"trace_id,omitempty"`
}
