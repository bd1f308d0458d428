package mq

import "time"

// SyncRequestedPayload 外部系统请求同步某个组织的任务表
type SyncRequestedPayload struct {
	RequestID string `json:"request_id"`
	OrgID     string `json:"org_id"`
	Force     bool   `json:"force"`
	TraceID   string `json:"trace_id,omitempty"`
}

// SyncCompletedPayload 每次同步结束后发布（包括失败）
type SyncCompletedPayload struct {
	OrgID        string    `json:"org_id"`
	Trigger      string    `json:"trigger"`
	Outcome      string    `json:"outcome"`
	Success      bool      `json:"success"`
	TasksCreated int       `json:"tasks_created"`
	Periods      []string  `json:"periods,omitempty"`
	Errors       []string  `json:"errors,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
	TraceID      string    `json:"trace_id,omitempty"`
}
