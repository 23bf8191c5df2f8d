package domain

// Job names understood by the notification worker.
const (
	JobSendTaskNotification    = "send_task_notification"
	JobSendCommentNotification = "send_comment_notification"
)

// NotificationArgs is the payload of both notification jobs.
type NotificationArgs struct {
	ID int64 `json:"id"`
}
