package service

import (
	"context"
	"fmt"
	"strings"

	"EduTask/internal/modules/notification/domain/notification"
)

// Notifier 业务处理器依赖的唯一推送入口
type Notifier interface {
	SendToUsers(ctx context.Context, identities []string, p notification.Payload) Result
}

// TaskRef 事件中引用的任务
type TaskRef struct {
	ID    int64
	Title string
}

const commentExcerptRunes = 120

// EventService 把任务领域事件转换为通知；触发者本人不会收到自己的通知
type EventService struct {
	n Notifier
}

func NewEventService(n Notifier) *EventService {
	return &EventService{n: n}
}

func (s *EventService) TaskAssigned(ctx context.Context, actorID string, task TaskRef, assigneeIDs []string) Result {
	p := notification.NewPayload(notification.KindTaskAssigned, "Task Assigned",
		fmt.Sprintf("You have been assigned to %q", task.Title),
		notification.SeverityInfo).WithTask(task.ID)
	return s.n.SendToUsers(ctx, exclude(assigneeIDs, actorID), p)
}

func (s *EventService) TaskStatusChanged(ctx context.Context, actorID string, task TaskRef, from, to string, watcherIDs []string) Result {
	p := notification.NewPayload(notification.KindTaskUpdated, "Task Status Updated",
		fmt.Sprintf("%q moved from %s to %s", task.Title, humanize(from), humanize(to)),
		statusSeverity(to)).WithTask(task.ID)
	return s.n.SendToUsers(ctx, exclude(watcherIDs, actorID), p)
}

func (s *EventService) TaskProgressUpdated(ctx context.Context, actorID string, task TaskRef, percent int, watcherIDs []string) Result {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	severity := notification.SeverityInfo
	if percent == 100 {
		severity = notification.SeveritySuccess
	}
	p := notification.NewPayload(notification.KindTaskProgress, "Progress Updated",
		fmt.Sprintf("%q is now %d%% complete", task.Title, percent),
		severity).WithTask(task.ID)
	return s.n.SendToUsers(ctx, exclude(watcherIDs, actorID), p)
}

func (s *EventService) TaskCommented(ctx context.Context, actorID, actorName string, task TaskRef, comment string, watcherIDs []string) Result {
	if actorName == "" {
		actorName = "Someone"
	}
	p := notification.NewPayload(notification.KindTaskComment, "New Comment",
		fmt.Sprintf("%s commented on %q: %s", actorName, task.Title, excerpt(comment, commentExcerptRunes)),
		notification.SeverityInfo).WithTask(task.ID)
	return s.n.SendToUsers(ctx, exclude(watcherIDs, actorID), p)
}

// General 与任务无关的提醒，例如日历或报表生成完成
func (s *EventService) General(ctx context.Context, identities []string, title, message string, severity notification.Severity) Result {
	p := notification.NewPayload(notification.KindGeneral, title, message, severity)
	return s.n.SendToUsers(ctx, identities, p)
}

func statusSeverity(status string) notification.Severity {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "done":
		return notification.SeveritySuccess
	case "overdue", "blocked":
		return notification.SeverityWarning
	case "cancelled", "rejected":
		return notification.SeverityError
	default:
		return notification.SeverityInfo
	}
}

func humanize(status string) string {
	s := strings.TrimSpace(status)
	if s == "" {
		return "unknown"
	}
	return strings.ReplaceAll(s, "_", " ")
}

func excerpt(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}

func exclude(ids []string, actor string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != actor {
			out = append(out, id)
		}
	}
	return out
}
