package service

import (
	"context"
	"strings"
	"testing"

	"EduTask/internal/modules/notification/domain/notification"
)

type captureNotifier struct {
	targets  []string
	payloads []notification.Payload
}

func (c *captureNotifier) SendToUsers(_ context.Context, ids []string, p notification.Payload) Result {
	c.targets = ids
	c.payloads = append(c.payloads, p)
	return Result{Targets: len(ids)}
}

func TestTaskAssignedExcludesActor(t *testing.T) {
	n := &captureNotifier{}
	s := NewEventService(n)

	s.TaskAssigned(context.Background(), "teacher1", TaskRef{ID: 12, Title: "Lab report"}, []string{"teacher1", "s1", "s2"})

	if strings.Join(n.targets, ",") != "s1,s2" {
		t.Fatalf("targets %v", n.targets)
	}
	p := n.payloads[0]
	if p.Kind != notification.KindTaskAssigned || p.Severity != notification.SeverityInfo || *p.TaskID != 12 {
		t.Fatalf("payload %+v", p)
	}
	if !strings.Contains(p.Message, `"Lab report"`) {
		t.Fatalf("message %q", p.Message)
	}
}

func TestTaskStatusSeverity(t *testing.T) {
	cases := []struct {
		to   string
		want notification.Severity
	}{
		{"completed", notification.SeveritySuccess},
		{"overdue", notification.SeverityWarning},
		{"cancelled", notification.SeverityError},
		{"in_progress", notification.SeverityInfo},
	}
	for _, tc := range cases {
		n := &captureNotifier{}
		NewEventService(n).TaskStatusChanged(context.Background(), "a", TaskRef{ID: 1, Title: "Essay"}, "pending", tc.to, []string{"b"})
		p := n.payloads[0]
		if p.Severity != tc.want || p.Kind != notification.KindTaskUpdated {
			t.Fatalf("%s: payload %+v", tc.to, p)
		}
	}

	n := &captureNotifier{}
	NewEventService(n).TaskStatusChanged(context.Background(), "a", TaskRef{Title: "Essay"}, "in_progress", "", []string{"b"})
	if got := n.payloads[0].Message; got != `"Essay" moved from in progress to unknown` {
		t.Fatalf("message %q", got)
	}
}

func TestTaskProgressClampsAndMarksCompletion(t *testing.T) {
	n := &captureNotifier{}
	s := NewEventService(n)

	s.TaskProgressUpdated(context.Background(), "a", TaskRef{ID: 2, Title: "Project"}, 140, []string{"b"})
	s.TaskProgressUpdated(context.Background(), "a", TaskRef{ID: 2, Title: "Project"}, 40, []string{"b"})

	if n.payloads[0].Severity != notification.SeveritySuccess || !strings.Contains(n.payloads[0].Message, "100% complete") {
		t.Fatalf("first %+v", n.payloads[0])
	}
	if n.payloads[1].Severity != notification.SeverityInfo || !strings.Contains(n.payloads[1].Message, "40% complete") {
		t.Fatalf("second %+v", n.payloads[1])
	}
}

func TestTaskCommentedTruncatesExcerpt(t *testing.T) {
	n := &captureNotifier{}
	long := strings.Repeat("word ", 60)
	NewEventService(n).TaskCommented(context.Background(), "a", "", TaskRef{ID: 5, Title: "Quiz"}, long, []string{"a", "b"})

	p := n.payloads[0]
	if p.Kind != notification.KindTaskComment || len(n.targets) != 1 {
		t.Fatalf("payload %+v targets %v", p, n.targets)
	}
	if !strings.HasPrefix(p.Message, `Someone commented on "Quiz": `) || !strings.HasSuffix(p.Message, "…") {
		t.Fatalf("message %q", p.Message)
	}
}

func TestGeneralNormalisesSeverity(t *testing.T) {
	n := &captureNotifier{}
	NewEventService(n).General(context.Background(), []string{"u1"}, "Report ready", "Term report generated", "fatal")
	if p := n.payloads[0]; p.Kind != notification.KindGeneral || p.Severity != notification.SeverityInfo || p.TaskID != nil {
		t.Fatalf("payload %+v", p)
	}
}
