package notification

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNormalizeSeverityFallsBackToInfo(t *testing.T) {
	cases := map[string]Severity{
		"error":    SeverityError,
		" Warning": SeverityWarning,
		"success":  SeveritySuccess,
		"info":     SeverityInfo,
		"critical": SeverityInfo,
		"":         SeverityInfo,
	}
	for in, want := range cases {
		if got := NormalizeSeverity(in); got != want {
			t.Fatalf("NormalizeSeverity(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeKindFallsBackToGeneral(t *testing.T) {
	if NormalizeKind("task_progress") != KindTaskProgress {
		t.Fatal("known kind changed")
	}
	if NormalizeKind("calendar_event") != KindGeneral {
		t.Fatal("unknown kind should be general")
	}
}

func TestNotificationEnvelopeWireShape(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 30, 0, 0, time.FixedZone("X", 3600))
	p := NewPayload(KindTaskAssigned, "Task Assigned", "You have a new task", "loud").WithTask(42)

	b, err := Marshal(NotificationEnvelope(p, at))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if m["type"] != "notification" || m["kind"] != "task_assigned" {
		t.Fatalf("discriminators wrong: %v", m)
	}
	if m["severity"] != "info" {
		t.Fatalf("severity should be normalised, got %v", m["severity"])
	}
	if m["taskId"] != float64(42) {
		t.Fatalf("taskId: %v", m["taskId"])
	}
	if m["timestamp"] != "2026-03-01T07:30:00Z" {
		t.Fatalf("timestamp: %v", m["timestamp"])
	}
	if _, ok := m["userId"]; ok {
		t.Fatal("userId must be omitted from notifications")
	}
}

func TestDecode(t *testing.T) {
	e, err := Decode([]byte(`{"type":"auth","userId":"u1"}`))
	if err != nil || e.Type != TypeAuth || e.UserID != "u1" {
		t.Fatalf("decode auth: %+v %v", e, err)
	}
	if _, err := Decode([]byte(`{not json`)); err == nil {
		t.Fatal("expected syntax error")
	}
	if _, err := Decode([]byte(`{"userId":"u1"}`)); err != ErrMissingType {
		t.Fatalf("expected ErrMissingType, got %v", err)
	}
}
