package notification

import (
	"encoding/json"
	"strings"
	"time"
)

// Kind 通知类别
type Kind string

const (
	KindTaskAssigned Kind = "task_assigned"
	KindTaskUpdated  Kind = "task_updated"
	KindTaskComment  Kind = "task_comment"
	KindTaskProgress Kind = "task_progress"
	KindGeneral      Kind = "general"
)

// NormalizeKind 未知类别归为 general
func NormalizeKind(k string) Kind {
	switch Kind(strings.TrimSpace(k)) {
	case KindTaskAssigned:
		return KindTaskAssigned
	case KindTaskUpdated:
		return KindTaskUpdated
	case KindTaskComment:
		return KindTaskComment
	case KindTaskProgress:
		return KindTaskProgress
	default:
		return KindGeneral
	}
}

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// NormalizeSeverity 接收方对未知级别按 info 处理，不拒绝
func NormalizeSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeveritySuccess:
		return SeveritySuccess
	case SeverityWarning:
		return SeverityWarning
	case SeverityError:
		return SeverityError
	default:
		return SeverityInfo
	}
}

// Payload 由业务处理器在领域事件完成时构造，构造后不再修改
type Payload struct {
	Kind     Kind
	Title    string
	Message  string
	Severity Severity
	TaskID   *int64
}

func NewPayload(kind Kind, title, message string, severity Severity) Payload {
	return Payload{
		Kind:     NormalizeKind(string(kind)),
		Title:    title,
		Message:  message,
		Severity: NormalizeSeverity(string(severity)),
	}
}

// WithTask 返回带任务 ID 的副本
func (p Payload) WithTask(taskID int64) Payload {
	id := taskID
	p.TaskID = &id
	return p
}

// 信封类型
const (
	TypeAuth         = "auth"
	TypeAuthSuccess  = "auth_success"
	TypeAuthError    = "auth_error"
	TypeNotification = "notification"
	TypePing         = "ping"
	TypePong         = "pong"
)

// Envelope 线上 JSON 消息。外层 type 区分消息种类，通知自身类别放在 kind。
type Envelope struct {
	Type      string   `json:"type"`
	UserID    string   `json:"userId,omitempty"`
	Kind      Kind     `json:"kind,omitempty"`
	Title     string   `json:"title,omitempty"`
	Message   string   `json:"message,omitempty"`
	Severity  Severity `json:"severity,omitempty"`
	TaskID    *int64   `json:"taskId,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// NotificationEnvelope 附上发送时间
func NotificationEnvelope(p Payload, at time.Time) Envelope {
	return Envelope{
		Type:      TypeNotification,
		Kind:      NormalizeKind(string(p.Kind)),
		Title:     p.Title,
		Message:   p.Message,
		Severity:  NormalizeSeverity(string(p.Severity)),
		TaskID:    p.TaskID,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
	}
}

// Payload 从通知信封还原，级别与类别按接收方规则归一
func (e Envelope) Payload() Payload {
	return Payload{
		Kind:     NormalizeKind(string(e.Kind)),
		Title:    e.Title,
		Message:  e.Message,
		Severity: NormalizeSeverity(string(e.Severity)),
		TaskID:   e.TaskID,
	}
}

// Time 解析时间戳，失败返回零值
func (e Envelope) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

func Marshal(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Decode 解析入站消息；type 为空视为格式错误
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, err
	}
	if e.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return e, nil
}
