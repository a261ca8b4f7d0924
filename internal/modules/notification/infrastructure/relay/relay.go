package relay

import (
	"context"
	"encoding/json"
	"errors"
)

// Message 节点间转发的一次扇出。Envelope 已带时间戳，各节点原样下发。
type Message struct {
	Origin    string          `json:"origin"`
	Broadcast bool            `json:"broadcast,omitempty"`
	Targets   []string        `json:"targets,omitempty"`
	Envelope  json.RawMessage `json:"envelope"`
}

var ErrEmptyEnvelope = errors.New("relay: empty envelope")

func Encode(m Message) ([]byte, error) {
	if len(m.Envelope) == 0 {
		return nil, ErrEmptyEnvelope
	}
	return json.Marshal(m)
}

func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	if len(m.Envelope) == 0 {
		return Message{}, ErrEmptyEnvelope
	}
	return m, nil
}

// Relay 多进程部署时的共享发布订阅层。
// 每个节点（包括发布者自己）都会从 Run 收到消息并投递给本地连接。
type Relay interface {
	Publish(ctx context.Context, m Message) error
	// Run 阻塞直到 ctx 结束或订阅失败
	Run(ctx context.Context, deliver func(Message)) error
	Close() error
}
