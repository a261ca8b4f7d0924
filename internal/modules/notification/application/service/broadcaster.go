package service

import (
	"context"
	"strings"
	"time"

	"EduTask/internal/modules/notification/domain/notification"
	"EduTask/internal/modules/notification/domain/repository"
	"EduTask/internal/modules/notification/infrastructure/relay"
	"EduTask/pkg/util"
	"EduTask/pkg/ws"
	"EduTask/pkg/zlog"

	"go.uber.org/zap"
)

// Result 一次扇出的统计，仅用于日志与观测，调用方无需处理
type Result struct {
	Targets   int  `json:"targets"`
	Delivered int  `json:"delivered"`
	Skipped   int  `json:"skipped"`
	Relayed   bool `json:"relayed"`
}

func (r *Result) add(o Result) {
	r.Delivered += o.Delivered
	r.Skipped += o.Skipped
}

type BroadcasterOptions struct {
	NodeID string
	// Relay 为空时只投递本进程连接
	Relay relay.Relay
	// Audit 为空时不记录
	Audit repository.DeliveryRepository
	Now   func() time.Time
}

// Broadcaster 把通知写入目标用户的全部在线连接。
// 至多一次：不重试、不排队、不落库补发；目标无在线连接时直接丢弃。
type Broadcaster struct {
	registry *ws.Registry
	nodeID   string
	relay    relay.Relay
	audit    repository.DeliveryRepository
	now      func() time.Time
}

func NewBroadcaster(registry *ws.Registry, opts BroadcasterOptions) *Broadcaster {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NodeID == "" {
		opts.NodeID = util.GenerateUUID()
	}
	return &Broadcaster{
		registry: registry,
		nodeID:   opts.NodeID,
		relay:    opts.Relay,
		audit:    opts.Audit,
		now:      opts.Now,
	}
}

func (b *Broadcaster) NodeID() string { return b.nodeID }

// SendToUsers 推送给 identities 的每个在线连接，重复身份只投递一次
func (b *Broadcaster) SendToUsers(ctx context.Context, identities []string, p notification.Payload) Result {
	targets := util.DedupStrings(identities)
	if len(targets) == 0 {
		return Result{}
	}
	data, ok := b.encode(p)
	if !ok {
		return Result{Targets: len(targets)}
	}

	if b.relay != nil {
		err := b.relay.Publish(ctx, relay.Message{Origin: b.nodeID, Targets: targets, Envelope: data})
		if err == nil {
			res := Result{Targets: len(targets), Relayed: true}
			b.record(p, targets, false, res)
			return res
		}
		zlog.Warn("notify relay publish failed, delivering locally", zap.Error(err))
	}

	res := b.deliverToUsers(targets, data)
	b.record(p, targets, false, res)
	zlog.Debug("notify send",
		zap.String("kind", string(p.Kind)),
		zap.Int("targets", res.Targets),
		zap.Int("delivered", res.Delivered),
		zap.Int("skipped", res.Skipped))
	return res
}

// SendToAll 推送给所有已认证的在线连接
func (b *Broadcaster) SendToAll(ctx context.Context, p notification.Payload) Result {
	data, ok := b.encode(p)
	if !ok {
		return Result{}
	}

	if b.relay != nil {
		err := b.relay.Publish(ctx, relay.Message{Origin: b.nodeID, Broadcast: true, Envelope: data})
		if err == nil {
			res := Result{Relayed: true}
			b.record(p, nil, true, res)
			return res
		}
		zlog.Warn("notify relay publish failed, delivering locally", zap.Error(err))
	}

	res := b.deliverToAll(data)
	b.record(p, nil, true, res)
	zlog.Debug("notify broadcast",
		zap.String("kind", string(p.Kind)),
		zap.Int("delivered", res.Delivered),
		zap.Int("skipped", res.Skipped))
	return res
}

// HandleRelayed 投递其他节点（或本节点）经转发层发来的通知
func (b *Broadcaster) HandleRelayed(m relay.Message) Result {
	if m.Broadcast {
		return b.deliverToAll(m.Envelope)
	}
	return b.deliverToUsers(util.DedupStrings(m.Targets), m.Envelope)
}

// Run 订阅转发层，阻塞直到 ctx 结束；未配置转发层时立即返回
func (b *Broadcaster) Run(ctx context.Context) error {
	if b.relay == nil {
		return nil
	}
	return b.relay.Run(ctx, func(m relay.Message) {
		res := b.HandleRelayed(m)
		zlog.Debug("notify relayed",
			zap.String("origin", m.Origin),
			zap.Bool("broadcast", m.Broadcast),
			zap.Int("delivered", res.Delivered))
	})
}

func (b *Broadcaster) encode(p notification.Payload) ([]byte, bool) {
	data, err := notification.Marshal(notification.NotificationEnvelope(p, b.now()))
	if err != nil {
		zlog.Error("notify encode failed", zap.Error(err))
		return nil, false
	}
	return data, true
}

func (b *Broadcaster) deliverToUsers(targets []string, data []byte) Result {
	res := Result{Targets: len(targets)}
	for _, id := range targets {
		res.add(deliver(b.registry.ChannelsFor(id), data))
	}
	return res
}

func (b *Broadcaster) deliverToAll(data []byte) Result {
	chs := b.registry.All()
	res := deliver(chs, data)
	res.Targets = len(chs)
	return res
}

func deliver(chs []ws.Channel, data []byte) Result {
	var res Result
	for _, ch := range chs {
		// 正在关闭的连接跳过，由关闭流程负责从注册表移除
		if !ch.IsOpen() || !ch.Send(data) {
			res.Skipped++
			continue
		}
		res.Delivered++
	}
	return res
}

func (b *Broadcaster) record(p notification.Payload, targets []string, broadcast bool, res Result) {
	if b.audit == nil {
		return
	}
	d := &notification.Delivery{
		DeliveryId: util.GenerateUUID(),
		Kind:       string(notification.NormalizeKind(string(p.Kind))),
		Title:      p.Title,
		Severity:   string(notification.NormalizeSeverity(string(p.Severity))),
		TaskId:     p.TaskID,
		Broadcast:  broadcast,
		Relayed:    res.Relayed,
		Targets:    strings.Join(targets, ","),
		TargetCnt:  len(targets),
		Delivered:  res.Delivered,
		Skipped:    res.Skipped,
		NodeId:     b.nodeID,
		CreatedAt:  b.now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.audit.Create(ctx, d); err != nil {
			zlog.Warn("notify audit write failed", zap.String("delivery_id", d.DeliveryId), zap.Error(err))
		}
	}()
}
