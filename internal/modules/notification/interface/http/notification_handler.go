package handler

import (
	"context"
	"time"

	notifyRequest "EduTask/internal/modules/notification/application/dto/request"
	notifyRespond "EduTask/internal/modules/notification/application/dto/respond"
	"EduTask/internal/modules/notification/application/service"
	"EduTask/internal/modules/notification/domain/notification"
	"EduTask/internal/modules/notification/domain/repository"
	"EduTask/pkg/back"
	"EduTask/pkg/ws"
	"EduTask/pkg/xerr"
	"EduTask/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Sender 由 service.Broadcaster 实现
type Sender interface {
	SendToUsers(ctx context.Context, identities []string, p notification.Payload) service.Result
	SendToAll(ctx context.Context, p notification.Payload) service.Result
	NodeID() string
}

type NotificationHandler struct {
	sender   Sender
	registry *ws.Registry
	audit    repository.DeliveryRepository
}

// NewNotificationHandler audit 可为空，此时记录查询接口返回 404
func NewNotificationHandler(sender Sender, registry *ws.Registry, audit repository.DeliveryRepository) *NotificationHandler {
	return &NotificationHandler{sender: sender, registry: registry, audit: audit}
}

func (h *NotificationHandler) Send(c *gin.Context) {
	var req notifyRequest.SendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		zlog.Warn("notification send: bad request", zap.Error(err))
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	p := toPayload(req.Kind, req.Title, req.Message, req.Severity, req.TaskId)
	res := h.sender.SendToUsers(c.Request.Context(), req.UserIds, p)
	if res.Targets == 0 {
		back.Result(c, nil, xerr.ErrNoTargets)
		return
	}
	back.Success(c, toRespond(res))
}

func (h *NotificationHandler) Broadcast(c *gin.Context) {
	var req notifyRequest.BroadcastNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		zlog.Warn("notification broadcast: bad request", zap.Error(err))
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	p := toPayload(req.Kind, req.Title, req.Message, req.Severity, req.TaskId)
	res := h.sender.SendToAll(c.Request.Context(), p)
	zlog.Info("notification broadcast",
		zap.String("operator", c.GetString("uuid")),
		zap.String("title", req.Title),
		zap.Int("delivered", res.Delivered))
	back.Success(c, toRespond(res))
}

func (h *NotificationHandler) Online(c *gin.Context) {
	stats := h.registry.Stats()
	back.Success(c, notifyRespond.OnlineRespond{
		NodeId:     h.sender.NodeID(),
		Channels:   stats.Channels,
		Identities: stats.Identities,
		Mine:       len(h.registry.ChannelsFor(c.GetString("uuid"))),
	})
}

func (h *NotificationHandler) ListDeliveries(c *gin.Context) {
	if h.audit == nil {
		back.Error(c, xerr.NotFound, "delivery audit disabled")
		return
	}
	var req notifyRequest.ListDeliveriesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	rows, err := h.audit.ListRecent(ctx, req.Limit)
	if err != nil {
		zlog.Error("list deliveries failed", zap.Error(err))
		back.Result(c, nil, xerr.Wrap(xerr.InternalServerError, xerr.ErrServerError.Message, err))
		return
	}

	items := make([]notifyRespond.DeliveryItem, 0, len(rows))
	for _, d := range rows {
		items = append(items, notifyRespond.DeliveryItem{
			DeliveryId: d.DeliveryId,
			Kind:       d.Kind,
			Title:      d.Title,
			Severity:   d.Severity,
			TaskId:     d.TaskId,
			Broadcast:  d.Broadcast,
			Relayed:    d.Relayed,
			TargetCnt:  d.TargetCnt,
			Delivered:  d.Delivered,
			NodeId:     d.NodeId,
			CreatedAt:  d.CreatedAt,
		})
	}
	back.Success(c, items)
}

func toPayload(kind, title, message, severity string, taskID *int64) notification.Payload {
	p := notification.NewPayload(notification.Kind(kind), title, message, notification.Severity(severity))
	if taskID != nil {
		p = p.WithTask(*taskID)
	}
	return p
}

func toRespond(res service.Result) notifyRespond.DeliveryRespond {
	return notifyRespond.DeliveryRespond{
		Targets:   res.Targets,
		Delivered: res.Delivered,
		Skipped:   res.Skipped,
		Relayed:   res.Relayed,
	}
}
