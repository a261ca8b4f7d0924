package request

// SendNotificationRequest 推送给指定用户
type SendNotificationRequest struct {
	UserIds  []string `json:"userIds" binding:"required,min=1,dive,required"`
	Kind     string   `json:"kind"`
	Title    string   `json:"title" binding:"required,max=200"`
	Message  string   `json:"message" binding:"max=2000"`
	Severity string   `json:"severity"`
	TaskId   *int64   `json:"taskId"`
}

// BroadcastNotificationRequest 推送给所有在线用户
type BroadcastNotificationRequest struct {
	Kind     string `json:"kind"`
	Title    string `json:"title" binding:"required,max=200"`
	Message  string `json:"message" binding:"max=2000"`
	Severity string `json:"severity"`
	TaskId   *int64 `json:"taskId"`
}

// ListDeliveriesRequest 查询最近的扇出记录
type ListDeliveriesRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}
