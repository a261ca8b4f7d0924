package respond

import "time"

// DeliveryRespond 扇出结果，仅供观测
type DeliveryRespond struct {
	Targets   int  `json:"targets"`
	Delivered int  `json:"delivered"`
	Skipped   int  `json:"skipped"`
	Relayed   bool `json:"relayed"`
}

// OnlineRespond 本节点在线情况
type OnlineRespond struct {
	NodeId     string `json:"nodeId"`
	Channels   int    `json:"channels"`
	Identities int    `json:"identities"`
	Mine       int    `json:"mine"`
}

type DeliveryItem struct {
	DeliveryId string    `json:"deliveryId"`
	Kind       string    `json:"kind"`
	Title      string    `json:"title"`
	Severity   string    `json:"severity"`
	TaskId     *int64    `json:"taskId,omitempty"`
	Broadcast  bool      `json:"broadcast"`
	Relayed    bool      `json:"relayed"`
	TargetCnt  int       `json:"targetCnt"`
	Delivered  int       `json:"delivered"`
	NodeId     string    `json:"nodeId"`
	CreatedAt  time.Time `json:"createdAt"`
}
