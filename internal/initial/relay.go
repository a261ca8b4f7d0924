package initial

import (
	"errors"
	"fmt"
	"strings"

	"EduTask/internal/config"
	"EduTask/internal/modules/notification/infrastructure/relay"
	"EduTask/pkg/redis"
	"EduTask/pkg/zlog"

	"go.uber.org/zap"
)

// NewRelay 按 notifyConfig.relay 创建跨节点转发层；relay = "none" 时返回 nil
func NewRelay(conf *config.Config, nodeID string) (relay.Relay, error) {
	switch strings.ToLower(strings.TrimSpace(conf.NotifyConfig.Relay)) {
	case "", config.RelayNone:
		return nil, nil
	case config.RelayRedis:
		if !redis.IsConnected() {
			return nil, errors.New("relay redis requires redisConfig.host")
		}
		zlog.Info("notify relay: redis", zap.String("channel", conf.NotifyConfig.RedisChannel))
		return relay.NewRedisRelay(conf.NotifyConfig.RedisChannel)
	case config.RelayKafka:
		return newKafkaRelay(conf, nodeID)
	default:
		return nil, fmt.Errorf("unknown relay %q", conf.NotifyConfig.Relay)
	}
}

func newKafkaRelay(conf *config.Config, nodeID string) (relay.Relay, error) {
	kc := conf.KafkaConfig
	r, err := relay.NewKafkaRelay(relay.KafkaOptions{
		Brokers:     kc.Brokers,
		ClientID:    kc.ClientID,
		Topic:       kc.NotifyTopic,
		GroupID:     KafkaGroupID(conf, nodeID),
		Partitions:  kc.Partitions,
		Replication: kc.Replication,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka relay on %s: %w", kc.NotifyTopic, err)
	}
	zlog.Info("notify relay: kafka", zap.String("topic", kc.NotifyTopic), zap.String("group", KafkaGroupID(conf, nodeID)))
	return r, nil
}

// KafkaGroupID 每个节点独立消费组，保证所有节点都能收到全部通知；
// nodeID 稳定时重启沿用同一消费组
func KafkaGroupID(conf *config.Config, nodeID string) string {
	group := conf.KafkaConfig.ConsumerGroupID
	if group == "" {
		group = conf.AppName + "-notify"
	}
	return group + "-" + nodeID
}
