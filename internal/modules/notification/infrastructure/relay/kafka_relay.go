package relay

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"EduTask/pkg/zlog"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

const (
	kafkaOriginHeader = "origin"
	kafkaBroadcastKey = "broadcast"
)

// KafkaOptions GroupID 需按节点区分，且在重启之间保持不变
type KafkaOptions struct {
	Brokers     []string
	ClientID    string
	Topic       string
	GroupID     string
	Partitions  int32
	Replication int16
}

type kafkaRelay struct {
	topic    string
	producer sarama.SyncProducer
	group    sarama.ConsumerGroup
}

// NewKafkaRelay 确保 topic 存在后创建生产者与本节点的消费组
func NewKafkaRelay(opts KafkaOptions) (Relay, error) {
	if len(opts.Brokers) == 0 {
		return nil, errors.New("relay: kafka brokers is empty")
	}
	opts.Topic = strings.TrimSpace(opts.Topic)
	if opts.Topic == "" {
		return nil, errors.New("relay: kafka topic is empty")
	}
	opts.GroupID = strings.TrimSpace(opts.GroupID)
	if opts.GroupID == "" {
		return nil, errors.New("relay: kafka consumer group id is empty")
	}

	if err := ensureTopic(opts); err != nil {
		return nil, err
	}

	pc := newSaramaConfig(opts.ClientID)
	pc.Producer.Return.Successes = true
	// 至多一次投递
	pc.Producer.RequiredAcks = sarama.WaitForLocal
	pc.Producer.Retry.Max = 3
	pc.Producer.Retry.Backoff = 100 * time.Millisecond
	pc.Producer.Partitioner = sarama.NewHashPartitioner
	producer, err := sarama.NewSyncProducer(opts.Brokers, pc)
	if err != nil {
		return nil, err
	}

	cc := newSaramaConfig(opts.ClientID)
	// 离线期间的通知没有意义，只从最新位置开始
	cc.Consumer.Offsets.Initial = sarama.OffsetNewest
	cc.Consumer.Group.Rebalance.Timeout = 30 * time.Second
	cc.Consumer.Group.Session.Timeout = 30 * time.Second
	group, err := sarama.NewConsumerGroup(opts.Brokers, opts.GroupID, cc)
	if err != nil {
		_ = producer.Close()
		return nil, err
	}
	return newKafkaRelay(opts.Topic, producer, group), nil
}

func newKafkaRelay(topic string, producer sarama.SyncProducer, group sarama.ConsumerGroup) *kafkaRelay {
	return &kafkaRelay{topic: topic, producer: producer, group: group}
}

func newSaramaConfig(clientID string) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_8_0_0
	if id := strings.TrimSpace(clientID); id != "" {
		sc.ClientID = id
	}
	return sc
}

// ensureTopic 不存在则创建；通知只需短期保留
func ensureTopic(opts KafkaOptions) error {
	partitions, replication := opts.Partitions, opts.Replication
	if partitions <= 0 {
		partitions = 1
	}
	if replication <= 0 {
		replication = 1
	}

	admin, err := sarama.NewClusterAdmin(opts.Brokers, newSaramaConfig(opts.ClientID))
	if err != nil {
		return err
	}
	defer admin.Close()

	topics, err := admin.ListTopics()
	if err != nil {
		return err
	}
	if _, ok := topics[opts.Topic]; ok {
		return nil
	}

	retention := strconv.FormatInt(time.Hour.Milliseconds(), 10)
	err = admin.CreateTopic(opts.Topic, &sarama.TopicDetail{
		NumPartitions:     partitions,
		ReplicationFactor: replication,
		ConfigEntries:     map[string]*string{"retention.ms": &retention},
	}, false)
	if err != nil && !errors.Is(err, sarama.ErrTopicAlreadyExists) {
		return err
	}
	return nil
}

// Publish 定向消息以第一个目标为 key，同一用户的通知落在同一分区
func (k *kafkaRelay) Publish(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := Encode(m)
	if err != nil {
		return err
	}
	key := kafkaBroadcastKey
	if !m.Broadcast && len(m.Targets) > 0 {
		key = m.Targets[0]
	}
	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(b),
		Headers: []sarama.RecordHeader{
			{Key: []byte(kafkaOriginHeader), Value: []byte(m.Origin)},
		},
	})
	return err
}

func (k *kafkaRelay) Run(ctx context.Context, deliver func(Message)) error {
	h := &claimHandler{deliver: deliver}
	topics := []string{k.topic}
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := k.group.Consume(ctx, topics, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

func (k *kafkaRelay) Close() error {
	return errors.Join(k.producer.Close(), k.group.Close())
}

type claimHandler struct {
	deliver func(Message)
}

func (*claimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (*claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim 解析失败也提交位点：推送至多一次
func (h *claimHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for rec := range claim.Messages() {
		if m, err := Decode(rec.Value); err != nil {
			zlog.Warn("relay: drop malformed kafka message",
				zap.Int32("partition", rec.Partition), zap.Int64("offset", rec.Offset), zap.Error(err))
		} else {
			h.deliver(m)
		}
		sess.MarkMessage(rec, "")
	}
	return nil
}
