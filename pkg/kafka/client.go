// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"myreprise-chatbot-go/internal/config"
	"myreprise-chatbot-go/pkg/log"
	"myreprise-chatbot-go/pkg/metrics"
	"myreprise-chatbot-go/pkg/tasks"
)

// maxAttempts 单个任务最多处理次数，超过后提交 offset 放弃
const maxAttempts = 3

// TaskProcessor 定义了处理商品索引任务的接口。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ItemIndexTask) error
}

// Producer 负责投递商品索引任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 创建 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers(cfg.Brokers)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// ProduceItemTask 发送一个商品索引任务，同一商品的任务进入同一分区以保证顺序。
func (p *Producer) ProduceItemTask(ctx context.Context, task tasks.ItemIndexTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", task.ItemID)),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// retryPolicy 控制单个任务在提交 offset 之前的进程内重试。
// 消费者组中未提交的消息不会被重新投递，失败的任务必须在这里重试完。
type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

var defaultRetry = retryPolicy{attempts: maxAttempts, backoff: 500 * time.Millisecond}

// StartConsumer 启动消费者处理商品索引任务，直到 ctx 被取消。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "myreprise-chatbot-indexer"
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	consume(ctx, r, processor, defaultRetry)

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
	log.Info("Kafka 消费者已停止")
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// consume 逐条处理消息，一条消息处理完成（成功或放弃）并提交后才拉取下一条。
func consume(ctx context.Context, r messageReader, processor TaskProcessor, policy retryPolicy) {
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Error("从 Kafka 读取消息失败", err)
			}
			return
		}
		if !handleMessage(ctx, r, m, processor, policy) {
			return
		}
	}
}

// handleMessage 处理一条消息并提交 offset。ctx 在重试期间被取消时不提交并返回 false，
// 该消息在消费者重启后会被重新投递。
func handleMessage(ctx context.Context, r messageReader, m kafka.Message, processor TaskProcessor, policy retryPolicy) bool {
	var task tasks.ItemIndexTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		metrics.IndexTasksTotal.WithLabelValues("malformed").Inc()
		// 消息格式错误，直接提交，避免阻塞队列
		commit(ctx, r, m)
		return true
	}

	attempts := max(policy.attempts, 1)
	for attempt := 1; ; attempt++ {
		err := processor.Process(ctx, task)
		if err == nil {
			log.Infof("商品索引任务处理成功: ItemID=%d, Action=%s, 尝试次数: %d", task.ItemID, task.Action, attempt)
			metrics.IndexTasksTotal.WithLabelValues("done").Inc()
			break
		}
		log.Errorf("处理商品索引任务失败: ItemID=%d, Action=%s, 第 %d/%d 次, Error: %v", task.ItemID, task.Action, attempt, attempts, err)
		if attempt >= attempts {
			log.Errorf("商品索引任务多次失败，提交 offset 放弃, 需要重新索引: ItemID=%d", task.ItemID)
			metrics.IndexTasksTotal.WithLabelValues("failed").Inc()
			break
		}
		metrics.IndexTasksTotal.WithLabelValues("retried").Inc()
		select {
		case <-ctx.Done():
			return false
		case <-time.After(policy.backoff << (attempt - 1)):
		}
	}
	commit(ctx, r, m)
	return true
}

type committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

func commit(ctx context.Context, r committer, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}

func brokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
