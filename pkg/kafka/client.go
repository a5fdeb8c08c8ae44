// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"iep-rag-go/internal/config"
	"iep-rag-go/pkg/log"
	"iep-rag-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// DefaultMaxAttempts 是一个任务失败多少次后放弃重试。
const DefaultMaxAttempts = 3

// TaskProcessor 是消费者处理导入任务所需的接口，与具体的 pipeline 实现解耦。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestTask) error
}

// AttemptCounter 记录每个文档的失败次数。
type AttemptCounter interface {
	Incr(ctx context.Context, documentID string) (int64, error)
	Reset(ctx context.Context, documentID string) error
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Producer 将导入任务写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Enqueue 发送一个导入任务，以 DocumentID 作为消息 key。
func (p *Producer) Enqueue(ctx context.Context, task tasks.IngestTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.DocumentID),
		Value: taskBytes,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// RedisAttemptCounter 使用 Redis INCR 计数，计数键在 ttl 后过期。
type RedisAttemptCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisAttemptCounter 创建一个基于 Redis 的 AttemptCounter。
func NewRedisAttemptCounter(rdb *redis.Client, ttl time.Duration) *RedisAttemptCounter {
	return &RedisAttemptCounter{rdb: rdb, ttl: ttl}
}

func attemptsKey(documentID string) string {
	return fmt.Sprintf("kafka:attempts:%s", documentID)
}

func (c *RedisAttemptCounter) Incr(ctx context.Context, documentID string) (int64, error) {
	key := attemptsKey(documentID)
	attempts, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = c.rdb.Expire(ctx, key, c.ttl).Err()
	return attempts, nil
}

func (c *RedisAttemptCounter) Reset(ctx context.Context, documentID string) error {
	return c.rdb.Del(ctx, attemptsKey(documentID)).Err()
}

// Consumer 从 Kafka 拉取导入任务并同步交给 TaskProcessor。
type Consumer struct {
	reader      *kafka.Reader
	processor   TaskProcessor
	attempts    AttemptCounter
	maxAttempts int64
	retryDelay  time.Duration
}

// NewConsumer 创建消费者。attempts 为 nil 时失败的任务会被立即提交，不再重试。
func NewConsumer(cfg config.KafkaConfig, processor TaskProcessor, attempts AttemptCounter) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, processor: processor, attempts: attempts, maxAttempts: DefaultMaxAttempts, retryDelay: 2 * time.Second}
}

// Run 持续消费直到 ctx 被取消。
func (c *Consumer) Run(ctx context.Context) error {
	log.Infof("[Kafka] 消费者已启动，正在监听主题 '%s'", c.reader.Config().Topic)
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("[Kafka] 关闭消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("[Kafka] 消费者已停止")
				return nil
			}
			return fmt.Errorf("从 Kafka 读取消息失败: %w", err)
		}

		log.Infof("[Kafka] 收到消息: offset %d", m.Offset)
		// 未提交的消息在本分区内原地重试，直到成功或达到最大次数
		for retry := 1; !c.handle(ctx, m.Value); retry++ {
			select {
			case <-ctx.Done():
				log.Info("[Kafka] 消费者已停止")
				return nil
			case <-time.After(time.Duration(retry) * c.retryDelay):
			}
		}
		if err := c.reader.CommitMessages(context.WithoutCancel(ctx), m); err != nil {
			log.Errorf("[Kafka] 提交 offset 失败: %v", err)
		}
	}
}

// handle 处理一条消息，返回是否应提交 offset。
func (c *Consumer) handle(ctx context.Context, value []byte) bool {
	var task tasks.IngestTask
	if err := json.Unmarshal(value, &task); err != nil || task.DocumentID == "" {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("[Kafka] 无法解析消息: %v, value: %s", err, string(value))
		return true
	}

	log.Infof("[Kafka] 开始处理导入任务: DocumentID=%s, FileName=%s", task.DocumentID, task.FileName)
	if err := c.processor.Process(ctx, task); err != nil {
		log.Errorf("[Kafka] 导入任务失败: DocumentID=%s, Error: %v", task.DocumentID, err)
		if c.attempts == nil {
			return true
		}
		attempts, incErr := c.attempts.Incr(ctx, task.DocumentID)
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
			log.Errorf("[Kafka] 记录失败次数出错: %v", incErr)
			return false
		}
		if attempts >= c.maxAttempts {
			log.Errorf("[Kafka] 导入任务多次失败(>=%d)，提交 offset 终止重试: DocumentID=%s", c.maxAttempts, task.DocumentID)
			return true
		}
		return false
	}

	log.Infof("[Kafka] 导入任务处理成功: DocumentID=%s", task.DocumentID)
	if c.attempts != nil {
		_ = c.attempts.Reset(ctx, task.DocumentID)
	}
	return true
}
