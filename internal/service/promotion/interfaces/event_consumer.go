package interfaces

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"promoindex/internal/pkg/logger"
	"promoindex/internal/pkg/mq"
	"promoindex/internal/service/promotion/domain"
)

// MessageReader 是 kafka.Reader 中消费者用到的部分
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// FailureSink 接收处理失败的消息
type FailureSink interface {
	Handle(ctx context.Context, msg kafka.Message, cause error) error
}

// EntityEventConsumer 监听实体变更主题并驱动索引触发器
type EntityEventConsumer struct {
	reader   MessageReader
	events   EventHandler
	failures FailureSink
	tracer   trace.Tracer
	backoff  time.Duration
}

func NewEntityEventConsumer(reader MessageReader, events EventHandler, failures FailureSink, tracer trace.Tracer) *EntityEventConsumer {
	return &EntityEventConsumer{
		reader:   reader,
		events:   events,
		failures: failures,
		tracer:   tracer,
		backoff:  time.Second,
	}
}

// Run 阻塞消费直到 ctx 结束，退出时关闭 reader。
// 处理失败的消息转发到死信主题，无论成败都提交 offset。
func (c *EntityEventConsumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("close kafka reader")
		}
	}()
	logger.Ctx(ctx).Info().Msg("entity event consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("entity event consumer stopped")
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("fetch message failed, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		c.consume(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("commit message failed")
		}
	}
}

func (c *EntityEventConsumer) consume(ctx context.Context, msg kafka.Message) {
	msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "consumer.EntityEvent", trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int("messaging.partition", msg.Partition),
			attribute.Int64("messaging.offset", msg.Offset),
		))
	defer span.End()

	err := c.process(msgCtx, msg)
	if err == nil {
		return
	}
	span.RecordError(err)
	if ferr := c.failures.Handle(msgCtx, msg, err); ferr != nil {
		logger.Ctx(msgCtx).Error().Err(ferr).Int64("offset", msg.Offset).Msg("message dropped")
	}
}

func (c *EntityEventConsumer) process(ctx context.Context, msg kafka.Message) error {
	var event domain.EntityEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return errors.Wrap(err, "decode entity event")
	}
	logger.Ctx(ctx).Debug().Str("event_id", event.EventID).Str("type", string(event.Type)).Int64("entity_id", event.EntityID).Msg("entity event received")
	return c.events.Handle(ctx, &event)
}

var _ FailureSink = (*mq.FailureHandler)(nil)
