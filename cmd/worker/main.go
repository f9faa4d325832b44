// cmd/worker/main.go
//
// The worker drains queued send requests from RabbitMQ and replays them
// through the dispatch pipeline. Delivery here is at-least-once: every request
// carries an idempotency key (defaulted from its request id) so a redelivered
// job can never double-send.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/joho/godotenv"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/lumenhq/courier-backend/internal/apperrors"
	"github.com/lumenhq/courier-backend/internal/config"
	"github.com/lumenhq/courier-backend/internal/db"
	"github.com/lumenhq/courier-backend/internal/events"
	"github.com/lumenhq/courier-backend/internal/policy"
	"github.com/lumenhq/courier-backend/internal/provider"
	"github.com/lumenhq/courier-backend/internal/repository"
	"github.com/lumenhq/courier-backend/internal/service"
)

const (
	sendQueue  = "send_requests"
	maxRetries = 3
)

// sendJob is the queue payload. RequestID doubles as the idempotency key when
// the enqueuer did not supply one.
type sendJob struct {
	RequestID string `json:"request_id"`
	service.SendRequest
}

// dispatcher is the slice of DispatchService the worker needs.
type dispatcher interface {
	Send(ctx context.Context, req service.SendRequest) (*service.SendResult, error)
}

// outcome of one job: ack drops it, requeue retries it.
type outcome int

const (
	ack outcome = iota
	requeue
)

// processJob replays one queued request through the pipeline. Caller errors
// (validation, not found) are dropped: requeueing cannot fix them. Provider
// errors are retried up to maxRetries; the idempotency key makes the retry
// safe.
func processJob(ctx context.Context, d dispatcher, job sendJob, retryCount int, logger *zap.Logger) outcome {
	req := job.SendRequest
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = job.RequestID
	}

	result, err := d.Send(ctx, req)
	if err == nil {
		if result.Blocked != nil {
			logger.Info("queued send blocked by policy",
				zap.String("request_id", job.RequestID),
				zap.String("message_id", result.MessageID))
		}
		return ack
	}

	var validationErr *apperrors.ValidationError
	var notFoundErr *apperrors.NotFoundError
	if errors.As(err, &validationErr) || errors.As(err, &notFoundErr) {
		logger.Warn("dropping unprocessable send request",
			zap.String("request_id", job.RequestID), zap.Error(err))
		return ack
	}

	if retryCount >= maxRetries {
		logger.Error("send request permanently failed",
			zap.String("request_id", job.RequestID),
			zap.Int("retries", retryCount),
			zap.Error(err))
		return ack
	}

	logger.Warn("send request failed, requeueing",
		zap.String("request_id", job.RequestID),
		zap.Int("retry", retryCount+1),
		zap.Error(err))
	return requeue
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}
	cfg := config.Load()

	logger, err := buildLogger(cfg.AppEnv)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	amqpConn, err := amqp.Dial(cfg.AMQPUrl)
	if err != nil {
		logger.Fatal("failed to connect to RabbitMQ", zap.Error(err))
	}
	defer amqpConn.Close()

	ch, err := amqpConn.Channel()
	if err != nil {
		logger.Fatal("failed to open a channel", zap.Error(err))
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(sendQueue, true, false, false, false, nil)
	if err != nil {
		logger.Fatal("failed to declare queue", zap.Error(err))
	}

	publisher, err := events.NewAMQPPublisher(amqpConn)
	if err != nil {
		logger.Fatal("failed to open event publisher", zap.Error(err))
	}

	dispatch := &service.DispatchService{
		Contacts:      &repository.ContactRepository{DB: conn},
		Templates:     &repository.TemplateRepository{DB: conn},
		Conversations: &repository.ConversationRepository{DB: conn},
		Messages:      &repository.MessageRepository{DB: conn},
		Events:        &repository.MessageEventRepository{DB: conn},
		Policy: &policy.Evaluator{
			Store:  policy.NewRedisWindowStore(cfg.RedisAddr, cfg.RedisDB),
			Window: cfg.PolicyWindow,
			Limit:  cfg.PolicyWindowLimit,
			Logger: logger,
		},
		Providers: provider.BuildRegistry(cfg),
		Publisher: publisher,
		FromAddr:  cfg.FromAddr,
		Logger:    logger,
	}

	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		logger.Fatal("failed to register consumer", zap.Error(err))
	}

	logger.Info("worker running, waiting for send requests")
	for d := range msgs {
		var job sendJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			logger.Warn("invalid job payload", zap.Error(err))
			d.Ack(false)
			continue
		}

		retryCount := 0
		if v, ok := d.Headers["x-retry-count"].(int32); ok {
			retryCount = int(v)
		}

		switch processJob(context.Background(), dispatch, job, retryCount, logger) {
		case requeue:
			// Republish with the bumped retry header instead of Nack: a plain
			// requeue would come back with the original headers and loop forever.
			err := ch.Publish("", q.Name, false, false, amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Headers:      amqp.Table{"x-retry-count": int32(retryCount + 1)},
				Body:         d.Body,
			})
			if err != nil {
				logger.Error("failed to republish job, requeueing as-is", zap.Error(err))
				d.Nack(false, true)
				continue
			}
			d.Ack(false)
		default:
			d.Ack(false)
		}
	}
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
