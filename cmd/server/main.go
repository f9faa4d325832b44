// cmd/server/main.go
package main

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/lumenhq/courier-backend/internal/config"
	"github.com/lumenhq/courier-backend/internal/db"
	"github.com/lumenhq/courier-backend/internal/events"
	"github.com/lumenhq/courier-backend/internal/handler"
	"github.com/lumenhq/courier-backend/internal/policy"
	"github.com/lumenhq/courier-backend/internal/provider"
	"github.com/lumenhq/courier-backend/internal/repository"
	"github.com/lumenhq/courier-backend/internal/service"
)

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

	contactRepo := &repository.ContactRepository{DB: conn}
	templateRepo := &repository.TemplateRepository{DB: conn}
	conversationRepo := &repository.ConversationRepository{DB: conn}
	messageRepo := &repository.MessageRepository{DB: conn}
	eventRepo := &repository.MessageEventRepository{DB: conn}

	evaluator := &policy.Evaluator{
		Store:  policy.NewRedisWindowStore(cfg.RedisAddr, cfg.RedisDB),
		Window: cfg.PolicyWindow,
		Limit:  cfg.PolicyWindowLimit,
		Logger: logger,
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQPUrl != "" {
		amqpConn, err := amqp.Dial(cfg.AMQPUrl)
		if err != nil {
			logger.Fatal("failed to connect to RabbitMQ", zap.Error(err))
		}
		defer amqpConn.Close()
		publisher, err = events.NewAMQPPublisher(amqpConn)
		if err != nil {
			logger.Fatal("failed to open event publisher", zap.Error(err))
		}
	}

	dispatch := &service.DispatchService{
		Contacts:      contactRepo,
		Templates:     templateRepo,
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Events:        eventRepo,
		Policy:        evaluator,
		Providers:     provider.BuildRegistry(cfg),
		Publisher:     publisher,
		FromAddr:      cfg.FromAddr,
		Logger:        logger,
	}

	messageHandler := &handler.MessageHandler{
		Dispatch: dispatch,
		Messages: messageRepo,
		Events:   eventRepo,
		Logger:   logger,
	}
	conversationHandler := &handler.ConversationHandler{
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Logger:        logger,
	}

	r := chi.NewRouter()
	r.Post("/messages/send", messageHandler.SendMessage)
	r.Get("/messages/{id}", messageHandler.GetMessage)
	r.Get("/messages/{id}/events", messageHandler.ListMessageEvents)
	r.Get("/conversations", conversationHandler.ListConversations)
	r.Get("/conversations/{id}/messages", conversationHandler.ListConversationMessages)

	logger.Info("server running", zap.String("addr", cfg.AppAddr))
	if err := http.ListenAndServe(cfg.AppAddr, r); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

