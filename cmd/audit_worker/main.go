package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/coherency-auth/config"
	"github.com/oksasatya/coherency-auth/internal/application"
	"github.com/oksasatya/coherency-auth/pkg/helpers"
	"github.com/oksasatya/coherency-auth/pkg/mailer"
)

// audit_worker indexes every published login attempt into Elasticsearch and
// mails the account owner when an attempt triggers a lockout.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-audit", cfg.Env)

	if cfg.RabbitMQURL == "" || cfg.RabbitMQAttemptQueue == "" {
		log.Fatal("RabbitMQ not configured")
	}

	es, err := helpers.NewESClient(cfg.ESAddrs(), cfg.ElasticsearchUser, cfg.ElasticsearchPass)
	if err != nil {
		log.Fatalf("elasticsearch: %v", err)
	}
	indexer := helpers.NewESIndexer(es, cfg.ESAttemptsIndex)

	var notices application.NoticeSender
	mg := mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender)
	switch {
	case !cfg.MailSendEnabled:
		logger.Info("MAIL_SEND_ENABLED=false; lockout notices disabled")
	case !mg.Configured():
		logger.Warn("Mailgun not configured; lockout notices disabled")
	default:
		notices = mg
	}

	svc := application.NewAuditService(indexer, notices, application.AuditConfig{
		AppName:         cfg.AppName,
		SupportURL:      cfg.SupportURL,
		LockoutDuration: cfg.LockoutDuration,
	}, logger)

	consumer, err := helpers.NewRabbitConsumer(cfg.RabbitMQURL, cfg.RabbitMQAttemptQueue, 16)
	if err != nil {
		log.Fatalf("amqp: %v", err)
	}

	msgs, err := consumer.Deliveries("")
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for msg := range msgs {
			c, cancelMsg := context.WithTimeout(ctx, 15*time.Second)
			err := svc.Handle(c, msg.Body)
			cancelMsg()
			switch {
			case err == nil:
				_ = msg.Ack(false)
			case errors.Is(err, application.ErrMalformedEvent):
				helpers.LogError(logger, "dropping attempt event", err, logrus.Fields{"delivery_tag": msg.DeliveryTag})
				_ = msg.Nack(false, false)
			default:
				helpers.LogError(logger, "attempt event failed; requeueing", err, logrus.Fields{"delivery_tag": msg.DeliveryTag})
				_ = msg.Nack(false, true)
			}
		}
		close(done)
	}()

	helpers.LogInfo(logger, "audit worker listening", logrus.Fields{"queue": cfg.RabbitMQAttemptQueue, "index": indexer.Index()})
	<-stop
	logger.Info("shutting down...")
	cancel()
	consumer.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}
