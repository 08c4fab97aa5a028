package main

import (
	"context"
	"encoding/json"
	"log"
	"os/signal"
	"syscall"

	"github.com/leadsmagics/crm-backend/internal/config"
	"github.com/leadsmagics/crm-backend/internal/content"
	"github.com/leadsmagics/crm-backend/internal/db"
	"github.com/leadsmagics/crm-backend/internal/queue"
	"github.com/leadsmagics/crm-backend/internal/repository"
	"github.com/leadsmagics/crm-backend/internal/service"
	"github.com/leadsmagics/crm-backend/internal/transport"
)

// The worker consumes campaign dispatch and per-recipient send jobs
// from RabbitMQ. Run it alongside the server when QUEUE_DRIVER=amqp.
func main() {
	cfg := config.Load()

	database, err := db.Open(cfg.DSN())
	if err != nil {
		log.Fatal("connecting to database: ", err)
	}
	defer database.Close()

	contactRepo := &repository.ContactRepository{DB: database}
	campaignRepo := &repository.CampaignRepository{DB: database}
	recipientRepo := &repository.RecipientRepository{DB: database}
	templateRepo := &repository.TemplateRepository{DB: database}

	assembler := content.NewAssembler(templateRepo, cfg.BaseURL)
	smtpCfg := transport.SMTPConfig{
		Host:               cfg.SMTPHost,
		Port:               cfg.SMTPPort,
		Username:           cfg.SMTPUsername,
		Password:           cfg.SMTPPassword,
		UseTLS:             cfg.SMTPUseTLS,
		VerifyCertificates: cfg.VerifyCertificates,
		Timeout:            cfg.SendTimeout,
	}

	amqpQueue, err := queue.NewAMQPQueue(cfg.AMQPURL)
	if err != nil {
		log.Fatal("connecting to rabbitmq: ", err)
	}
	defer amqpQueue.Close()

	engine := service.NewDeliveryEngine(
		campaignRepo, recipientRepo, contactRepo, templateRepo,
		assembler,
		func() transport.Transport { return transport.NewSMTPTransport(smtpCfg) },
		amqpQueue,
		service.EngineConfig{
			MaxAttempts:   cfg.SendMaxRetries,
			BaseBackoff:   cfg.SendBaseBackoff,
			SendTimeout:   cfg.SendTimeout,
			RatePerMinute: cfg.SendRatePerMinute,
			Concurrency:   cfg.SendConcurrency,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		err := amqpQueue.Consume(queue.TopicCampaignDispatch, func(body []byte) error {
			var job queue.DispatchJob
			if err := json.Unmarshal(body, &job); err != nil {
				log.Println("invalid dispatch job:", err)
				return nil
			}
			return engine.ProcessCampaign(ctx, job.CampaignID)
		})
		if err != nil {
			log.Fatal("consuming dispatch jobs: ", err)
		}
	}()

	go func() {
		err := amqpQueue.Consume(queue.TopicCampaignSends, func(body []byte) error {
			var job queue.SendJob
			if err := json.Unmarshal(body, &job); err != nil {
				log.Println("invalid send job:", err)
				return nil
			}
			return engine.SendOne(ctx, job.RecipientID)
		})
		if err != nil {
			log.Fatal("consuming send jobs: ", err)
		}
	}()

	log.Println("worker running, waiting for jobs")
	<-ctx.Done()
}
