package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/leadsmagics/crm-backend/internal/config"
	"github.com/leadsmagics/crm-backend/internal/content"
	"github.com/leadsmagics/crm-backend/internal/controller"
	"github.com/leadsmagics/crm-backend/internal/db"
	"github.com/leadsmagics/crm-backend/internal/handler"
	"github.com/leadsmagics/crm-backend/internal/queue"
	"github.com/leadsmagics/crm-backend/internal/repository"
	"github.com/leadsmagics/crm-backend/internal/service"
	"github.com/leadsmagics/crm-backend/internal/transport"
)

func main() {
	cfg := config.Load()

	database, err := db.Open(cfg.DSN())
	if err != nil {
		log.Fatal("connecting to database: ", err)
	}
	defer database.Close()

	contactRepo := &repository.ContactRepository{DB: database}
	listRepo := &repository.ListRepository{DB: database}
	campaignRepo := &repository.CampaignRepository{DB: database}
	recipientRepo := &repository.RecipientRepository{DB: database}
	templateRepo := &repository.TemplateRepository{DB: database}

	assembler := content.NewAssembler(templateRepo, cfg.BaseURL)
	newTransport := transportFactory(cfg)

	var publisher queue.Publisher
	var memoryQueue *queue.InMemoryQueue
	switch cfg.QueueDriver {
	case "amqp":
		amqpQueue, err := queue.NewAMQPQueue(cfg.AMQPURL)
		if err != nil {
			log.Fatal("connecting to rabbitmq: ", err)
		}
		defer amqpQueue.Close()
		publisher = amqpQueue
	default:
		memoryQueue = queue.NewInMemoryQueue()
		publisher = memoryQueue
	}

	engine := service.NewDeliveryEngine(
		campaignRepo, recipientRepo, contactRepo, templateRepo,
		assembler, newTransport, publisher,
		service.EngineConfig{
			MaxAttempts:   cfg.SendMaxRetries,
			BaseBackoff:   cfg.SendBaseBackoff,
			SendTimeout:   cfg.SendTimeout,
			RatePerMinute: cfg.SendRatePerMinute,
			Concurrency:   cfg.SendConcurrency,
		},
	)

	resolver := &service.ResolverService{
		Contacts:   contactRepo,
		Recipients: recipientRepo,
		Campaigns:  campaignRepo,
	}
	campaignService := &service.CampaignService{
		Campaigns:  campaignRepo,
		Recipients: recipientRepo,
		Templates:  templateRepo,
		Resolver:   resolver,
		Engine:     engine,
	}
	trackingService := &service.TrackingService{
		Recipients: recipientRepo,
		Contacts:   contactRepo,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Without a broker, dispatch jobs run in-process.
	if memoryQueue != nil {
		subscribeEngine(ctx, memoryQueue, engine)
	}

	scheduler := &service.Scheduler{
		Campaigns: campaignService,
		Interval:  cfg.SchedulerInterval,
		Lookahead: cfg.SchedulerLookahead,
	}
	go scheduler.Start(ctx)

	campaignController := &controller.CampaignController{Service: campaignService}
	contactController := &controller.ContactController{Contacts: contactRepo}
	listController := &controller.ListController{Lists: listRepo}
	templateController := &controller.TemplateController{Templates: templateRepo}
	trackingHandler := &handler.TrackingHandler{Tracking: trackingService}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/campaigns", campaignController.Create)
	r.Get("/campaigns", campaignController.List)
	r.Get("/campaigns/{id}", campaignController.Get)
	r.Put("/campaigns/{id}", campaignController.Update)
	r.Post("/campaigns/{id}/transition", campaignController.Transition)
	r.Get("/campaigns/{id}/stats", campaignController.Stats)
	r.Post("/campaigns/{id}/resolve", campaignController.Resolve)
	r.Post("/recipients/{id}/retry", campaignController.RetryRecipient)

	r.Post("/contacts", contactController.Create)
	r.Get("/contacts", contactController.List)
	r.Get("/contacts/{id}", contactController.Get)

	r.Post("/lists", listController.Create)
	r.Get("/lists", listController.List)
	r.Get("/lists/{id}", listController.Get)
	r.Post("/lists/{id}/contacts", listController.AddContacts)
	r.Delete("/lists/{id}/contacts", listController.RemoveContacts)

	r.Post("/templates", templateController.Create)
	r.Get("/templates", templateController.List)
	r.Get("/templates/{id}", templateController.Get)

	r.Get("/track/open/{token}", trackingHandler.Open)
	r.Get("/track/click/{token}", trackingHandler.Click)
	r.Get("/unsubscribe/{token}", trackingHandler.Unsubscribe)
	r.Post("/unsubscribe/{token}", trackingHandler.Unsubscribe)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Println("server running on", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
	memoryQueueWait(memoryQueue)
}

func transportFactory(cfg *config.Config) func() transport.Transport {
	if cfg.MailDriver == "console" {
		return func() transport.Transport { return transport.NewConsoleTransport() }
	}
	smtpCfg := transport.SMTPConfig{
		Host:               cfg.SMTPHost,
		Port:               cfg.SMTPPort,
		Username:           cfg.SMTPUsername,
		Password:           cfg.SMTPPassword,
		UseTLS:             cfg.SMTPUseTLS,
		VerifyCertificates: cfg.VerifyCertificates,
		Timeout:            cfg.SendTimeout,
	}
	return func() transport.Transport { return transport.NewSMTPTransport(smtpCfg) }
}

func subscribeEngine(ctx context.Context, q *queue.InMemoryQueue, engine *service.DeliveryEngine) {
	q.Subscribe(queue.TopicCampaignDispatch, func(payload any) error {
		job, ok := payload.(queue.DispatchJob)
		if !ok {
			log.Printf("queue: unexpected dispatch payload %T", payload)
			return nil
		}
		return engine.ProcessCampaign(ctx, job.CampaignID)
	})
	q.Subscribe(queue.TopicCampaignSends, func(payload any) error {
		job, ok := payload.(queue.SendJob)
		if !ok {
			log.Printf("queue: unexpected send payload %T", payload)
			return nil
		}
		return engine.SendOne(ctx, job.RecipientID)
	})
}

func memoryQueueWait(q *queue.InMemoryQueue) {
	if q != nil {
		q.Wait()
	}
}
