package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/willtech3/circulation-service/config"
	"github.com/willtech3/circulation-service/internal/catalog"
	"github.com/willtech3/circulation-service/internal/dispatcher"
	"github.com/willtech3/circulation-service/internal/engine"
	"github.com/willtech3/circulation-service/internal/handler"
	"github.com/willtech3/circulation-service/internal/repository"
	"github.com/willtech3/circulation-service/internal/resource"
	"github.com/willtech3/circulation-service/internal/server"
	"github.com/willtech3/circulation-service/migrations"
	"github.com/willtech3/circulation-service/pkg/circuitbreaker"
	"github.com/willtech3/circulation-service/pkg/kafka"
	"github.com/willtech3/circulation-service/pkg/logger"
	"github.com/willtech3/circulation-service/pkg/postgres"
)

func Run(cfg *config.Config) {
	log := logger.NewLogger(cfg.Log, "circulation")
	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		log.Fatal("db init", zap.Error(err))
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		log.Fatal("repo", zap.Error(err))
	}

	eng := engine.New(repo, engine.Config{
		DailyFineRate: cfg.Circulation.DailyFineRate,
		MaxFine:       cfg.Circulation.MaxFine,
		FineCeiling:   cfg.Circulation.FineCeiling,
		LoanPeriod:    cfg.Circulation.LoanPeriod,
	}, log)

	registry := resource.NewRegistry(repo, cfg.Circulation.MaxPageSize, log)
	router, err := registry.NewRouter()
	if err != nil {
		log.Fatal("resource router", zap.Error(err))
	}

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		log.Fatal("kafka.NewProducer", zap.Error(err))
	}
	cb := circuitbreaker.New(20, 10*time.Second, 0.5, 3)
	enq := handler.NewEnqueuer(producer, cb)

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	consumer, err := kafka.NewConsumer(cfg.Kafka, kafka.CirculationConsumerGroup)
	if err != nil {
		log.Fatal("kafka.NewConsumer", zap.Error(err))
	}
	go kafka.Consume(consumerCtx, consumer, handler.NewConsumer(repo.RecordEvent, log), kafka.CirculationTopic)

	h := handler.New(dispatcher.New(eng, catalog.New(repo, log), log), router, enq, log)
	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
	go func() {
		if err := srv.Run(); err != nil {
			log.Error("server run", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	termSig := <-sig

	log.Debug("Graceful shutdown", zap.Any("signal", termSig))

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err = srv.Stop(closeCtx); err != nil {
		log.DPanic("srv.Stop", zap.Error(err))
	}
	stopConsumer()
	if err := consumer.Close(); err != nil {
		log.Error("consumer close", zap.Error(err))
	}
	if err := producer.Close(); err != nil {
		log.Error("producer close", zap.Error(err))
	}
	db.Close()
	log.Info("Graceful shutdown finished")
}
