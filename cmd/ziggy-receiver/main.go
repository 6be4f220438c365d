package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TechnoShed-dev/technoshed-ble-scanner/common/logger"
	commonmqtt "github.com/TechnoShed-dev/technoshed-ble-scanner/common/mqtt"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/capture"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/config"
	httpapi "github.com/TechnoShed-dev/technoshed-ble-scanner/internal/http"
	mqttingest "github.com/TechnoShed-dev/technoshed-ble-scanner/internal/mqtt"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/service"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "ziggy-receiver")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	writer, err := capture.NewPartitionWriter(
		cfg.Capture.IncomingDir,
		cfg.Capture.MaxPartitionAge,
		cfg.Capture.MaxPartitionSize,
		zlog,
	)
	if err != nil {
		zlog.Fatal("Failed to open raw capture store", zap.Error(err))
	}

	intake := service.NewIntake(writer, zlog)

	upload := httpapi.NewUploadHandler(intake, zlog)
	router := httpapi.NewRouter(zlog)
	router.RegisterReceiverRoutes(upload)

	// Optional MQTT ingest bridge for brokered sites.
	var mqttClient *commonmqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = commonmqtt.NewClient(&cfg.MQTT.Settings)
		if err != nil {
			zlog.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		bridge := mqttingest.NewConsumer(mqttClient, intake, cfg.MQTT.Topic, zlog)
		if err := bridge.Start(); err != nil {
			zlog.Fatal("Failed to start MQTT ingest bridge", zap.Error(err))
		}
	}

	srv := service.NewServer(cfg.HTTP.Addr, router, zlog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		zlog.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		zlog.Error("HTTP server stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)

	if mqttClient != nil {
		mqttClient.Disconnect()
	}
	// Rotate out the open partition so nothing sits unconsolidated.
	if err := writer.Close(); err != nil {
		zlog.Error("Failed to close raw capture partition", zap.Error(err))
	}
}
