// Package server assembles the ingestion pipeline and runs the HTTP server.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/platewatch/platewatch-go/internal/api"
	"github.com/platewatch/platewatch-go/internal/blobstore"
	"github.com/platewatch/platewatch-go/internal/broadcast"
	"github.com/platewatch/platewatch-go/internal/conf"
	"github.com/platewatch/platewatch-go/internal/datastore"
	"github.com/platewatch/platewatch-go/internal/errors"
	"github.com/platewatch/platewatch-go/internal/observability"
	"github.com/platewatch/platewatch-go/internal/recognition"
)

// shutdownTimeout bounds how long in-flight requests may run after a
// termination signal.
const shutdownTimeout = 10 * time.Second

// Run starts the PlateWatch server and blocks until a termination signal
// arrives or startup fails.
func Run(settings *conf.Settings) error {
	logger := slog.Default().With("service", "server")

	store := datastore.New(settings)
	if store == nil {
		return errors.Newf("no database output enabled in configuration").
			Component("server").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close datastore", "error", err)
		}
	}()

	blobs, err := blobstore.New(settings.WebServer.UploadPath, settings.Ingest.AllowedExtensions)
	if err != nil {
		return err
	}

	recognizer := recognition.New(settings)
	defer recognizer.Close()

	hub := broadcast.NewHub()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	if settings.Realtime.MQTT.Enabled {
		observer, err := broadcast.NewMQTTObserver(settings)
		if err != nil {
			// MQTT is an optional output, the pipeline runs without it.
			logger.Error("MQTT connection failed, continuing without MQTT output",
				"broker", settings.Realtime.MQTT.Broker, "error", err)
		} else {
			hub.Register(observer)
			defer observer.Close()
		}
	}

	e := echo.New()
	e.HideBanner = true

	controller, err := api.New(e, store, settings, blobs, recognizer, hub, metrics)
	if err != nil {
		return err
	}
	defer controller.Close()

	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%s", settings.WebServer.Port)
		logger.Info("PlateWatch server starting", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return errors.New(err).
			Component("server").
			Category(errors.CategoryHTTP).
			Build()
	case sig := <-quit:
		logger.Info("Shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return errors.New(err).
			Component("server").
			Category(errors.CategoryHTTP).
			Build()
	}

	return nil
}
