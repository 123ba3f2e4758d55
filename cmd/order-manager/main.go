package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"pizza-flow-service/internal/models"
	"pizza-flow-service/internal/order-manager/api"
	"pizza-flow-service/internal/order-manager/dispatch"
	"pizza-flow-service/internal/order-manager/notify"
	"pizza-flow-service/internal/order-manager/operations"
	"pizza-flow-service/internal/order-manager/store"
	gorm_db "pizza-flow-service/pkg/db"
)

func main() {
	stdlog.Println("Order Manager Service starting...")

	gormDB, err := gorm_db.NewGormDB()
	if err != nil {
		stdlog.Fatalf("Failed to initialize database: %v", err)
	}
	stdlog.Println("Database initialized successfully.")

	if err := gorm_db.AutoMigrate(gormDB, &models.Operation{}, &models.Task{}); err != nil {
		stdlog.Fatalf("Failed to migrate database: %v", err)
	}
	stdlog.Println("Database migration successful.")

	cache := store.NewCacheFromEnv()
	st := store.New(gormDB, cache)

	notifier := notify.NewKafkaNotifierFromEnv()

	registry := operations.NewRegistry(
		operations.NewCreatePizza(notifier),
	)
	engine := operations.NewEngine(st, notifier, registry)
	dispatchService := dispatch.NewService(st, engine, notifier)

	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = ":8080"
	}

	hlog.SetOutput(os.Stdout)
	hlog.SetLevel(hlog.LevelInfo)

	h := server.Default(server.WithHostPorts(serverAddr), server.WithExitWaitTime(5*time.Second))

	operationHandler := api.NewOperationHandler(st, engine)
	workerHandler := api.NewWorkerHandler(dispatchService)

	operationGroup := h.Group("/operations")
	{
		operationGroup.POST("", operationHandler.StartOperation)
		operationGroup.GET("", operationHandler.GetOperations)
		operationGroup.GET("/:id", operationHandler.GetOperationByID)
		operationGroup.GET("/:id/tasks", operationHandler.GetOperationTasks)
		operationGroup.POST("/:id/cancel", operationHandler.CancelOperation)
		operationGroup.POST("/:id/pause", operationHandler.PauseOperation)
		operationGroup.POST("/:id/reschedule", operationHandler.RescheduleOperation)
		operationGroup.DELETE("/:id", operationHandler.DeleteOperation)
	}
	workerGroup := h.Group("/worker")
	{
		workerGroup.GET("/tasks", workerHandler.ListWorkerTasks)
		workerGroup.POST("/task/:id", workerHandler.ReportTask)
	}

	h.GET("/ping", func(c context.Context, ctxReq *app.RequestContext) {
		ctxReq.JSON(http.StatusOK, utils.H{"message": "pong"})
	})

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		sig := <-signals
		hlog.Infof("Received signal: %s. Initiating graceful shutdown...", sig)

		shutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer httpShutdownCancel()
		if err := h.Shutdown(shutdownCtx); err != nil {
			hlog.Errorf("Hertz server shutdown error: %v", err)
		} else {
			hlog.Info("Hertz server gracefully stopped.")
		}

		if err := notifier.Close(); err != nil {
			hlog.Errorf("Kafka notifier close error: %v", err)
		} else {
			hlog.Info("Kafka notifier closed.")
		}
		hlog.Info("Order Manager gracefully shut down.")
	}()

	hlog.Infof("Order Manager fully initialized, registered operations: %v. Starting Hertz server on %s...",
		registry.Kinds(), serverAddr)
	h.Spin()

	stdlog.Println("Order Manager Service has been shut down.")
}
