package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"

	"pizza-flow-service/internal/order-worker/comms"
	"pizza-flow-service/internal/order-worker/pool"
	"pizza-flow-service/internal/order-worker/tasks"
)

const (
	DefaultServerURL    = "http://localhost:8080"
	DefaultRegion       = "eu-west-3"
	DefaultPoolSize     = 5
	DefaultPollInterval = 30 * time.Second
)

func main() {
	log.Println("Order Worker Service starting...")

	serverURL := os.Getenv("SERVER_URL")
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	authToken := os.Getenv("AUTH_TOKEN")
	region := os.Getenv("WORKER_REGION")
	if region == "" {
		region = DefaultRegion
	}
	poolSize := DefaultPoolSize
	if v := os.Getenv("POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			log.Fatalf("Invalid POOL_SIZE %q", v)
		}
		poolSize = n
	}
	pollInterval := DefaultPollInterval
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("Invalid POLL_INTERVAL %q: %v", v, err)
		}
		pollInterval = d
	}

	registry := tasks.NewPizzaRegistry()
	log.Printf("Worker capabilities: %v", registry.Names())

	notifier, err := comms.NewHTTPNotifier(serverURL, authToken)
	if err != nil {
		log.Fatalf("Failed to create notifier: %v", err)
	}
	retriever, err := comms.NewHTTPRetriever(serverURL, authToken, region, registry, notifier)
	if err != nil {
		log.Fatalf("Failed to create retriever: %v", err)
	}

	executorPool := pool.New(poolSize)
	executorPool.Start()

	appCtx, appCancel := context.WithCancel(context.Background())

	// Report loop: each state change the pool emits goes back to the server,
	// retried until acknowledged.
	reportsDone := make(chan struct{})
	go func() {
		defer close(reportsDone)
		for res := range executorPool.Results() {
			if err := notifier.NotifyStatus(appCtx, res); err != nil {
				log.Printf("Report for task %s not accepted: %v", res.UUID, err)
			}
		}
	}()

	consumer := comms.NewDispatchConsumerFromEnv(region, registry, notifier, executorPool)
	if consumer != nil {
		go consumer.Run(appCtx)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(pollInterval),
		gocron.NewTask(func() {
			for _, e := range retriever.GetTasks(appCtx) {
				if err := executorPool.Submit(e); err != nil {
					log.Printf("Could not submit task %s: %v", e.Exec().UUID, err)
					return
				}
			}
		}),
		gocron.WithName("poll_tasks"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		log.Fatalf("Failed to schedule task polling: %v", err)
	}
	scheduler.Start()
	log.Printf("Polling %s every %s for region %s", serverURL, pollInterval, region)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	log.Printf("Received signal: %s. Initiating graceful shutdown...", sig)

	if err := scheduler.Shutdown(); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Printf("Dispatch consumer close error: %v", err)
		}
	}

	// Let in-flight executions report their final or pending_wait state
	// before the report loop goes away.
	executorPool.Stop()
	appCancel()
	<-reportsDone

	log.Println("Order Worker Service has been shut down.")
}
