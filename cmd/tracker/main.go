package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aviator-tracker-go/internal/config"
	"aviator-tracker-go/internal/database"
	"aviator-tracker-go/internal/pipeline"
	"aviator-tracker-go/internal/regions"
	"aviator-tracker-go/internal/web"
)

func main() {
	cfg := config.Load()
	pipeline.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	defer db.Close()

	if err := database.InitSchema(ctx, db); err != nil {
		log.Fatalf("Schema init error: %v", err)
	}

	// The real deployment wires the GUI driver here; without a screen we run
	// the simulated executor, which holds the device lock for a realistic
	// click/type duration.
	executor := simulatedExecutor()

	orch, err := pipeline.NewOrchestrator(cfg, db, executor)
	if err != nil {
		// Usually a live process already holds the input lock.
		log.Fatalf("Startup error: %v", err)
	}

	for i, name := range cfg.Bookmakers {
		sim := regions.NewSimulator(time.Now().UnixNano() + int64(i))
		orch.AddBookmaker(pipeline.BookmakerSpec{
			Name:        name,
			BetSequence: []float64{50, 100, 200, 400},
			AutoStop:    1.5,
			Coords:      regions.DemoCoords(i),
			Read:        sim.Read,
		})
	}

	admin := web.NewServer(cfg.AdminAddr, orch.Snapshot)
	admin.Start(ctx)

	orch.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received %v, shutting down", sig)

	orch.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = admin.Shutdown(shutdownCtx)
	cancel()
}

func simulatedExecutor() pipeline.BetExecutor {
	return func(ctx context.Context, req *pipeline.BetRequest) error {
		// click amount field, select-all, type, click play
		time.Sleep(300*time.Millisecond + time.Duration(rand.Intn(200))*time.Millisecond)
		return nil
	}
}
