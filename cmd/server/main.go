// Package main boots the container and runs retrieval queries against it,
// one per newline-delimited JSON line read from stdin, a minimal demo
// entry point since HTTP/WebSocket framing around the
// pipeline is out of scope (spec.md §6's "external control surface").
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wekui/ragcore/internal/config"
	"github.com/wekui/ragcore/internal/container"
	"github.com/wekui/ragcore/internal/core"
	"github.com/wekui/ragcore/internal/runtime"
	"github.com/wekui/ragcore/internal/tracing"
	"github.com/wekui/ragcore/internal/retrieval"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.SetOutput(os.Stdout)

	c := container.BuildContainer(runtime.GetContainer())

	err := c.Invoke(func(
		cfg *config.Config,
		pipeline *retrieval.Pipeline,
		tracer *tracing.Tracer,
		resourceCleaner core.ResourceCleaner,
	) error {
		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 30 * time.Second
		}

		resourceCleaner.RegisterWithName("Tracer", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return tracer.Cleanup(ctx)
		})

		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		done := make(chan struct{})
		go func() {
			<-signals
			log.Println("received shutdown signal, cleaning up...")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if errs := resourceCleaner.Cleanup(ctx); len(errs) > 0 {
				log.Printf("errors during cleanup: %v", errs)
			}
			close(done)
		}()

		log.Println("ragcore ready, reading newline-delimited JSON queries from stdin")
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case <-done:
				return nil
			default:
			}

			var query core.Query
			if err := json.Unmarshal(scanner.Bytes(), &query); err != nil {
				fmt.Fprintf(os.Stderr, "invalid query: %v\n", err)
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			result, err := pipeline.Run(ctx, query, nil)
			cancel()
			if err != nil {
				fmt.Fprintf(os.Stderr, "pipeline error: %v\n", err)
				continue
			}

			encoded, _ := json.Marshal(result)
			fmt.Println(string(encoded))
		}

		<-done
		return nil
	})
	if err != nil {
		log.Fatalf("failed to run application: %v", err)
	}
}
