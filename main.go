package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/auraloop/mindstate/internal/api"
	"github.com/auraloop/mindstate/internal/broadcast"
	"github.com/auraloop/mindstate/internal/config"
	"github.com/auraloop/mindstate/internal/headband"
	"github.com/auraloop/mindstate/internal/session"
	"github.com/auraloop/mindstate/internal/sessiondb"
	"github.com/auraloop/mindstate/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address for the control surface")
	bridgeAddr  = flag.String("bridge", "ws://127.0.0.1:9999/stream", "Headband bridge address (ws://, wss://, or serial:/dev/...)")
	configPath  = flag.String("config", "", "Optional tuning config JSON")
	dbPath      = flag.String("db", "mindstate.db", "Tick archive path, empty to disable persistence")
	autoConnect = flag.Bool("autoconnect", false, "Dial the bridge at startup instead of waiting for /api/connect")
)

// acquisition supervises the bridge link: it owns the dial, the sample pump,
// and the epoch reset on reconnect. It implements api.Acquirer.
type acquisition struct {
	addr string
	cfg  *config.TuningConfig
	sess *session.Session

	mu      sync.Mutex
	link    *headband.Link
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func newAcquisition(addr string, cfg *config.TuningConfig, sess *session.Session) *acquisition {
	return &acquisition{addr: addr, cfg: cfg, sess: sess}
}

func (a *acquisition) Start(ctx context.Context) (headband.DeviceInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return a.link.Info(), nil
	}

	link := headband.NewLink(a.addr, headband.Dial, a.cfg)
	info, err := link.Connect(ctx)
	if err != nil {
		return headband.DeviceInfo{}, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.link = link
	a.cancel = cancel
	a.done = done
	a.running = true

	go func() {
		defer close(done)
		err := link.Run(runCtx, a.sess.HandleSample, a.sess.Reset)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("acquisition stopped: %v", err)
		}
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	return info, nil
}

func (a *acquisition) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	cancel, done, link := a.cancel, a.done, a.link
	a.mu.Unlock()

	cancel()
	<-done
	return link.Close()
}

func (a *acquisition) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *acquisition) Info() headband.DeviceInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.link == nil {
		return headband.DeviceInfo{}
	}
	return a.link.Info()
}

func main() {
	flag.Parse()

	log.Printf("mindstate %s", version.String())

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	}

	sess := session.New(cfg)
	hub := broadcast.NewHub()
	defer hub.Close()

	var archive *sessiondb.DB
	if *dbPath != "" {
		var err error
		archive, err = sessiondb.Open(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open tick archive: %v", err)
		}
		defer archive.Close()
	}

	acq := newAcquisition(*bridgeAddr, cfg, sess)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *autoConnect {
		if _, err := acq.Start(ctx); err != nil {
			log.Fatalf("Failed to connect to bridge: %v", err)
		}
	}

	// tick loop: assemble and publish one composite record per second
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				rec, ok := sess.Tick(now)
				if !ok {
					continue
				}
				if err := hub.Publish(rec); err != nil {
					log.Printf("publish tick: %v", err)
				}
				if archive != nil {
					if err := archive.RecordTick(rec); err != nil {
						log.Printf("archive tick: %v", err)
					}
				}
			case <-ctx.Done():
				log.Printf("tick loop terminated")
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(acq, sess, hub, archive).ServeMux()
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("control surface listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()

	if err := acq.Stop(); err != nil {
		log.Printf("link close error: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
