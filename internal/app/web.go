package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/tactile_viewer/internal/chart"
	"github.com/relabs-tech/tactile_viewer/internal/config"
	"github.com/relabs-tech/tactile_viewer/internal/fusion"
)

// RunViewer runs the frame loop, the websocket hub and the HTTP server
// until SIGINT or SIGTERM.
func RunViewer(cfg *config.Config, logger *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scene, err := BuildScene(cfg.SceneShape)
	if err != nil {
		return err
	}

	var observers []Observer
	if cfg.MQTTEnabled {
		client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDViewer, logger)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		observers = append(observers, NewPublisher(client, topics(cfg), logger.Named("mqtt")))
	}

	clk := clock.New()
	var engine *Engine
	hub := NewHub(func(c Command) error { return engine.Submit(c) }, cfg.MaxPoints, logger.Named("ws"))
	observers = append(observers, hub)
	engine, err = NewEngine(engineConfig(cfg), scene, sourceFactory(cfg, clk, logger), clk, nil, logger.Named("engine"), observers...)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           newViewerMux(engine, hub, cfg.WebStaticDir, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error {
		logger.Infof("web server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("viewer: shutting down")
	return err
}

func topics(cfg *config.Config) Topics {
	return Topics{Contact: cfg.TopicContact, Force: cfg.TopicForce, Status: cfg.TopicStatus}
}

// newViewerMux registers the browser and API routes.
func newViewerMux(engine *Engine, hub *Hub, staticDir string, logger *zap.SugaredLogger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, engine.State(), logger)
	})

	mux.HandleFunc("GET /api/contact", func(w http.ResponseWriter, r *http.Request) {
		s := engine.State()
		if s.Status != StatusConnected {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, s.Contact, logger)
	})

	mux.HandleFunc("GET /api/points", func(w http.ResponseWriter, r *http.Request) {
		b := hub.PointSet()
		if b == nil {
			http.Error(w, "no points yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(b)
	})

	mux.HandleFunc("GET /api/chart", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, engine.Chart().Snapshot(), logger)
	})
	charts := map[string]func(io.Writer, []fusion.Sample, chart.Options) error{
		"position": chart.RenderPosition,
		"raw":      chart.RenderRaw,
		"force":    chart.RenderForce,
	}
	for name, render := range charts {
		mux.HandleFunc("GET /api/chart/"+name+".png", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("Cache-Control", "no-store")
			if err := render(w, engine.Chart().Snapshot(), chart.DefaultOptions()); err != nil {
				logger.Warnw("chart render error", "chart", name, "error", err)
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		})
	}

	for _, cmd := range []Command{CmdConnect, CmdDisconnect, CmdCalibrate, CmdResample} {
		mux.HandleFunc("POST /api/"+string(cmd), func(w http.ResponseWriter, r *http.Request) {
			if err := engine.Submit(cmd); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, http.StatusAccepted, WSResponse{Type: "ack", Action: string(cmd)}, logger)
		})
	}

	mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}, logger *zap.SugaredLogger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnw("json encode error", "error", err)
	}
}
