// routes_serve.go - Server-Start und Lifecycle-Management
// Enthaelt: Serve() - Hauptfunktion zum Starten des HTTP-Servers

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/taskdrop/taskdrop/envconfig"
	"github.com/taskdrop/taskdrop/logutil"
	"github.com/taskdrop/taskdrop/ml"
	"github.com/taskdrop/taskdrop/ml/backend/cpu"
	"github.com/taskdrop/taskdrop/version"
)

// Serve startet den HTTP-Server auf ln und blockiert bis SIGINT/SIGTERM
func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	backend, err := ml.NewBackend(cpu.Library, ml.BackendParams{NumThreads: int(envconfig.NumThreads())})
	if err != nil {
		return err
	}
	defer backend.Close()

	for _, d := range backend.BackendDevices() {
		slog.Info("inference compute", "id", d.DeviceID, "name", d.Name, "description", d.Description)
	}

	s := &Server{addr: ln.Addr(), backend: backend}
	h, err := s.GenerateRoutes()
	if err != nil {
		return err
	}

	ctx, done := context.WithCancel(context.Background())
	defer done()

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	srvr := &http.Server{Handler: h}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			srvr.Close()
		case <-ctx.Done():
		}
	}()

	if err := srvr.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
