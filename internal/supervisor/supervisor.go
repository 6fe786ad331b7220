// Package supervisor starts and stops the hub's subsystems in dependency
// order (Session Registry -> Control Channel Server -> Chat & Presence
// Engine -> File Transfer Broker -> Audio Mix Engine -> Video/Screen
// Fan-out), and tears them down in reverse on a fatal error or signal.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"lanhub/internal/admin"
	"lanhub/internal/audiomix"
	"lanhub/internal/chat"
	"lanhub/internal/config"
	"lanhub/internal/control"
	"lanhub/internal/registry"
	"lanhub/internal/transfer"
	"lanhub/internal/video"
)

// Supervisor owns every subsystem's lifecycle.
type Supervisor struct {
	cfg config.Config
	log *slog.Logger

	reg     *registry.Registry // A
	ctrl    *control.Server    // B (wires C, D)
	history *chat.History      // C
	broker  *transfer.Broker   // D
	mixer   *audiomix.Mixer    // E
	fanout  *video.Fanout      // F

	admin *admin.Server
}

// New wires every subsystem. Subsystems that bind a socket at
// construction time (audio/video UDP) surface a bind failure here, before
// any goroutine is started.
func New(cfg config.Config, log *slog.Logger) (*Supervisor, error) {
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	reg := registry.New() // A
	history := chat.New() // C
	broker := transfer.New(cfg.UploadDir, log.With(slog.String("component", "transfer"))) // D

	ctrlAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.ControlPort)
	ctrl := control.New(ctrlAddr, reg, history, broker, log.With(slog.String("component", "control"))) // B

	audioAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.AudioPort)
	mixer, err := audiomix.New(audioAddr, reg, log.With(slog.String("component", "audiomix"))) // E
	if err != nil {
		return nil, fmt.Errorf("bind audio socket: %w", err)
	}

	videoAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.VideoPort)
	fanout, err := video.New(videoAddr, reg, log.With(slog.String("component", "video"))) // F
	if err != nil {
		mixer.Close()
		return nil, fmt.Errorf("bind video socket: %w", err)
	}

	ctrl.RegisterMedia(mixer)
	ctrl.RegisterMedia(fanout)

	var adminSrv *admin.Server
	if cfg.AdminAddr != "" {
		adminSrv = admin.New(reg)
	}

	return &Supervisor{
		cfg:     cfg,
		log:     log,
		reg:     reg,
		ctrl:    ctrl,
		history: history,
		broker:  broker,
		mixer:   mixer,
		fanout:  fanout,
		admin:   adminSrv,
	}, nil
}

// Run starts every subsystem and blocks until ctx is canceled or a
// subsystem fails fatally, then shuts down in reverse order within the
// configured budget.
func (sv *Supervisor) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 4)

	go func() { errCh <- sv.ctrl.Run(runCtx) }()
	go func() { sv.mixer.Run(runCtx); errCh <- nil }()
	go func() { sv.fanout.Run(runCtx); errCh <- nil }()
	if sv.admin != nil {
		go func() {
			if err := sv.admin.Start(sv.cfg.AdminAddr); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("admin surface: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case err := <-errCh:
		if err != nil {
			sv.log.Error("subsystem failed, initiating shutdown", slog.Any("err", err))
			runErr = err
		}
		cancel()
	case <-ctx.Done():
		sv.log.Info("shutdown requested")
		cancel()
	}

	sv.shutdown()
	return runErr
}

// shutdown tears down subsystems in reverse startup order, giving each
// step up to the configured budget before moving on to the next close.
func (sv *Supervisor) shutdown() {
	steps := []func() error{sv.fanout.Close, sv.mixer.Close}
	if sv.admin != nil {
		steps = append([]func() error{sv.admin.Shutdown}, steps...)
	}
	for _, step := range steps {
		done := make(chan struct{})
		go func() {
			defer close(done)
			step()
		}()
		select {
		case <-done:
		case <-time.After(sv.cfg.ShutdownTimeout):
			sv.log.Warn("shutdown budget exceeded, forcing close")
		}
	}
}
