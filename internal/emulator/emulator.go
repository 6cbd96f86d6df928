// Package emulator assembles a simulated kernel, the service manager and the
// builtin services named by a manifest.
package emulator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/srvgate/internal/infrastructure/config"
	"github.com/GriffinCanCode/srvgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/srvgate/internal/ipc"
	"github.com/GriffinCanCode/srvgate/internal/kernel/sim"
	"github.com/GriffinCanCode/srvgate/internal/pm"
	"github.com/GriffinCanCode/srvgate/internal/pmsvc"
	"github.com/GriffinCanCode/srvgate/internal/srvmgr"
)

// Emulator is a running service manager with its builtin services.
type Emulator struct {
	Kernel  *sim.Kernel
	Manager *srvmgr.Manager
	// PM is the emulated PM service, nil when the manifest hosts none.
	PM *pmsvc.Service
}

// New starts an emulator for manifest.
func New(manifest *config.Manifest, maxSessions int, logger *zap.Logger, metrics *monitoring.Metrics) (*Emulator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	titles, err := catalog(manifest.Titles)
	if err != nil {
		return nil, err
	}

	k := sim.New(logger)
	m, err := srvmgr.Start(k, maxSessions, srvmgr.WithLogger(logger), srvmgr.WithMetrics(metrics))
	if err != nil {
		return nil, err
	}
	e := &Emulator{Kernel: k, Manager: m}

	for _, s := range manifest.Services {
		var handler sim.Handler
		switch s.Kind {
		case config.KindPM:
			if e.PM == nil {
				e.PM = pmsvc.New(k, logger, titles...)
			}
			handler = e.PM
		case config.KindEcho:
			handler = Echo()
		}
		if err := m.RegisterBuiltin(s.Name, s.MaxSessions, handler); err != nil {
			m.Stop()
			return nil, fmt.Errorf("register %s: %w", s.Name, err)
		}
		logger.Info("builtin service registered",
			zap.String("name", s.Name),
			zap.String("kind", s.Kind),
			zap.Int("max_sessions", s.MaxSessions))
	}
	return e, nil
}

// Close stops the service manager.
func (e *Emulator) Close() {
	e.Manager.Stop()
}

func catalog(specs []config.TitleSpec) ([]pmsvc.Title, error) {
	titles := make([]pmsvc.Title, 0, len(specs))
	for _, t := range specs {
		media, err := t.MediaType()
		if err != nil {
			return nil, err
		}
		flags, err := t.ExheaderBytes()
		if err != nil {
			return nil, err
		}
		titles = append(titles, pmsvc.Title{ID: t.ID, Media: pm.MediaType(media), Exheader: pm.ExheaderFlags(flags)})
	}
	return titles, nil
}

// Echo returns a handler that answers every command with success followed by
// the request's normal parameters.
func Echo() sim.Handler {
	return sim.HandlerFunc(func(_ context.Context, req *sim.Request) error {
		hdr := req.Buf.Header()
		params := append([]uint32(nil), req.Buf.Words[1:1+hdr.Normal()]...)

		b := ipc.NewReply(req.Buf, hdr.CommandID(), 0)
		for _, w := range params {
			b.Word(w)
		}
		return b.Finish()
	})
}
