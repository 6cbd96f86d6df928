// Package pmsvc emulates the process manager's launch service. Launching a
// title creates a simulated process for it.
package pmsvc

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/srvgate/internal/ipc"
	"github.com/GriffinCanCode/srvgate/internal/kernel/sim"
	"github.com/GriffinCanCode/srvgate/internal/pm"
	"github.com/GriffinCanCode/srvgate/internal/result"
)

// MaxFIRMParams is the size of the FIRM launch parameter block.
const MaxFIRMParams = 0x1000

var (
	// AlreadyRunning is returned when a title is launched twice.
	AlreadyRunning = result.Make(result.LevelStatus, result.SummaryInvalidState, result.ModulePM, 1)
	// TitleNotFound is returned for titles absent from the catalog.
	TitleNotFound = result.Make(result.LevelPermanent, result.SummaryNotFound, result.ModulePM, 2)
	// ParamsTooLarge is returned for parameter buffers over MaxFIRMParams.
	ParamsTooLarge = result.Make(result.LevelPermanent, result.SummaryInvalidArg, result.ModulePM, 3)
)

// Title is a catalog entry.
type Title struct {
	ID       uint64
	Media    pm.MediaType
	Exheader pm.ExheaderFlags
}

// Launch records one started title.
type Launch struct {
	TitleID uint64
	Media   pm.MediaType
	Flags   uint32
	PID     uint32
}

// Service is the emulated launch service. It implements sim.Handler.
type Service struct {
	kernel *sim.Kernel
	logger *zap.Logger

	mu       sync.Mutex
	catalog  map[uint64]Title
	launched map[uint64]Launch
	params   []byte
	firmLow  uint32
	firmRuns int
}

// New creates a service that launches titles from catalog onto k.
func New(k *sim.Kernel, logger *zap.Logger, catalog ...Title) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		kernel:   k,
		logger:   logger.Named("pmsvc"),
		catalog:  make(map[uint64]Title, len(catalog)),
		launched: make(map[uint64]Launch),
	}
	for _, t := range catalog {
		s.catalog[t.ID] = t
	}
	return s
}

// Launches returns the started titles ordered by process id.
func (s *Service) Launches() []Launch {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Launch, 0, len(s.launched))
	for _, l := range s.launched {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// FIRM returns the low title id of the last FIRM launch, how many FIRM
// launches happened and the current parameter block.
func (s *Service) FIRM() (titleIDLow uint32, launches int, params []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firmLow, s.firmRuns, append([]byte(nil), s.params...)
}

// ServeIPC dispatches one request on a "pm:app" session.
func (s *Service) ServeIPC(_ context.Context, req *sim.Request) error {
	r := ipc.NewReader(req.Buf)
	cmd := r.Header().CommandID()

	var code result.Code
	var extra []uint32
	switch cmd {
	case pm.CmdLaunchTitle:
		code = s.expect(r, cmd, 5, 0, func() result.Code {
			return s.launchTitle(r.Word64(1), pm.MediaType(r.Word(3)), r.Word(5))
		})
	case pm.CmdGetTitleExheaderFlags:
		code = s.expect(r, cmd, 4, 0, func() result.Code {
			flags, c := s.exheaderFlags(r.Word64(1))
			v := binary.LittleEndian.Uint64(flags[:])
			extra = []uint32{uint32(v), uint32(v >> 32)}
			return c
		})
	case pm.CmdSetFIRMLaunchParams:
		code = s.expect(r, cmd, 1, 2, func() result.Code {
			return s.setParams(r, 2, r.Word(1))
		})
	case pm.CmdGetFIRMLaunchParams:
		code = s.expect(r, cmd, 1, 2, func() result.Code {
			return s.getParams(r, 2, r.Word(1))
		})
	case pm.CmdLaunchFIRMSetParams:
		code = s.expect(r, cmd, 2, 2, func() result.Code {
			firmLow := r.Word(1)
			if c := s.setParams(r, 3, r.Word(2)); c.Failed() {
				return c
			}
			s.mu.Lock()
			s.firmLow = firmLow
			s.firmRuns++
			s.mu.Unlock()
			s.logger.Info("FIRM launch", zap.String("title_low", fmt.Sprintf("%08X", firmLow)))
			return result.Success
		})
	default:
		code = result.InvalidCommand
	}

	b := ipc.NewReply(req.Buf, cmd, uint32(code))
	if code.Succeeded() {
		b.Words(extra...)
	}
	return b.Finish()
}

func (s *Service) expect(r *ipc.Reader, cmd uint16, normal, translate int, run func() result.Code) result.Code {
	if err := r.Expect(cmd, normal, translate); err != nil {
		s.logger.Debug("malformed request", zap.Error(err))
		return result.InvalidCommand
	}
	return run()
}

func (s *Service) launchTitle(titleID uint64, media pm.MediaType, flags uint32) result.Code {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.catalog[titleID]
	if !ok || t.Media != media {
		return TitleNotFound
	}
	if _, running := s.launched[titleID]; running {
		return AlreadyRunning
	}
	p := s.kernel.NewProcess(fmt.Sprintf("%016X", titleID))
	s.launched[titleID] = Launch{TitleID: titleID, Media: media, Flags: flags, PID: p.PID()}

	s.logger.Info("title launched",
		zap.String("title", fmt.Sprintf("%016X", titleID)),
		zap.Uint32("pid", p.PID()),
		zap.Uint32("flags", flags))
	return result.Success
}

func (s *Service) exheaderFlags(titleID uint64) (pm.ExheaderFlags, result.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.catalog[titleID]
	if !ok {
		return pm.ExheaderFlags{}, TitleNotFound
	}
	return t.Exheader, result.Success
}

func (s *Service) setParams(r *ipc.Reader, at int, size uint32) result.Code {
	if size > MaxFIRMParams {
		return ParamsTooLarge
	}
	b, err := r.Buffer(at)
	if err != nil || uint32(len(b.Data)) != size || b.Rights&ipc.BufferR == 0 {
		return result.InvalidDescriptor
	}

	s.mu.Lock()
	s.params = append(s.params[:0], b.Data...)
	s.mu.Unlock()
	return result.Success
}

func (s *Service) getParams(r *ipc.Reader, at int, size uint32) result.Code {
	b, err := r.Buffer(at)
	if err != nil || uint32(len(b.Data)) != size || b.Rights&ipc.BufferW == 0 {
		return result.InvalidDescriptor
	}

	s.mu.Lock()
	n := copy(b.Data, s.params)
	s.mu.Unlock()
	clear(b.Data[n:])
	return result.Success
}
