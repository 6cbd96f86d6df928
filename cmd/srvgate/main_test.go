package main

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"

	"github.com/GriffinCanCode/srvgate/internal/emulator"
	"github.com/GriffinCanCode/srvgate/internal/infrastructure/config"
	"github.com/GriffinCanCode/srvgate/internal/kernel/remote"
	"github.com/GriffinCanCode/srvgate/internal/pm"
	"github.com/GriffinCanCode/srvgate/internal/result"
)

const homeMenu = "0x0004003000008F02"

func startEmulator(t *testing.T) (*emulator.Emulator, string) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	manifest := config.DefaultManifest()
	manifest.Titles = []config.TitleSpec{{ID: 0x0004003000008F02, Exheader: "0a0b"}}

	emu, err := emulator.New(manifest, 0, logger, nil)
	require.NoError(t, err)

	server := remote.NewServer(emu.Kernel, remote.WithServerLogger(logger))
	gs := grpc.NewServer()
	remote.RegisterKernelServer(gs, server)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go gs.Serve(lis)

	t.Cleanup(func() {
		gs.Stop()
		server.Close()
		emu.Close()
	})
	return emu, lis.Addr().String()
}

func runCLI(t *testing.T, addr string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	args = append([]string{"--addr", addr, "--timeout", "2s"}, args...)
	err := run(context.Background(), args, &out)
	return strings.TrimSpace(out.String()), err
}

func TestCommands(t *testing.T) {
	_, addr := startEmulator(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"registered", []string{"is-registered", "echo"}, "true"},
		{"not registered", []string{"is-registered", "fs:USER"}, "false"},
		{"service handle", []string{"get-service", "pm:app"}, "0x"},
		{"preloaded handle", []string{"--preload", "echo", "get-service", "echo"}, "0x"},
		{"exheader", []string{"exheader", homeMenu, "nand"}, "0a0b000000000000"},
		{"publish without subscribers", []string{"publish", "0x100"}, ""},
		{"no subscribers", []string{"subscribers", "0x100"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, addr, tt.args...)
			require.NoError(t, err)
			if tt.want == "" {
				assert.Empty(t, out)
				return
			}
			assert.True(t, strings.HasPrefix(out, tt.want), "output %q", out)
		})
	}
}

func TestFIRMParameters(t *testing.T) {
	emu, addr := startEmulator(t)

	_, err := runCLI(t, addr, "firm-set", "cafe")
	require.NoError(t, err)

	out, err := runCLI(t, addr, "firm-get", "4")
	require.NoError(t, err)
	assert.Equal(t, "cafe0000", out)

	_, err = runCLI(t, addr, "firm-launch", "0x2", "beef")
	require.NoError(t, err)
	low, launches, params := emu.PM.FIRM()
	assert.Equal(t, uint32(2), low)
	assert.Equal(t, 1, launches)
	assert.Equal(t, []byte{0xbe, 0xef}, params)
}

func TestLaunch(t *testing.T) {
	emu, addr := startEmulator(t)

	_, err := runCLI(t, addr, "launch", homeMenu, "nand", "1")
	require.NoError(t, err)
	require.Len(t, emu.PM.Launches(), 1)
	assert.Equal(t, pm.MediaNAND, emu.PM.Launches()[0].Media)

	_, err = runCLI(t, addr, "launch", "0x1", "sd")
	require.Error(t, err)
	assert.True(t, result.IsKind(err, result.KindProtocol))
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing command", nil},
		{"unknown command", []string{"frobnicate"}},
		{"missing argument", []string{"get-service"}},
		{"bad number", []string{"publish", "ten"}},
		{"bad media", []string{"launch", "1", "tape"}},
	}

	_, addr := startEmulator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, addr, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestPreloadClosesHandlesOnFailure(t *testing.T) {
	emu, _ := startEmulator(t)
	ctx := context.Background()
	p := emu.Kernel.NewProcess("preload")
	t.Cleanup(p.Exit)
	before := p.Handles()

	overrides, err := preload(ctx, p, []string{"echo", "missing"}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Nil(t, overrides)
	assert.Equal(t, result.ServiceNotRegistered, result.CodeOf(err))
	assert.Equal(t, before, p.Handles())

	overrides, err = preload(ctx, p, []string{"echo"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, ok := overrides.Lookup("echo")
	assert.True(t, ok)
	assert.Equal(t, before+1, p.Handles())
}
