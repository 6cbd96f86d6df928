package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/srvgate/internal/kernel/remote"
	"github.com/GriffinCanCode/srvgate/internal/pm"
	"github.com/GriffinCanCode/srvgate/internal/srv"
)

// env is what a command runs against.
type env struct {
	ctx    context.Context
	kernel *remote.Client
	client *srv.Client
	out    io.Writer
	logger *zap.Logger
}

type command struct {
	usage   string
	help    string
	minArgs int
	run     func(e *env, args []string) error
}

var commands = map[string]command{
	"is-registered": {"NAME", "report whether a service is registered", 1, isRegistered},
	"get-service":   {"NAME", "open a session to a service", 1, getService},
	"get-port":      {"NAME", "fetch a named port", 1, getPort},
	"publish":       {"ID [FLAGS]", "publish a notification to its subscribers", 1, publish},
	"subscribers":   {"ID", "publish and list the subscribed process ids", 1, subscribers},
	"watch":         {"ID...", "subscribe and print notifications until the deadline", 1, watch},
	"launch":        {"TITLE [MEDIA] [FLAGS]", "launch a title through pm:app", 1, launch},
	"exheader":      {"TITLE [MEDIA]", "print a title's exheader flags", 1, exheader},
	"firm-set":      {"HEX", "store FIRM launch parameters", 1, firmSet},
	"firm-get":      {"SIZE", "read FIRM launch parameters", 1, firmGet},
	"firm-launch":   {"TITLE_LOW HEX", "launch FIRM with parameters", 2, firmLaunch},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isRegistered(e *env, args []string) error {
	ok, err := e.client.IsServiceRegistered(e.ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, ok)
	return nil
}

func getService(e *env, args []string) error {
	h, err := e.client.GetServiceHandle(e.ctx, args[0])
	if err != nil {
		return err
	}
	defer e.kernel.CloseHandle(e.ctx, h)
	fmt.Fprintf(e.out, "0x%08X\n", uint32(h))
	return nil
}

func getPort(e *env, args []string) error {
	h, err := e.client.GetPort(e.ctx, args[0])
	if err != nil {
		return err
	}
	defer e.kernel.CloseHandle(e.ctx, h)
	fmt.Fprintf(e.out, "0x%08X\n", uint32(h))
	return nil
}

func publish(e *env, args []string) error {
	id, err := parseUint32(args[0])
	if err != nil {
		return err
	}
	var flags uint32
	if len(args) > 1 {
		if flags, err = parseUint32(args[1]); err != nil {
			return err
		}
	}
	return e.client.PublishToSubscriber(e.ctx, id, flags)
}

func subscribers(e *env, args []string) error {
	id, err := parseUint32(args[0])
	if err != nil {
		return err
	}
	pids := make([]uint32, srv.MaxSubscribers)
	n, err := e.client.PublishAndGetSubscriber(e.ctx, id, pids)
	if err != nil {
		return err
	}
	for _, pid := range pids[:n] {
		fmt.Fprintln(e.out, pid)
	}
	return nil
}

func watch(e *env, args []string) error {
	sem, err := e.client.EnableNotification(e.ctx)
	if err != nil {
		return err
	}
	for _, arg := range args {
		id, err := parseUint32(arg)
		if err != nil {
			return err
		}
		if err := e.client.Subscribe(e.ctx, id); err != nil {
			return err
		}
	}
	for {
		id, err := e.client.WaitNotification(e.ctx, sem)
		if err != nil {
			if e.ctx.Err() != nil {
				return nil
			}
			return err
		}
		fmt.Fprintf(e.out, "0x%X\n", id)
	}
}

func withPM(e *env, fn func(*pm.Client) error) error {
	c := pm.New(e.kernel, e.client, pm.WithLogger(e.logger))
	if err := c.Init(e.ctx); err != nil {
		return err
	}
	defer c.Exit(e.ctx)
	return fn(c)
}

func launch(e *env, args []string) error {
	title, err := parseUint64(args[0])
	if err != nil {
		return err
	}
	media := pm.MediaNAND
	if len(args) > 1 {
		if media, err = parseMedia(args[1]); err != nil {
			return err
		}
	}
	var flags uint32
	if len(args) > 2 {
		if flags, err = parseUint32(args[2]); err != nil {
			return err
		}
	}
	return withPM(e, func(c *pm.Client) error {
		return c.LaunchTitle(e.ctx, media, title, flags)
	})
}

func exheader(e *env, args []string) error {
	title, err := parseUint64(args[0])
	if err != nil {
		return err
	}
	media := pm.MediaNAND
	if len(args) > 1 {
		if media, err = parseMedia(args[1]); err != nil {
			return err
		}
	}
	return withPM(e, func(c *pm.Client) error {
		flags, err := c.GetTitleExheaderFlags(e.ctx, media, title)
		if err != nil {
			return err
		}
		fmt.Fprintln(e.out, hex.EncodeToString(flags[:]))
		return nil
	})
}

func firmSet(e *env, args []string) error {
	params, err := hex.DecodeString(args[0])
	if err != nil {
		return fmt.Errorf("parameters: %w", err)
	}
	return withPM(e, func(c *pm.Client) error {
		return c.SetFIRMLaunchParams(e.ctx, params)
	})
}

func firmGet(e *env, args []string) error {
	size, err := parseUint32(args[0])
	if err != nil {
		return err
	}
	out := make([]byte, size)
	return withPM(e, func(c *pm.Client) error {
		if err := c.GetFIRMLaunchParams(e.ctx, out); err != nil {
			return err
		}
		fmt.Fprintln(e.out, hex.EncodeToString(out))
		return nil
	})
}

func firmLaunch(e *env, args []string) error {
	low, err := parseUint32(args[0])
	if err != nil {
		return err
	}
	params, err := hex.DecodeString(args[1])
	if err != nil {
		return fmt.Errorf("parameters: %w", err)
	}
	return withPM(e, func(c *pm.Client) error {
		return c.LaunchFIRMSetParams(e.ctx, low, params)
	})
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return uint32(v), nil
}

func parseUint64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

func parseMedia(s string) (pm.MediaType, error) {
	switch strings.ToLower(s) {
	case "nand":
		return pm.MediaNAND, nil
	case "sd":
		return pm.MediaSD, nil
	case "card", "gamecard":
		return pm.MediaCard, nil
	default:
		return 0, fmt.Errorf("unknown media %q", s)
	}
}
