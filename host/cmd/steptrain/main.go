package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"steptrain/config"
	"steptrain/console"
	"steptrain/core"
	"steptrain/host/gpio"
	"steptrain/host/mcu"
	"steptrain/host/serial"
	"steptrain/motion"
	"steptrain/targets/soft"
	"steptrain/trace"
)

var (
	cfgPath   = flag.String("config", "", "Path to YAML config (defaults if empty)")
	remote    = flag.String("remote", "", "Serial device of a steptrain firmware (e.g. /dev/ttyACM0)")
	baud      = flag.Int("baud", 115200, "Baud rate (ignored for USB CDC)")
	tracePath = flag.String("trace", "", "Write a CBOR capture of the played pulses to this file")
	verbose   = flag.Bool("verbose", false, "Enable debug output")
)

func main() {
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if *remote != "" {
		err = runRemote(ctx)
	} else {
		err = runLocal(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

// runLocal serves the console on stdin/stdout against the software
// peripheral
func runLocal(ctx context.Context) error {
	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			return fmt.Errorf("load config failed: %w", err)
		}
	}

	core.SetDebugWriter(func(s string) { log.Println(s) })
	core.InitAsyncDebug()
	core.SetDebugEnabled(cfg.Debug || *verbose)

	popts := cfg.PeripheralOptions()
	var rec *trace.Recorder
	if *tracePath != "" {
		rec = trace.NewRecorder(popts.Timing)
		popts.Sink = rec
	}
	periph, err := soft.New(popts)
	if err != nil {
		return fmt.Errorf("init peripheral failed: %w", err)
	}

	gpioDriver, err := gpio.NewDriver(cfg.GPIO)
	if err != nil {
		return fmt.Errorf("init GPIO failed: %w", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	c, err := core.New(periph, gpioDriver, motion.Trapezoid{}, cfg.ControllerOptions())
	if err != nil {
		return fmt.Errorf("init controller failed: %w", err)
	}
	if cfg.Peripheral.LockStep {
		periph.SetLockStep(c.WaitIdle)
	}

	for i, ch := range cfg.Channels {
		unit, err := c.Setup(ch.StepPin, ch.DirPin, ch.MinSpeed, ch.MaxSpeed, ch.MaxAccel, ch.StepsPerUnit)
		if err != nil {
			return fmt.Errorf("channels[%d]: %w", i, err)
		}
		fmt.Printf("# unit %d: step=%d dir=%d\n", unit, ch.StepPin, ch.DirPin)
	}

	info := periph.Info()
	fmt.Printf("# %s peripheral: %d channels, window %d, %dns/tick\n",
		info.Name, info.Channels, info.WindowSize, info.TickNanos)

	runErr := console.New(c, os.Stdout).Run(ctx, os.Stdin)

	c.Close()
	periph.Wait()
	if core.IsDebugEnabled() {
		core.DumpTimingRing()
	}

	if rec != nil {
		if err := writeTrace(rec, *tracePath); err != nil {
			return err
		}
	}
	return runErr
}

func writeTrace(rec *trace.Recorder, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trace: %w", err)
	}
	if err := rec.Capture().Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// runRemote forwards stdin to a firmware console
func runRemote(ctx context.Context) error {
	cfg := serial.DefaultConfig(*remote)
	cfg.Baud = *baud

	fmt.Printf("Connecting to MCU on %s...\n", *remote)
	m, err := mcu.ConnectWithConfig(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	go func() {
		for d := range m.Done() {
			if mask, err := mcu.ParseDone(d); err != nil {
				fmt.Printf("cycle 0x%x failed: %v\n", mask, err)
				continue
			}
			fmt.Println(d)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			// Halt every channel before leaving, unless the MCU is gone
			stopped := make(chan struct{})
			go func() {
				m.Exec("stop 0xff")
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-time.After(time.Second):
			}
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "quit" || line == "exit" {
				return nil
			}

			reply, err := m.Exec(line)
			if errors.Is(err, mcu.ErrClosed) {
				return err
			}
			if err != nil {
				fmt.Println(err)
				continue
			}
			for _, s := range reply.Info {
				fmt.Println("# " + s)
			}
			if reply.Value != "" {
				fmt.Println(reply.Value)
			}
		}
	}
}
