// Package console exposes a controller over a line protocol. Each line is
// a command; replies are "ok [value]" or "error <code>: <message>".
// Cycles started with "start" run in the background and report "done"
// when they finish, so "stop" can be issued meanwhile.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/google/shlex"

	"steptrain/core"
)

// Console serves one controller
type Console struct {
	c *core.Controller

	mu  sync.Mutex // Serialises replies
	out io.Writer

	ctx context.Context
	wg  sync.WaitGroup
}

type command struct {
	args  int
	usage string
	run   func(con *Console, args []string) (string, error)
	after func(con *Console, args []string) // Runs once the reply is sent
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"setup":  {6, "setup <step_pin> <dir_pin> <min_speed> <max_speed> <max_accel> <steps_per_unit>", (*Console).setup, nil},
		"move":   {6, "move <unit> <distance> <v0> <v> <accel> <jerk>", (*Console).move, nil},
		"start":  {1, "start <mask>", (*Console).start, (*Console).launch},
		"stop":   {1, "stop <mask>", (*Console).stop, nil},
		"status": {1, "status <unit>", (*Console).status, nil},
		"debug":  {1, "debug on|off", (*Console).debug, nil},
		"dump":   {0, "dump", (*Console).dump, nil},
		"help":   {0, "help", (*Console).help, nil},
	}
}

// New creates a console writing replies to out
func New(c *core.Controller, out io.Writer) *Console {
	return &Console{c: c, out: out, ctx: context.Background()}
}

// Run executes commands read from r until EOF or ctx is done. Cycles
// still running when ctx is done are stopped.
func (con *Console) Run(ctx context.Context, r io.Reader) error {
	con.ctx = ctx
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			con.Wait()
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				con.Wait()
				return <-errc
			}
			con.Exec(line)
		}
	}
}

// Wait blocks until every background cycle has finished
func (con *Console) Wait() {
	con.wg.Wait()
}

// Exec runs a single command line
func (con *Console) Exec(line string) {
	fields, err := shlex.Split(line)
	if err != nil {
		con.reply(fmt.Sprintf("error 0: %v", err))
		return
	}
	if len(fields) == 0 {
		return
	}

	name := strings.ToLower(fields[0])
	cmd, ok := commands[name]
	if !ok {
		con.reply(fmt.Sprintf("error 0: unknown command %q, try help", fields[0]))
		return
	}
	if len(fields)-1 != cmd.args {
		con.reply("error 0: usage: " + cmd.usage)
		return
	}

	value, err := cmd.run(con, fields[1:])
	if err != nil {
		con.reply(fmt.Sprintf("error %d: %v", core.Code(err), err))
		return
	}
	if value == "" {
		con.reply("ok")
	} else {
		con.reply("ok " + value)
	}
	if cmd.after != nil {
		cmd.after(con, fields[1:])
	}
}

func (con *Console) reply(s string) {
	con.mu.Lock()
	defer con.mu.Unlock()
	io.WriteString(con.out, s+"\n")
}

func (con *Console) setup(args []string) (string, error) {
	pins, err := parseUints(args[:2], 8)
	if err != nil {
		return "", err
	}
	f, err := parseFloats(args[2:])
	if err != nil {
		return "", err
	}
	unit, err := con.c.Setup(uint8(pins[0]), uint8(pins[1]), f[0], f[1], f[2], f[3])
	if err != nil {
		return "", err
	}
	return strconv.Itoa(int(unit)), nil
}

func (con *Console) move(args []string) (string, error) {
	unit, err := parseUints(args[:1], 8)
	if err != nil {
		return "", err
	}
	f, err := parseFloats(args[1:])
	if err != nil {
		return "", err
	}
	return "", con.c.Move(uint8(unit[0]), f[0], f[1], f[2], f[3], f[4])
}

func (con *Console) start(args []string) (string, error) {
	mask, err := parseUints(args, 32)
	if err != nil {
		return "", err
	}
	if mask[0]>>core.NumChannels != 0 {
		return "", fmt.Errorf("%w: mask %#x", core.ErrInvalidUnit, mask[0])
	}
	for i := uint8(0); i < core.NumChannels; i++ {
		if mask[0]&(1<<i) == 0 {
			continue
		}
		if st, err := con.c.Status(i); err != nil || !st.Configured {
			return "", fmt.Errorf("%w: %d", core.ErrUnitNotSetup, i)
		}
	}
	return "", nil
}

// launch runs a validated start in the background
func (con *Console) launch(args []string) {
	mask, _ := strconv.ParseUint(args[0], 0, 32)
	con.wg.Add(1)
	go func() {
		defer con.wg.Done()
		done := "done " + strconv.FormatUint(mask, 10)
		if err := con.c.StartContext(con.ctx, uint32(mask)); err != nil {
			// Not a command reply, the start was already acknowledged
			con.reply(fmt.Sprintf("%s error %d: %v", done, core.Code(err), err))
			return
		}
		con.reply(done)
	}()
}

func (con *Console) stop(args []string) (string, error) {
	mask, err := parseUints(args, 32)
	if err != nil {
		return "", err
	}
	con.c.Stop(uint32(mask[0]))
	return "", nil
}

func (con *Console) status(args []string) (string, error) {
	unit, err := parseUints(args, 8)
	if err != nil {
		return "", err
	}
	st, err := con.c.Status(uint8(unit[0]))
	if err != nil {
		return "", err
	}
	if !st.Configured {
		return "", fmt.Errorf("%w: %d", core.ErrUnitNotSetup, st.Unit)
	}
	return fmt.Sprintf("unit=%d step=%d dir=%d steps=%d forward=%d active=%d buffered=%d underruns=%d",
		st.Unit, st.StepPin, st.DirPin, st.Steps, btoi(st.Forward), btoi(st.Active), st.Buffered, st.Underruns), nil
}

func (con *Console) debug(args []string) (string, error) {
	switch strings.ToLower(args[0]) {
	case "on", "1":
		core.SetDebugEnabled(true)
	case "off", "0":
		core.SetDebugEnabled(false)
	default:
		return "", fmt.Errorf("expected on or off, got %q", args[0])
	}
	return "", nil
}

func (con *Console) dump(args []string) (string, error) {
	events := core.TimingEvents()
	for _, evt := range events {
		con.reply(fmt.Sprintf("# %s ch=%d clock=%d v1=%d v2=%d",
			core.EventName(evt.EventType), evt.Channel, evt.Clock, evt.Value1, evt.Value2))
	}
	return strconv.Itoa(len(events)), nil
}

func (con *Console) help(args []string) (string, error) {
	names := []string{"setup", "move", "start", "stop", "status", "debug", "dump", "help"}
	for _, name := range names {
		con.reply("# " + commands[name].usage)
	}
	return "", nil
}

func parseUints(args []string, bits int) ([]uint64, error) {
	out := make([]uint64, len(args))
	for i, a := range args {
		v, err := strconv.ParseUint(a, 0, bits)
		if err != nil {
			return nil, fmt.Errorf("bad argument %q", a)
		}
		out[i] = v
	}
	return out, nil
}

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("bad argument %q", a)
		}
		out[i] = v
	}
	return out, nil
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
