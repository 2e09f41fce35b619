// Package interactive provides the interactive command-line interface
// for indi-client.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/chzyer/readline"

	"github.com/indi-protocol/indi-go/pkg/connection"
	"github.com/indi-protocol/indi-go/pkg/inspect"
	"github.com/indi-protocol/indi-go/pkg/property"
	"github.com/indi-protocol/indi-go/pkg/version"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Shell handles interactive mode for indi-client.
type Shell struct {
	backend   Backend
	formatter *inspect.Formatter
	rl        *readline.Instance
	out       io.Writer

	watch    atomic.Bool
	messages atomic.Bool
}

// Config configures the shell's line editor.
type Config struct {
	// HistoryFile keeps command history between runs (optional).
	HistoryFile string
}

// New creates a shell reading from the terminal.
func New(backend Backend, cfg Config) (*Shell, error) {
	s := newShell(backend, nil)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "indi> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		HistoryFile:     cfg.HistoryFile,
		AutoComplete:    s.completer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	s.rl = rl
	s.out = rl.Stdout()
	return s, nil
}

func newShell(backend Backend, out io.Writer) *Shell {
	s := &Shell{
		backend:   backend,
		formatter: inspect.NewFormatter(),
		out:       out,
	}
	s.messages.Store(true)
	return s
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (s *Shell) Stdout() io.Writer {
	return s.out
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}

		if s.Execute(line) {
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the shell should exit.
func (s *Shell) Execute(line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}
	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "help", "?":
		s.printHelp()
	case "devices", "ls":
		s.cmdDevices()
	case "show", "i":
		s.cmdShow(rest)
	case "get", "r":
		s.cmdGet(rest)
	case "set", "w":
		s.cmdSet(rest)
	case "refresh":
		s.cmdRefresh(rest)
	case "connect":
		s.cmdConnect(rest, true)
	case "disconnect":
		s.cmdConnect(rest, false)
	case "blob":
		s.cmdBLOB(rest)
	case "watch":
		s.cmdToggle(&s.watch, "watch", rest)
	case "messages":
		s.cmdToggle(&s.messages, "messages", rest)
	case "check":
		s.cmdCheck(rest)
	case "status":
		fmt.Fprintln(s.out, s.backend.Status())
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

// HandleChange prints property changes while watch is on.
func (s *Shell) HandleChange(c property.Change) {
	if s.watch.Load() {
		fmt.Fprintln(s.out, s.formatter.FormatChange(c))
	}
}

// HandleMessage prints server notices while messages is on.
func (s *Shell) HandleMessage(m wire.Message) {
	if m.Tag() == wire.TagMessage && s.messages.Load() {
		fmt.Fprintln(s.out, s.formatter.FormatMessage(m))
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
INDI Client Commands:
  Inspection:
    devices                       - List devices
    show <path>                   - Show properties (device[.property])
    get <path>                    - Read element values
    check [device]                - Compare with standard properties

  Control:
    set <device.prop.elem>=<val>  - Send a new element value
    connect <device>              - Connect a device
    disconnect <device>           - Disconnect a device
    blob <device[.prop]> <mode>   - BLOB delivery: never, also, only
    refresh [device]              - Ask the server to redefine properties

  Output:
    watch on|off                  - Print property changes
    messages on|off               - Print server messages
    status                        - Show connection status
    help                          - Show this help
    quit                          - Exit

  Path Format:
    device.property.element, parts may use * and ? wildcards,
    e.g. "CCD Simulator.CCD_EXPOSURE" or "*.CONNECTION.CONNECT"`)
}

// inspector returns an inspector over the current session, or nil after
// printing why none is available.
func (s *Shell) inspector() *inspect.Inspector {
	src := s.backend.Source()
	if src == nil {
		fmt.Fprintf(s.out, "Error: %v\n", connection.ErrNotConnected)
		return nil
	}
	return inspect.NewInspector(src, s.backend)
}

func (s *Shell) cmdDevices() {
	insp := s.inspector()
	if insp == nil {
		return
	}
	devices := insp.Devices()
	if len(devices) == 0 {
		fmt.Fprintln(s.out, "No devices defined yet")
		return
	}
	fmt.Fprintln(s.out, s.formatter.FormatDeviceTable(devices))
}

func (s *Shell) cmdShow(arg string) {
	if arg == "" {
		arg = inspect.Wildcard
	}
	p, err := inspect.ParsePath(arg)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	insp := s.inspector()
	if insp == nil {
		return
	}

	props := insp.Match(p)
	if len(props) == 0 {
		fmt.Fprintf(s.out, "Error: %v: %s\n", inspect.ErrNoMatch, p)
		return
	}
	// Whole devices get the grouped view.
	if p.Property == inspect.Wildcard {
		byDevice := make(map[string][]*property.Property)
		var order []string
		for _, prop := range props {
			if _, ok := byDevice[prop.Device]; !ok {
				order = append(order, prop.Device)
			}
			byDevice[prop.Device] = append(byDevice[prop.Device], prop)
		}
		for _, d := range order {
			fmt.Fprint(s.out, s.formatter.FormatDevice(d, byDevice[d]))
		}
		return
	}
	for _, prop := range props {
		fmt.Fprint(s.out, s.formatter.FormatProperty(prop))
	}
}

func (s *Shell) cmdGet(arg string) {
	if arg == "" {
		fmt.Fprintln(s.out, "Usage: get <device.property[.element]>")
		return
	}
	p, err := inspect.ParsePath(arg)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	insp := s.inspector()
	if insp == nil {
		return
	}
	readings, err := insp.Read(p)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprint(s.out, s.formatter.FormatReadings(readings))
}

func (s *Shell) cmdSet(arg string) {
	p, value, err := inspect.ParseAssignment(arg)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		fmt.Fprintln(s.out, "Usage: set <device.property.element>=<value>")
		return
	}
	insp := s.inspector()
	if insp == nil {
		return
	}
	if err := insp.Write(p, value); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Sent %s = %s\n", p, value)
}

func (s *Shell) cmdRefresh(device string) {
	if err := s.backend.GetProperties(device, ""); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, "Requested property definitions")
}

func (s *Shell) cmdConnect(device string, connect bool) {
	if device == "" {
		fmt.Fprintln(s.out, "Usage: connect|disconnect <device>")
		return
	}
	var err error
	if connect {
		err = s.backend.ConnectDevice(device)
	} else {
		err = s.backend.DisconnectDevice(device)
	}
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Sent CONNECTION to %s\n", device)
}

func (s *Shell) cmdBLOB(arg string) {
	i := strings.LastIndex(arg, " ")
	if i < 0 {
		fmt.Fprintln(s.out, "Usage: blob <device[.property]> <never|also|only>")
		return
	}
	target, modeArg := strings.TrimSpace(arg[:i]), arg[i+1:]
	mode, err := wire.CheckBLOBMode(modeArg)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	device, name, _ := strings.Cut(target, ".")
	if err := s.backend.EnableBLOB(device, name, mode.(string)); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "BLOB mode %s for %s\n", mode, target)
}

func (s *Shell) cmdToggle(flag *atomic.Bool, name, arg string) {
	switch strings.ToLower(arg) {
	case "on":
		flag.Store(true)
	case "off":
		flag.Store(false)
	case "":
		flag.Store(!flag.Load())
	default:
		fmt.Fprintf(s.out, "Usage: %s on|off\n", name)
		return
	}
	state := "off"
	if flag.Load() {
		state = "on"
	}
	fmt.Fprintf(s.out, "%s %s\n", name, state)
}

func (s *Shell) cmdCheck(device string) {
	insp := s.inspector()
	if insp == nil {
		return
	}
	cat, err := version.LoadCurrentCatalogue()
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}

	var names []string
	if device != "" {
		names = []string{device}
	} else {
		for _, d := range insp.Devices() {
			names = append(names, d.Name)
		}
	}
	for _, name := range names {
		res, err := insp.Check(name, cat)
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintf(s.out, "%s: %d standard, %d custom\n", name, res.Standard, res.Custom)
		for _, w := range res.Warnings {
			fmt.Fprintf(s.out, "  warning: %s\n", w)
		}
	}
}

// completer completes command names and known property paths.
func (s *Shell) completer() *readline.PrefixCompleter {
	paths := readline.PcItemDynamic(s.pathCandidates)
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("devices"),
		readline.PcItem("show", paths),
		readline.PcItem("get", paths),
		readline.PcItem("set", paths),
		readline.PcItem("refresh"),
		readline.PcItem("connect"),
		readline.PcItem("disconnect"),
		readline.PcItem("blob"),
		readline.PcItem("watch", readline.PcItem("on"), readline.PcItem("off")),
		readline.PcItem("messages", readline.PcItem("on"), readline.PcItem("off")),
		readline.PcItem("check"),
		readline.PcItem("status"),
		readline.PcItem("quit"),
	)
}

// pathCandidates lists device.property for every known property.
func (s *Shell) pathCandidates(string) []string {
	src := s.backend.Source()
	if src == nil {
		return nil
	}
	var out []string
	for _, d := range src.Devices() {
		props, err := src.Properties(d)
		if err != nil {
			continue
		}
		for _, p := range props {
			out = append(out, d+"."+p.Name)
		}
	}
	return out
}
