package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/elm-pilot/elm-pilot/internal/annotate"
	"github.com/elm-pilot/elm-pilot/internal/config"
	"github.com/elm-pilot/elm-pilot/internal/editor"
	"github.com/elm-pilot/elm-pilot/internal/install"
	"github.com/elm-pilot/elm-pilot/internal/lsp"
	"github.com/elm-pilot/elm-pilot/internal/platform"
	"github.com/elm-pilot/elm-pilot/internal/rename"
	"github.com/elm-pilot/elm-pilot/internal/supervisor"
	"github.com/elm-pilot/elm-pilot/internal/text"
)

const mainDoc = `The program elm-pilot supervises an elm-analyzer language server
and translates editor lifecycle events into requests against it.

Elm-pilot resolves the server binary from the configured path, a
previously installed copy, or a sibling development build. When none is
found, the install command downloads the release binary matching this
platform from the elm-analyzer releases.

Commands are read from standard input, one per line:

	restart
	install
	status
	rename <old path> <new path> [<old path> <new path> ...]
	move-function <file> <line> <column> <target module path>
	generate-erd <file> <type name>
	annotate <file>

	Usage: elm-pilot [flags]
`

func usage() {
	os.Stderr.Write([]byte(mainDoc))
	fmt.Fprintf(os.Stderr, "\n")
	flag.PrintDefaults()
	os.Exit(2)
}

type consoleUI struct {
	log zerolog.Logger
}

func (u consoleUI) Notify(msg string) { u.log.Info().Msg(msg) }
func (u consoleUI) Warn(msg string)   { u.log.Warn().Msg(msg) }
func (u consoleUI) Error(msg string)  { u.log.Error().Msg(msg) }

type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	ui        consoleUI
	ws        *editor.FSWorkspace
	sup       *supervisor.Supervisor
	installer *install.Installer
	ann       *annotate.Annotator
	sync      *rename.Synchronizer
}

func main() {
	flag.Usage = usage
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ParseFlags(flag.CommandLine, os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if cfg.ShowConfig {
		config.Write(os.Stdout, cfg)
		return
	}

	log := newLogger(cfg)

	target, err := platform.Resolve(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		// Unrecoverable: no binary can ever be resolved for this host.
		log.Fatal().Err(err).Msg("unsupported platform")
	}

	a, err := newApp(cfg, target, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}

	ctx := context.Background()
	switch err := a.sup.Start(ctx); {
	case err == nil:
	case errors.Is(err, supervisor.ErrBinaryNotFound):
		a.ui.Notify("no elm-analyzer binary found: run 'install' to download it, " +
			"or set -server.path to an existing binary")
	default:
		a.ui.Error(fmt.Sprintf("failed to start elm-analyzer: %v", err))
	}

	go a.watchEvents()
	a.readCommands(ctx, os.Stdin)

	// Deactivation awaits graceful shutdown so no server process is
	// orphaned on normal exit.
	a.sup.Stop(ctx)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

func newApp(cfg *config.Config, target platform.Target, log zerolog.Logger) (*app, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	locator := &install.Locator{
		ConfiguredPath: cfg.ServerPath,
		DataDir:        config.DataDir(),
		ClientDir:      filepath.Dir(exe),
		Target:         target,
	}

	a := &app{
		cfg: cfg,
		log: log,
		ui:  consoleUI{log: log},
		ws:  &editor.FSWorkspace{Roots: cfg.WorkspaceDirectories},
		installer: &install.Installer{
			Target: target,
			Dir:    config.DataDir(),
			Log:    log,
		},
	}

	start := func(ctx context.Context, path string) (supervisor.Connection, error) {
		return lsp.StartServer(ctx, path, lsp.ClientConfig{
			RootDir: cfg.RootDirectory,
			Log:     log,
		})
	}
	a.sup = supervisor.New(locator.Locate, start, log)

	a.ann = &annotate.Annotator{
		Conn: func() (annotate.Server, error) { return a.server() },
		Log:  log,
	}
	a.sync = &rename.Synchronizer{
		Conn:      func() (rename.Server, error) { return a.server() },
		Workspace: a.ws,
		UI:        a.ui,
		Log:       log,
	}
	return a, nil
}

// server returns the current connection. It is looked up per call:
// holding the result across a restart would race with the supervisor
// replacing it.
func (a *app) server() (*lsp.Conn, error) {
	c, err := a.sup.Conn()
	if err != nil {
		return nil, err
	}
	return c.(*lsp.Server).Conn, nil
}

func (a *app) watchEvents() {
	for ev := range a.sup.Events() {
		if ev.Kind == supervisor.EventUnexpectedClose {
			a.ui.Warn("elm-analyzer stopped unexpectedly; run 'restart' to start it again")
		}
	}
}

func (a *app) readCommands(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := a.run(ctx, line); err != nil {
			a.log.Error().Err(err).Msgf("%v failed", strings.Fields(line)[0])
		}
	}
}

func (a *app) run(ctx context.Context, line string) error {
	args := strings.Fields(line)
	switch args[0] {
	case "restart":
		return a.restart(ctx)
	case "install":
		return a.install(ctx)
	case "status":
		return a.status(ctx)
	case "rename":
		if len(args) < 3 || len(args)%2 == 0 {
			return errors.New("usage: rename <old path> <new path> [<old path> <new path> ...]")
		}
		var pairs []rename.Pair
		for i := 1; i < len(args); i += 2 {
			pairs = append(pairs, rename.Pair{OldPath: args[i], NewPath: args[i+1]})
		}
		return a.rename(ctx, pairs)
	case "move-function":
		if len(args) != 5 {
			return errors.New("usage: move-function <file> <line> <column> <target module path>")
		}
		return a.moveFunction(ctx, args[1], args[2], args[3], args[4])
	case "generate-erd":
		if len(args) != 3 {
			return errors.New("usage: generate-erd <file> <type name>")
		}
		return a.generateERD(ctx, args[1], args[2])
	case "annotate":
		if len(args) != 2 {
			return errors.New("usage: annotate <file>")
		}
		return a.annotate(ctx, args[1])
	}
	return errors.Errorf("unknown command %v", args[0])
}

func (a *app) restart(ctx context.Context) error {
	err := a.sup.Restart(ctx)
	if errors.Is(err, supervisor.ErrAlreadyRestarting) {
		a.ui.Warn(err.Error())
		return nil
	}
	if err != nil {
		return err
	}
	a.ann.Reset()
	a.ui.Notify("elm-analyzer restarted")
	return nil
}

func (a *app) install(ctx context.Context) error {
	path, err := a.installer.Install(ctx)
	if err != nil {
		return err
	}
	a.ui.Notify(fmt.Sprintf("installed %v", path))
	return a.restart(ctx)
}

func (a *app) status(ctx context.Context) error {
	fmt.Printf("server: %v\n", a.sup.State())
	if tag := install.InstalledTag(config.DataDir()); tag != "" {
		fmt.Printf("installed: %v\n", tag)
	}
	latest, available, err := a.installer.UpdateAvailable(ctx)
	if err != nil {
		return err
	}
	if available {
		fmt.Printf("update available: %v (run 'install')\n", latest)
	}
	return nil
}

func (a *app) rename(ctx context.Context, pairs []rename.Pair) error {
	results, err := a.sync.WillRename(ctx, pairs)
	if err != nil {
		return err
	}
	// Finalize the renames the edits were computed for.
	for _, res := range results {
		if res.Skipped || res.Err != nil {
			continue
		}
		if err := os.Rename(res.Pair.OldPath, res.Pair.NewPath); err != nil {
			a.ui.Warn(err.Error())
		}
	}
	return nil
}

func (a *app) moveFunction(ctx context.Context, file, lineArg, colArg, target string) error {
	line, err := strconv.Atoi(lineArg)
	if err != nil {
		return errors.Wrap(err, "invalid line")
	}
	col, err := strconv.Atoi(colArg)
	if err != nil {
		return errors.Wrap(err, "invalid column")
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	conn, err := a.server()
	if err != nil {
		return err
	}
	res, err := conn.MoveFunction(ctx, text.ToURI(abs), line, col, target)
	if err != nil {
		return err
	}
	if !res.Success {
		a.ui.Warn(res.Error)
		return nil
	}
	if len(res.Edits) > 0 {
		if err := a.ws.ApplyEdit(res.Edits); err != nil {
			return err
		}
	}
	a.ui.Notify(fmt.Sprintf("moved function to %v (%v files updated)", target, res.FilesChanged))
	return nil
}

func (a *app) generateERD(ctx context.Context, file, typeName string) error {
	abs, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	conn, err := a.server()
	if err != nil {
		return err
	}
	res, err := conn.GenerateERD(ctx, text.ToURI(abs), typeName)
	if err != nil {
		return err
	}
	if !res.Success {
		a.ui.Warn(res.Error)
		return nil
	}
	fmt.Println(res.Text)
	return nil
}

func (a *app) annotate(ctx context.Context, file string) error {
	if !a.cfg.ReferenceCounts {
		return errors.New("reference-count annotations are disabled")
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	body, err := os.ReadFile(abs)
	if err != nil {
		return err
	}
	conn, err := a.server()
	if err != nil {
		return err
	}
	if err := conn.DidOpen(abs, body); err != nil {
		return err
	}
	defer conn.DidClose(abs)

	uri := text.ToURI(abs)
	for _, lens := range a.ann.Lenses(ctx, uri) {
		label, ok := a.ann.Resolve(ctx, lens)
		if !ok {
			continue
		}
		fmt.Printf("%v: %v (%v)\n", lens.Range.Start.Line+1, lens.Name, label.Text)
	}
	return nil
}
