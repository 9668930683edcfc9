// Package shell is the interactive terminal front end: it collects
// questions, runs them through the pipeline and prints each intermediate
// step as it happens.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"golang.org/x/term"

	"github.com/querychat/querychat/internal/observability"
	"github.com/querychat/querychat/internal/pipeline"
	"github.com/querychat/querychat/internal/session"
)

const Title = "Chat with your database"

type Runner interface {
	Run(ctx context.Context, req pipeline.Request, observe pipeline.Observer) (pipeline.Outcome, error)
	RetrievalAvailable() bool
}

type ConnectionTester interface {
	TestConnection(ctx context.Context, params session.Params) error
}

type Options struct {
	In          io.Reader
	Out         io.Writer
	Pipeline    Runner
	Connections ConnectionTester
	Store       *session.Store
	Title       string
	// Debug shows the generated SQL and the result rows.
	Debug bool
	RAG   bool
	// Spinner animates progress lines; leave it off when Out is not a terminal.
	Spinner bool
	// Interrupts cancel the question in flight without leaving the shell.
	Interrupts   []os.Signal
	ReadPassword func() (string, error)
	Logger       *slog.Logger
}

type Shell struct {
	in           *bufio.Reader
	out          io.Writer
	pipeline     Runner
	connections  ConnectionTester
	store        *session.Store
	title        string
	debug        bool
	rag          bool
	interrupts   []os.Signal
	readPassword func() (string, error)
	spinner      *spinner
	logger       *slog.Logger
}

func New(opts Options) (*Shell, error) {
	if opts.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if opts.Connections == nil {
		return nil, fmt.Errorf("connection tester is required")
	}
	in := opts.In
	if in == nil {
		in = os.Stdin
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	store := opts.Store
	if store == nil {
		store = session.NewStore(session.Defaults())
	}
	title := opts.Title
	if title == "" {
		title = Title
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Shell{
		in:          bufio.NewReader(in),
		out:         out,
		pipeline:    opts.Pipeline,
		connections: opts.Connections,
		store:       store,
		title:       title,
		debug:       opts.Debug,
		rag:         opts.RAG && opts.Pipeline.RetrievalAvailable(),
		interrupts:  opts.Interrupts,
		spinner:     newSpinner(out, opts.Spinner),
		logger:      logger,
	}
	s.readPassword = opts.ReadPassword
	if s.readPassword == nil {
		s.readPassword = s.defaultReadPassword(in)
	}
	return s, nil
}

// Run reads commands and questions until :quit, end of input or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	printHeader(s.out, s.title)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(s.out, "Input: ")
		line, err := s.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out)
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ":") {
			quit, err := s.command(ctx, line)
			if err != nil {
				printError(s.out, err.Error())
			}
			if quit {
				return nil
			}
			continue
		}
		_ = s.Ask(ctx, line)
	}
}

func (s *Shell) command(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]
	switch name {
	case ":quit", ":exit", ":q":
		return true, nil
	case ":help":
		printHelp(s.out)
	case ":config":
		return false, s.Configure()
	case ":test":
		return false, s.TestConnection(ctx)
	case ":debug":
		on, err := parseToggle(args)
		if err != nil {
			return false, err
		}
		s.debug = on
		printSuccess(s.out, "debug display "+onOff(on))
	case ":rag":
		on, err := parseToggle(args)
		if err != nil {
			return false, err
		}
		if on && !s.pipeline.RetrievalAvailable() {
			return false, errors.New("schema retrieval is not available; start with QUERYCHAT_RAG_ENABLED=true")
		}
		s.rag = on
		printSuccess(s.out, "schema retrieval "+onOff(on))
	default:
		return false, fmt.Errorf("unknown command %s (try :help)", name)
	}
	return false, nil
}

// Configure prompts for every connection setting. An empty answer keeps the
// current value.
func (s *Shell) Configure() error {
	current := s.store.Get()
	fmt.Fprintln(s.out, sectionStyle.Sprint("Database Settings"))

	next := current
	prompts := []struct {
		label string
		dst   *string
	}{
		{"Host", &next.Host},
		{"Port", &next.Port},
		{"User", &next.User},
	}
	for _, p := range prompts {
		if err := s.promptField(p.label, p.dst); err != nil {
			return err
		}
	}

	fmt.Fprint(s.out, "Password (hidden, enter to keep): ")
	password, err := s.readPassword()
	fmt.Fprintln(s.out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if password != "" {
		next.Password = password
	}
	if err := s.promptField("Database", &next.Database); err != nil {
		return err
	}

	if err := next.Validate(); err != nil {
		return err
	}
	s.store.Set(next)
	printSuccess(s.out, "settings saved for "+next.String())
	return nil
}

func (s *Shell) promptField(label string, dst *string) error {
	fmt.Fprintf(s.out, "%s [%s]: ", label, *dst)
	value, err := s.readLine()
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
	return nil
}

// TestConnection connects with the current settings and disconnects again.
func (s *Shell) TestConnection(ctx context.Context) error {
	params := s.store.Get()
	s.spinner.Start("Testing database connection...")
	err := s.connections.TestConnection(ctx, params)
	s.spinner.Stop()
	if err != nil {
		s.logger.WarnContext(ctx, "connection_test_failed", slog.String("connection", params.String()), slog.String("error", observability.Mask(err.Error())))
		return fmt.Errorf("database connection failed: %s", observability.Mask(err.Error()))
	}
	printSuccess(s.out, fmt.Sprintf("Connected to the database %s successfully!", params.Database))
	return nil
}

// Ask runs one question and prints its progress. The returned error has
// already been shown to the user.
func (s *Shell) Ask(ctx context.Context, question string) error {
	if len(s.interrupts) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, s.interrupts...)
		defer stop()
	}

	req := pipeline.Request{
		Question:     question,
		Params:       s.store.Get(),
		UseRetrieval: s.rag,
	}
	s.spinner.Start("Processing your query...")
	_, err := s.pipeline.Run(ctx, req, s.observe)
	s.spinner.Stop()
	if err != nil {
		printError(s.out, userMessage(ctx, err))
	}
	return err
}

func (s *Shell) observe(ev pipeline.Event) {
	switch ev.State {
	case pipeline.StateAwaitingQueryGeneration:
		if ev.Outcome.RetrievedSchema != "" {
			s.spinner.Stop()
			printSection(s.out, "Retrieved Schema Details", ev.Outcome.RetrievedSchema)
			s.spinner.Start("Generating SQL query...")
		}
	case pipeline.StateAwaitingExecution:
		if s.debug {
			s.spinner.Stop()
			printSection(s.out, "Generated SQL Query:", string(ev.Outcome.SQL))
			s.spinner.Start("Running query...")
		}
	case pipeline.StateAwaitingHumanization:
		if s.debug {
			s.spinner.Stop()
			printResultTable(s.out, ev.Outcome.Result)
			s.spinner.Start("Writing the answer...")
		}
	case pipeline.StateDisplaying:
		s.spinner.Stop()
		printSection(s.out, "AI Response:", ev.Outcome.Answer)
	}
}

func userMessage(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return "Cancelled."
	}
	var pipelineErr *pipeline.Error
	if errors.As(err, &pipelineErr) {
		if pipelineErr.Err == nil {
			return pipelineErr.Message
		}
		return pipelineErr.Message + " " + observability.Mask(pipelineErr.Err.Error())
	}
	return err.Error()
}

func (s *Shell) readLine() (string, error) {
	line, err := s.in.ReadString('\n')
	if err != nil && line != "" && errors.Is(err, io.EOF) {
		return strings.TrimRight(line, "\r\n"), nil
	}
	return strings.TrimRight(line, "\r\n"), err
}

func (s *Shell) defaultReadPassword(in io.Reader) func() (string, error) {
	if file, ok := in.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return func() (string, error) {
			secret, err := term.ReadPassword(int(file.Fd()))
			return string(secret), err
		}
	}
	return func() (string, error) {
		line, err := s.readLine()
		if errors.Is(err, io.EOF) {
			err = nil
		}
		return strings.TrimSpace(line), err
	}
}

func parseToggle(args []string) (bool, error) {
	if len(args) != 1 {
		return false, errors.New("expected on or off")
	}
	switch strings.ToLower(args[0]) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", args[0])
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
