// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

// Package console is the ishell front end of tmcmctl.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/abiosoft/ishell"
	tmcm "github.com/hootrhino/gotmcm"
	"go.uber.org/zap"
)

// Publisher receives every monitor cycle.
type Publisher interface {
	Publish(module uint8, samples []tmcm.Sample) error
}

// Options configures a Shell.
type Options struct {
	Interactive bool
	OutputJSON  bool
	Timeout     time.Duration // Per command; zero means no limit
	Poller      tmcm.PollerConfig
	Monitor     []string // Parameters read by "monitor start" without arguments
	Catalog     *tmcm.Catalog
	Publisher   Publisher
	Logger      *zap.Logger
	Output      io.Writer // Monitor samples; defaults to stdout
	PollerLog   io.Writer // Leveled lines from the poller
}

// Shell binds a Client to ishell commands.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell   *ishell.Shell
	Client  *tmcm.Client
	Catalog *tmcm.Catalog

	ctx       context.Context
	timeout   time.Duration
	poller    *tmcm.ParameterPoller
	monitor   []string
	publisher Publisher
	logger    *zap.Logger

	outMu sync.Mutex
	out   io.Writer
}

const (
	shellKey = "$shell"
	prompt   = "tmcm %d > "
)

// New creates a Shell with all commands registered.
func New(ctx context.Context, client *tmcm.Client, opts Options) *Shell {
	s := newShell(ctx, client, opts)
	s.Shell = ishell.New()
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(fmt.Sprintf(prompt, client.ModuleAddress()))
	for _, cmd := range commands {
		s.Shell.AddCmd(s.ishellCmd(cmd))
	}
	return s
}

func newShell(ctx context.Context, client *tmcm.Client, opts Options) *Shell {
	if opts.Catalog == nil {
		opts.Catalog = tmcm.DefaultCatalog()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	s := &Shell{
		Interactive: opts.Interactive,
		OutputJSON:  opts.OutputJSON,
		Client:      client,
		Catalog:     opts.Catalog,
		ctx:         ctx,
		timeout:     opts.Timeout,
		poller:      tmcm.NewParameterPoller(client, opts.Poller),
		monitor:     opts.Monitor,
		publisher:   opts.Publisher,
		logger:      opts.Logger,
		out:         opts.Output,
	}
	s.poller.SetLogger(opts.PollerLog)
	s.poller.SetOnData(s.onSamples)
	s.poller.SetOnError(func(err error) {
		s.logger.Warn("monitor read failed", zap.Error(err))
	})
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

func (s *Shell) ishellCmd(cmd *command) *ishell.Cmd {
	return &ishell.Cmd{
		Name:    cmd.name,
		Aliases: cmd.aliases,
		Help:    cmd.help,
		Func: func(c *ishell.Context) {
			out, err := ShellFrom(c).Eval(cmd.name, c.Args...)
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(out)
		},
	}
}

// Eval runs one command and returns its formatted output.
func (s *Shell) Eval(name string, args ...string) (string, error) {
	cmd := lookupCommand(name)
	if cmd == nil {
		return "", fmt.Errorf("unknown command: %s", name)
	}
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	res, err := cmd.run(ctx, s, args)
	if err != nil {
		return "", err
	}
	return s.format(res)
}

func (s *Shell) format(res result) (string, error) {
	if s.OutputJSON {
		out, err := json.Marshal(res)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	return res.Text(), nil
}

func (s *Shell) onSamples(samples []tmcm.Sample) {
	module := s.Client.ModuleAddress()
	if s.publisher != nil {
		if err := s.publisher.Publish(module, samples); err != nil {
			s.logger.Warn("publish samples failed", zap.Error(err))
		}
	}
	out, err := s.format(samplesResult(samples))
	if err != nil {
		s.logger.Error("format samples", zap.Error(err))
		return
	}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintln(s.out, out)
}

// Close stops the monitor.
func (s *Shell) Close() error {
	s.poller.Stop()
	return nil
}

// Run evaluates args as one command when given, otherwise starts the
// interactive shell.
func (s *Shell) Run(args ...string) error {
	defer s.Close()
	if len(args) > 0 {
		out, err := s.Eval(args[0], args[1:]...)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, out)
		return nil
	}
	if !s.Interactive {
		return fmt.Errorf("command expected")
	}
	s.Shell.Printf("TMCM console, module %d. Type help for commands.\n", s.Client.ModuleAddress())
	s.Shell.Run()
	return nil
}

func splitTarget(spec string) (tmcm.Scope, string) {
	if scope, name, ok := strings.Cut(spec, ":"); ok {
		if parsed, err := tmcm.ParseScope(scope); err == nil {
			return parsed, name
		}
	}
	return "", spec
}
