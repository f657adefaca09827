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

package console

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	tmcm "github.com/hootrhino/gotmcm"
)

type command struct {
	name    string
	aliases []string
	help    string
	run     func(ctx context.Context, s *Shell, args []string) (result, error)
}

var commands = []*command{
	{name: "ror", help: "VELOCITY  rotate right", run: rotate(tmcm.CmdROR)},
	{name: "rol", help: "VELOCITY  rotate left", run: rotate(tmcm.CmdROL)},
	{name: "mst", aliases: []string{"stop"}, help: "stop the motor", run: runStop},
	{name: "mvp", help: "abs|rel VALUE  move to an absolute or relative position", run: runMove},
	{name: "sap", help: "PARAM VALUE  set axis parameter", run: runSAP},
	{name: "gap", help: "PARAM  get axis parameter", run: runGAP},
	{name: "stap", help: "PARAM  store axis parameter to EEPROM", run: runSTAP},
	{name: "rsap", help: "PARAM  restore axis parameter from EEPROM", run: runRSAP},
	{name: "sgp", help: "PARAM VALUE [BANK]  set global parameter", run: runSGP},
	{name: "ggp", help: "PARAM [BANK]  get global parameter", run: runGGP},
	{name: "stgp", help: "PARAM [BANK]  store global parameter to EEPROM", run: runSTGP},
	{name: "rsgp", help: "PARAM [BANK]  restore global parameter from EEPROM", run: runRSGP},
	{name: "raw", help: "OPCODE TYPE MOTOR VALUE  send an arbitrary command", run: runRaw},
	{name: "decode", help: "[command|reply] HEX  annotate a raw frame", run: runDecode},
	{name: "params", aliases: []string{"p"}, help: "[axis|global]  list known parameters", run: runParams},
	{name: "monitor", aliases: []string{"mon"}, help: "start|stop|once|status [PARAM...]  poll parameters", run: runMonitor},
}

func lookupCommand(name string) *command {
	name = strings.ToLower(name)
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd
		}
		for _, alias := range cmd.aliases {
			if alias == name {
				return cmd
			}
		}
	}
	return nil
}

type result interface {
	Text() string
}

type messageResult struct {
	Message string `json:"message"`
}

func (r messageResult) Text() string { return r.Message }

var okResult = messageResult{Message: "OK"}

type replyResult tmcm.ReplyFrame

func (r replyResult) Text() string { return tmcm.ReplyFrame(r).String() }

func (r replyResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Receiver uint8  `json:"receiver"`
		Module   uint8  `json:"module"`
		Status   uint8  `json:"status"`
		Command  string `json:"command"`
		Value    int32  `json:"value"`
	}{r.ReceiverAddress, r.ModuleAddress, r.Status, r.Command.String(), r.Value})
}

type paramResult struct {
	Name      string     `json:"name"`
	Scope     tmcm.Scope `json:"scope"`
	Parameter uint8      `json:"parameter"`
	Bank      uint8      `json:"bank"`
	Value     int32      `json:"value"`
}

func (r paramResult) Text() string {
	if r.Scope == tmcm.ScopeGlobal {
		return fmt.Sprintf("%s[%d] = %d", r.Name, r.Bank, r.Value)
	}
	return fmt.Sprintf("%s = %d", r.Name, r.Value)
}

type entry struct {
	Name        string     `json:"name"`
	Code        uint8      `json:"code"`
	Scope       tmcm.Scope `json:"scope"`
	Description string     `json:"description,omitempty"`
}

type entriesResult []entry

func (r entriesResult) Text() string {
	var b strings.Builder
	for i, e := range r {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-6s %3d  %-28s %s", e.Scope, e.Code, e.Name, e.Description)
	}
	return b.String()
}

type sample struct {
	Name      string     `json:"name"`
	Scope     tmcm.Scope `json:"scope"`
	Parameter uint8      `json:"parameter"`
	Value     int32      `json:"value"`
	Time      time.Time  `json:"ts"`
}

type samplesResult []tmcm.Sample

func (r samplesResult) Text() string {
	if len(r) == 0 {
		return "no samples"
	}
	parts := make([]string, 0, len(r)+1)
	parts = append(parts, r[0].Time.Format("15:04:05.000"))
	for _, s := range r {
		parts = append(parts, fmt.Sprintf("%s=%d", s.Name, s.Value))
	}
	return strings.Join(parts, " ")
}

func (r samplesResult) MarshalJSON() ([]byte, error) {
	out := make([]sample, len(r))
	for i, s := range r {
		out[i] = sample{s.Name, s.Scope, uint8(s.Parameter), s.Value, s.Time}
	}
	return json.Marshal(out)
}

type dumpResult struct {
	Dump string `json:"dump"`
}

func (r dumpResult) Text() string { return strings.TrimRight(r.Dump, "\n") }

func checkArgs(args []string, min, max int, usage string) error {
	if len(args) < min || len(args) > max {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

func parseValue(s string) (int32, error) {
	n, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return int32(n), nil
}

func parseByte(s, what string) (uint8, error) {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", what, s, err)
	}
	return uint8(n), nil
}

func optionalBank(args []string, at int) (uint8, error) {
	if len(args) <= at {
		return 0, nil
	}
	return parseByte(args[at], "bank")
}

func rotate(cmd tmcm.Command) func(context.Context, *Shell, []string) (result, error) {
	return func(ctx context.Context, s *Shell, args []string) (result, error) {
		if err := checkArgs(args, 1, 1, strings.ToLower(cmd.String())+" VELOCITY"); err != nil {
			return nil, err
		}
		velocity, err := parseValue(args[0])
		if err != nil {
			return nil, err
		}
		var reply tmcm.ReplyFrame
		if cmd == tmcm.CmdROL {
			reply, err = s.Client.RotateLeft(ctx, velocity)
		} else {
			reply, err = s.Client.RotateRight(ctx, velocity)
		}
		if err != nil {
			return nil, err
		}
		return replyResult(reply), nil
	}
}

func runStop(ctx context.Context, s *Shell, args []string) (result, error) {
	if err := checkArgs(args, 0, 0, "mst"); err != nil {
		return nil, err
	}
	reply, err := s.Client.Stop(ctx)
	if err != nil {
		return nil, err
	}
	return replyResult(reply), nil
}

func runMove(ctx context.Context, s *Shell, args []string) (result, error) {
	const usage = "mvp abs|rel VALUE"
	if err := checkArgs(args, 2, 2, usage); err != nil {
		return nil, err
	}
	value, err := parseValue(args[1])
	if err != nil {
		return nil, err
	}
	var reply tmcm.ReplyFrame
	switch strings.ToLower(args[0]) {
	case "abs":
		reply, err = s.Client.MoveAbsolute(ctx, value)
	case "rel":
		reply, err = s.Client.MoveRelative(ctx, value)
	default:
		return nil, fmt.Errorf("usage: %s", usage)
	}
	if err != nil {
		return nil, err
	}
	return replyResult(reply), nil
}

func (s *Shell) axisParam(arg string) (tmcm.Parameter, error) {
	return s.Catalog.Resolve(tmcm.ScopeAxis, arg)
}

func (s *Shell) globalParam(arg string) (tmcm.Parameter, error) {
	return s.Catalog.Resolve(tmcm.ScopeGlobal, arg)
}

func runSAP(ctx context.Context, s *Shell, args []string) (result, error) {
	if err := checkArgs(args, 2, 2, "sap PARAM VALUE"); err != nil {
		return nil, err
	}
	param, err := s.axisParam(args[0])
	if err != nil {
		return nil, err
	}
	value, err := parseValue(args[1])
	if err != nil {
		return nil, err
	}
	if err := s.Client.SetAxisParameter(ctx, param, value); err != nil {
		return nil, err
	}
	return okResult, nil
}

func runGAP(ctx context.Context, s *Shell, args []string) (result, error) {
	if err := checkArgs(args, 1, 1, "gap PARAM"); err != nil {
		return nil, err
	}
	param, err := s.axisParam(args[0])
	if err != nil {
		return nil, err
	}
	value, err := s.Client.GetAxisParameter(ctx, param)
	if err != nil {
		return nil, err
	}
	return paramResult{
		Name:      s.Catalog.Name(tmcm.ScopeAxis, param),
		Scope:     tmcm.ScopeAxis,
		Parameter: uint8(param),
		Value:     value,
	}, nil
}

func runSTAP(ctx context.Context, s *Shell, args []string) (result, error) {
	if err := checkArgs(args, 1, 1, "stap PARAM"); err != nil {
		return nil, err
	}
	param, err := s.axisParam(args[0])
	if err != nil {
		return nil, err
	}
	if err := s.Client.SaveAxisParameter(ctx, param); err != nil {
		return nil, err
	}
	return okResult, nil
}

func runRSAP(ctx context.Context, s *Shell, args []string) (result, error) {
	if err := checkArgs(args, 1, 1, "rsap PARAM"); err != nil {
		return nil, err
	}
	param, err := s.axisParam(args[0])
	if err != nil {
		return nil, err
	}
	if err := s.Client.LoadAxisParameter(ctx, param); err != nil {
		return nil, err
	}
	return okResult, nil
}

func runSGP(ctx context.Context, s *Shell, args []string) (result, error) {
	if err := checkArgs(args, 2, 3, "sgp PARAM VALUE [BANK]"); err != nil {
		return nil, err
	}
	param, err := s.globalParam(args[0])
	if err != nil {
		return nil, err
	}
	value, err := parseValue(args[1])
	if err != nil {
		return nil, err
	}
	bank, err := optionalBank(args, 2)
	if err != nil {
		return nil, err
	}
	if err := s.Client.SetGlobalParameter(ctx, param, bank, value); err != nil {
		return nil, err
	}
	return okResult, nil
}

func runGGP(ctx context.Context, s *Shell, args []string) (result, error) {
	if err := checkArgs(args, 1, 2, "ggp PARAM [BANK]"); err != nil {
		return nil, err
	}
	param, err := s.globalParam(args[0])
	if err != nil {
		return nil, err
	}
	bank, err := optionalBank(args, 1)
	if err != nil {
		return nil, err
	}
	value, err := s.Client.GetGlobalParameter(ctx, param, bank)
	if err != nil {
		return nil, err
	}
	return paramResult{
		Name:      s.Catalog.Name(tmcm.ScopeGlobal, param),
		Scope:     tmcm.ScopeGlobal,
		Parameter: uint8(param),
		Bank:      bank,
		Value:     value,
	}, nil
}

func runSTGP(ctx context.Context, s *Shell, args []string) (result, error) {
	if err := checkArgs(args, 1, 2, "stgp PARAM [BANK]"); err != nil {
		return nil, err
	}
	param, err := s.globalParam(args[0])
	if err != nil {
		return nil, err
	}
	bank, err := optionalBank(args, 1)
	if err != nil {
		return nil, err
	}
	if err := s.Client.SaveGlobalParameter(ctx, param, bank); err != nil {
		return nil, err
	}
	return okResult, nil
}

func runRSGP(ctx context.Context, s *Shell, args []string) (result, error) {
	if err := checkArgs(args, 1, 2, "rsgp PARAM [BANK]"); err != nil {
		return nil, err
	}
	param, err := s.globalParam(args[0])
	if err != nil {
		return nil, err
	}
	bank, err := optionalBank(args, 1)
	if err != nil {
		return nil, err
	}
	if err := s.Client.LoadGlobalParameter(ctx, param, bank); err != nil {
		return nil, err
	}
	return okResult, nil
}

func runRaw(ctx context.Context, s *Shell, args []string) (result, error) {
	if err := checkArgs(args, 4, 4, "raw OPCODE TYPE MOTOR VALUE"); err != nil {
		return nil, err
	}
	op, err := tmcm.ParseCommand(args[0])
	if err != nil {
		return nil, err
	}
	typ, err := parseByte(args[1], "type")
	if err != nil {
		return nil, err
	}
	motor, err := parseByte(args[2], "motor")
	if err != nil {
		return nil, err
	}
	value, err := parseValue(args[3])
	if err != nil {
		return nil, err
	}
	address := s.Client.ModuleAddress()
	frame := tmcm.NewCodec(tmcm.WithModuleAddress(address)).BuildFrame(address, uint8(op), typ, motor, value)
	reply, err := s.Client.Exchange(ctx, frame)
	if err != nil {
		return nil, err
	}
	return replyResult(reply), nil
}

func runDecode(_ context.Context, _ *Shell, args []string) (result, error) {
	const usage = "decode [command|reply] HEX"
	if len(args) == 0 {
		return nil, fmt.Errorf("usage: %s", usage)
	}
	role := "reply"
	if r := strings.ToLower(args[0]); r == "command" || r == "reply" {
		role = r
		args = args[1:]
	}
	raw, err := hex.DecodeString(strings.Join(args, ""))
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return dumpResult{Dump: tmcm.DumpFrame(raw, role)}, nil
}

func runParams(_ context.Context, s *Shell, args []string) (result, error) {
	if err := checkArgs(args, 0, 1, "params [axis|global]"); err != nil {
		return nil, err
	}
	scopes := []tmcm.Scope{tmcm.ScopeAxis, tmcm.ScopeGlobal}
	if len(args) == 1 {
		scope, err := tmcm.ParseScope(args[0])
		if err != nil {
			return nil, err
		}
		scopes = []tmcm.Scope{scope}
	}
	var out entriesResult
	for _, scope := range scopes {
		for _, e := range s.Catalog.Entries(scope) {
			out = append(out, entry{e.Name, uint8(e.Code), e.Scope, e.Description})
		}
	}
	return out, nil
}

func runMonitor(ctx context.Context, s *Shell, args []string) (result, error) {
	const usage = "monitor start|stop|once|status [PARAM...]"
	if len(args) == 0 {
		return nil, fmt.Errorf("usage: %s", usage)
	}
	switch strings.ToLower(args[0]) {
	case "start":
		if s.poller.Running() {
			return nil, fmt.Errorf("monitor already running")
		}
		targets, err := s.monitorTargets(args[1:])
		if err != nil {
			return nil, err
		}
		if err := s.poller.Load(targets); err != nil {
			return nil, err
		}
		if err := s.poller.Start(s.ctx); err != nil {
			return nil, err
		}
		return messageResult{Message: fmt.Sprintf("monitoring %d parameters", len(targets))}, nil
	case "stop":
		if !s.poller.Running() {
			return messageResult{Message: "monitor not running"}, nil
		}
		s.poller.Stop()
		return messageResult{Message: "monitor stopped"}, nil
	case "once":
		if s.poller.Running() {
			return nil, fmt.Errorf("monitor running, stop it first")
		}
		targets, err := s.monitorTargets(args[1:])
		if err != nil {
			return nil, err
		}
		if err := s.poller.Load(targets); err != nil {
			return nil, err
		}
		samples, errs := s.poller.PollOnce(ctx)
		if len(errs) > 0 {
			return nil, errs[0]
		}
		return samplesResult(samples), nil
	case "status":
		if !s.poller.Running() {
			return messageResult{Message: "monitor not running"}, nil
		}
		names := make([]string, 0)
		for _, t := range s.poller.Targets() {
			names = append(names, t.Name)
		}
		return messageResult{Message: "monitoring " + strings.Join(names, " ")}, nil
	}
	return nil, fmt.Errorf("usage: %s", usage)
}

// monitorTargets resolves "[axis:|global:]name" specs. An unscoped name is
// looked up in the axis table first.
func (s *Shell) monitorTargets(specs []string) ([]tmcm.PollTarget, error) {
	if len(specs) == 0 {
		specs = s.monitor
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no parameters to monitor")
	}
	return ResolveTargets(s.Catalog, specs)
}

// ResolveTargets turns parameter specs into poll targets.
func ResolveTargets(catalog *tmcm.Catalog, specs []string) ([]tmcm.PollTarget, error) {
	targets := make([]tmcm.PollTarget, 0, len(specs))
	for _, spec := range specs {
		scope, name := splitTarget(spec)
		if scope == "" {
			scope = tmcm.ScopeAxis
			if _, ok := catalog.Lookup(tmcm.ScopeAxis, name); !ok {
				if _, ok := catalog.Lookup(tmcm.ScopeGlobal, name); ok {
					scope = tmcm.ScopeGlobal
				}
			}
		}
		code, err := catalog.Resolve(scope, name)
		if err != nil {
			return nil, err
		}
		targets = append(targets, tmcm.PollTarget{
			Name:      catalog.Name(scope, code),
			Scope:     scope,
			Parameter: code,
		})
	}
	return targets, nil
}
