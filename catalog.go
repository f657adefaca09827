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

package tmcm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Parameter is the type number used by SAP/GAP/STAP/RSAP and the global
// parameter family. Values are wire constants.
type Parameter uint8

// Axis parameters
const (
	ParamTargetPosition        Parameter = 0
	ParamActualPosition        Parameter = 1
	ParamTargetVelocity        Parameter = 2
	ParamActualVelocity        Parameter = 3
	ParamMaxRampVelocity       Parameter = 4
	ParamMaxCurrent            Parameter = 6
	ParamTargetVelocityFlag    Parameter = 7
	ParamVelocityHaltFlag      Parameter = 9
	ParamTargetReachDistance   Parameter = 10
	ParamAccelerationVelocity  Parameter = 11
	ParamRampGeneratorSpeed    Parameter = 13
	ParamThermalWindingTime    Parameter = 25
	ParamI2tLimit              Parameter = 26
	ParamI2tSum                Parameter = 27
	ParamI2tExceedCounter      Parameter = 28
	ParamI2tClearFlag          Parameter = 29
	ParamMinuteCounter         Parameter = 30
	ParamBLDCInit              Parameter = 31
	ParamVelocityD             Parameter = 133
	ParamCurrentD              Parameter = 134
	ParamEnableVelocityRamp    Parameter = 146
	ParamActualCurrent         Parameter = 150
	ParamSupplyVoltage         Parameter = 151
	ParamDriverTemperature     Parameter = 152
	ParamTargetCurrent         Parameter = 155
	ParamErrorFlags            Parameter = 156
	ParamCommutationMode       Parameter = 159
	ParamEncoderSetNull        Parameter = 161
	ParamSwitchSetNull         Parameter = 162
	ParamEncoderClear          Parameter = 163
	ParamStopSwitch            Parameter = 164
	ParamEncoderOffset         Parameter = 165
	ParamStopSwitchPolarity    Parameter = 166
	ParamCurrentP              Parameter = 172
	ParamCurrentI              Parameter = 173
	ParamStartCurrent          Parameter = 177
	ParamPIDCurrentError       Parameter = 200
	ParamPIDCurrentErrorSum    Parameter = 201
	ParamHallAngle             Parameter = 210
	ParamEncoderAngle          Parameter = 211
	ParamControlAngle          Parameter = 212
	ParamPIDPositionError      Parameter = 226
	ParamPIDVelocityError      Parameter = 228
	ParamPIDVelocityErrorSum   Parameter = 229
	ParamPositionP             Parameter = 230
	ParamVelocityP             Parameter = 234
	ParamVelocityI             Parameter = 235
	ParamSineInitSpeed         Parameter = 241
	ParamSineInitDelay         Parameter = 244
	ParamOvervoltageProtection Parameter = 245
	ParamInitSineMode          Parameter = 249
	ParamEncoderSteps          Parameter = 250
	ParamEncoderDirection      Parameter = 251
	ParamMotorPoles            Parameter = 253
	ParamHallInvert            Parameter = 254
	ParamEnableDriver          Parameter = 255
)

// Global parameters, bank 0
const (
	ParamGlobalRS485BaudRate     Parameter = 65
	ParamGlobalSerialAddress     Parameter = 66
	ParamGlobalEEPROMLock        Parameter = 73
	ParamGlobalTelegramPauseTime Parameter = 75
	ParamGlobalSerialHostAddress Parameter = 76
	ParamGlobalAutoStartMode     Parameter = 77
)

// Scope tells axis parameters apart from global parameters.
type Scope string

const (
	ScopeAxis   Scope = "axis"
	ScopeGlobal Scope = "global"
)

// ParseScope accepts "axis" or "global", case-insensitively.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeAxis:
		return ScopeAxis, nil
	case ScopeGlobal:
		return ScopeGlobal, nil
	}
	return "", fmt.Errorf("invalid scope: %q", s)
}

// CatalogEntry names one parameter code.
type CatalogEntry struct {
	Name        string
	Code        Parameter
	Scope       Scope
	Description string
}

var defaultEntries = []CatalogEntry{
	{Name: "target_position", Code: ParamTargetPosition, Scope: ScopeAxis, Description: "Target position for MVP"},
	{Name: "actual_position", Code: ParamActualPosition, Scope: ScopeAxis, Description: "Actual motor position"},
	{Name: "target_velocity", Code: ParamTargetVelocity, Scope: ScopeAxis, Description: "Target velocity"},
	{Name: "actual_velocity", Code: ParamActualVelocity, Scope: ScopeAxis, Description: "Actual motor velocity"},
	{Name: "max_ramp_velocity", Code: ParamMaxRampVelocity, Scope: ScopeAxis, Description: "Maximum velocity of the ramp generator"},
	{Name: "max_current", Code: ParamMaxCurrent, Scope: ScopeAxis, Description: "Maximum motor current"},
	{Name: "target_velocity_flag", Code: ParamTargetVelocityFlag, Scope: ScopeAxis, Description: "Target velocity reached flag"},
	{Name: "velocity_halt_flag", Code: ParamVelocityHaltFlag, Scope: ScopeAxis, Description: "Motor halted flag"},
	{Name: "target_reach_distance", Code: ParamTargetReachDistance, Scope: ScopeAxis, Description: "Target reached distance"},
	{Name: "acceleration", Code: ParamAccelerationVelocity, Scope: ScopeAxis, Description: "Ramp acceleration"},
	{Name: "ramp_generator_speed", Code: ParamRampGeneratorSpeed, Scope: ScopeAxis, Description: "Actual ramp generator speed"},
	{Name: "thermal_winding_time", Code: ParamThermalWindingTime, Scope: ScopeAxis, Description: "Thermal winding time constant"},
	{Name: "i2t_limit", Code: ParamI2tLimit, Scope: ScopeAxis, Description: "I2t limit"},
	{Name: "i2t_sum", Code: ParamI2tSum, Scope: ScopeAxis, Description: "Actual I2t sum"},
	{Name: "i2t_exceed_counter", Code: ParamI2tExceedCounter, Scope: ScopeAxis, Description: "I2t exceed counter"},
	{Name: "i2t_clear_flag", Code: ParamI2tClearFlag, Scope: ScopeAxis, Description: "Clear I2t exceeded flag"},
	{Name: "minute_counter", Code: ParamMinuteCounter, Scope: ScopeAxis, Description: "Operating minute counter"},
	{Name: "bldc_reinit", Code: ParamBLDCInit, Scope: ScopeAxis, Description: "BLDC re-initialization"},
	{Name: "velocity_d", Code: ParamVelocityD, Scope: ScopeAxis, Description: "Velocity loop D gain"},
	{Name: "current_d", Code: ParamCurrentD, Scope: ScopeAxis, Description: "Current loop D gain"},
	{Name: "enable_velocity_ramp", Code: ParamEnableVelocityRamp, Scope: ScopeAxis, Description: "Enable velocity ramp"},
	{Name: "actual_current", Code: ParamActualCurrent, Scope: ScopeAxis, Description: "Actual motor current"},
	{Name: "supply_voltage", Code: ParamSupplyVoltage, Scope: ScopeAxis, Description: "Actual supply voltage"},
	{Name: "driver_temperature", Code: ParamDriverTemperature, Scope: ScopeAxis, Description: "Actual driver temperature"},
	{Name: "target_current", Code: ParamTargetCurrent, Scope: ScopeAxis, Description: "Target current"},
	{Name: "error_flags", Code: ParamErrorFlags, Scope: ScopeAxis, Description: "Motor error flags"},
	{Name: "commutation_mode", Code: ParamCommutationMode, Scope: ScopeAxis, Description: "Commutation mode"},
	{Name: "encoder_set_null", Code: ParamEncoderSetNull, Scope: ScopeAxis, Description: "Set encoder counter to zero at next null channel event"},
	{Name: "switch_set_null", Code: ParamSwitchSetNull, Scope: ScopeAxis, Description: "Set encoder counter to zero at next switch event"},
	{Name: "encoder_clear_once", Code: ParamEncoderClear, Scope: ScopeAxis, Description: "Clear encoder counter once"},
	{Name: "stop_switch", Code: ParamStopSwitch, Scope: ScopeAxis, Description: "Stop switch enable"},
	{Name: "encoder_offset", Code: ParamEncoderOffset, Scope: ScopeAxis, Description: "Encoder commutation offset"},
	{Name: "stop_switch_polarity", Code: ParamStopSwitchPolarity, Scope: ScopeAxis, Description: "Stop switch polarity"},
	{Name: "current_p", Code: ParamCurrentP, Scope: ScopeAxis, Description: "Current loop P gain"},
	{Name: "current_i", Code: ParamCurrentI, Scope: ScopeAxis, Description: "Current loop I gain"},
	{Name: "start_current", Code: ParamStartCurrent, Scope: ScopeAxis, Description: "Start current"},
	{Name: "current_pid_error", Code: ParamPIDCurrentError, Scope: ScopeAxis, Description: "Current PID error"},
	{Name: "current_pid_error_sum", Code: ParamPIDCurrentErrorSum, Scope: ScopeAxis, Description: "Current PID error sum"},
	{Name: "hall_angle", Code: ParamHallAngle, Scope: ScopeAxis, Description: "Actual hall angle"},
	{Name: "encoder_angle", Code: ParamEncoderAngle, Scope: ScopeAxis, Description: "Actual encoder angle"},
	{Name: "control_angle", Code: ParamControlAngle, Scope: ScopeAxis, Description: "Actual controlled angle"},
	{Name: "position_pid_error", Code: ParamPIDPositionError, Scope: ScopeAxis, Description: "Position PID error"},
	{Name: "velocity_pid_error", Code: ParamPIDVelocityError, Scope: ScopeAxis, Description: "Velocity PID error"},
	{Name: "velocity_pid_error_sum", Code: ParamPIDVelocityErrorSum, Scope: ScopeAxis, Description: "Velocity PID error sum"},
	{Name: "position_p", Code: ParamPositionP, Scope: ScopeAxis, Description: "Position loop P gain"},
	{Name: "velocity_p", Code: ParamVelocityP, Scope: ScopeAxis, Description: "Velocity loop P gain"},
	{Name: "velocity_i", Code: ParamVelocityI, Scope: ScopeAxis, Description: "Velocity loop I gain"},
	{Name: "sine_init_speed", Code: ParamSineInitSpeed, Scope: ScopeAxis, Description: "Sine initialization speed"},
	{Name: "sine_init_delay", Code: ParamSineInitDelay, Scope: ScopeAxis, Description: "Sine initialization delay"},
	{Name: "overvoltage_protection", Code: ParamOvervoltageProtection, Scope: ScopeAxis, Description: "Overvoltage protection enable"},
	{Name: "init_sine_mode", Code: ParamInitSineMode, Scope: ScopeAxis, Description: "Initialization sine mode"},
	{Name: "encoder_steps", Code: ParamEncoderSteps, Scope: ScopeAxis, Description: "Encoder steps per rotation"},
	{Name: "encoder_direction", Code: ParamEncoderDirection, Scope: ScopeAxis, Description: "Encoder direction"},
	{Name: "motor_poles", Code: ParamMotorPoles, Scope: ScopeAxis, Description: "Number of motor poles"},
	{Name: "hall_invert", Code: ParamHallInvert, Scope: ScopeAxis, Description: "Invert hall sensor signals"},
	{Name: "enable_driver", Code: ParamEnableDriver, Scope: ScopeAxis, Description: "Driver enable"},
	{Name: "rs485_baud_rate", Code: ParamGlobalRS485BaudRate, Scope: ScopeGlobal, Description: "RS485/serial baud rate index"},
	{Name: "serial_address", Code: ParamGlobalSerialAddress, Scope: ScopeGlobal, Description: "Module address on the serial bus"},
	{Name: "eeprom_lock", Code: ParamGlobalEEPROMLock, Scope: ScopeGlobal, Description: "Configuration EEPROM lock flag"},
	{Name: "telegram_pause_time", Code: ParamGlobalTelegramPauseTime, Scope: ScopeGlobal, Description: "Pause before sending a reply"},
	{Name: "serial_host_address", Code: ParamGlobalSerialHostAddress, Scope: ScopeGlobal, Description: "Address of the host in replies"},
	{Name: "auto_start_mode", Code: ParamGlobalAutoStartMode, Scope: ScopeGlobal, Description: "Start stored TMCL program on power up"},
}

// Catalog maps parameter names to codes and back. It is advisory: codes it
// does not know are still valid on the wire.
type Catalog struct {
	mu     sync.RWMutex
	byName map[Scope]map[string]CatalogEntry
	byCode map[Scope]map[Parameter]CatalogEntry
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		byName: map[Scope]map[string]CatalogEntry{ScopeAxis: {}, ScopeGlobal: {}},
		byCode: map[Scope]map[Parameter]CatalogEntry{ScopeAxis: {}, ScopeGlobal: {}},
	}
}

// DefaultCatalog returns a catalog holding the TMCM-16xx parameter set.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	for _, e := range defaultEntries {
		if err := c.Add(e); err != nil {
			panic(err)
		}
	}
	return c
}

var builtin = DefaultCatalog()

// Add registers an entry. Names are case-insensitive and must be unique per
// scope; a later entry for an already known code replaces the older name.
func (c *Catalog) Add(e CatalogEntry) error {
	if e.Name == "" {
		return fmt.Errorf("parameter name cannot be empty")
	}
	if e.Scope != ScopeAxis && e.Scope != ScopeGlobal {
		return fmt.Errorf("invalid scope %q for parameter %s", e.Scope, e.Name)
	}
	key := strings.ToLower(e.Name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byName[e.Scope][key]; ok {
		return fmt.Errorf("duplicate %s parameter name: %s", e.Scope, e.Name)
	}
	if old, ok := c.byCode[e.Scope][e.Code]; ok {
		delete(c.byName[e.Scope], strings.ToLower(old.Name))
	}
	c.byName[e.Scope][key] = e
	c.byCode[e.Scope][e.Code] = e
	return nil
}

// Lookup resolves a parameter name to its code.
func (c *Catalog) Lookup(scope Scope, name string) (Parameter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byName[scope][strings.ToLower(strings.TrimSpace(name))]
	return e.Code, ok
}

// Entry returns the catalog entry for a code.
func (c *Catalog) Entry(scope Scope, code Parameter) (CatalogEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byCode[scope][code]
	return e, ok
}

// Name returns the name for a code, or "param<N>" when the code is unknown.
func (c *Catalog) Name(scope Scope, code Parameter) string {
	if e, ok := c.Entry(scope, code); ok {
		return e.Name
	}
	return fmt.Sprintf("param%d", uint8(code))
}

// Resolve accepts either a catalog name or a decimal code.
func (c *Catalog) Resolve(scope Scope, s string) (Parameter, error) {
	if code, ok := c.Lookup(scope, s); ok {
		return code, nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown %s parameter: %s", scope, s)
	}
	return Parameter(n), nil
}

// Entries returns the entries of one scope ordered by code.
func (c *Catalog) Entries(scope Scope) []CatalogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]CatalogEntry, 0, len(c.byCode[scope]))
	for _, e := range c.byCode[scope] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// String returns the axis parameter name from the built-in catalog.
func (p Parameter) String() string {
	return builtin.Name(ScopeAxis, p)
}
