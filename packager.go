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
	"encoding/binary"
)

// Codec builds TMCL command frames and decodes replies.
//
// A Codec owns a single command buffer that every encode call overwrites.
// Frames are returned by value, so the caller's copy stays valid, but Raw
// only reflects the most recent encode. A Codec does no locking; share one
// between goroutines only under a lock, or give each goroutine its own.
type Codec struct {
	cmd     Frame
	address uint8
	motor   uint8
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithModuleAddress sets the module address used by the convenience
// encoders. The default is 0.
func WithModuleAddress(address uint8) CodecOption {
	return func(c *Codec) { c.address = address }
}

// WithMotor sets the motor/bank index used by the convenience encoders.
// Single-axis modules only accept 0, which is the default.
func WithMotor(motor uint8) CodecOption {
	return func(c *Codec) { c.motor = motor }
}

// NewCodec creates a Codec with a zeroed command buffer.
func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ModuleAddress returns the address used by the convenience encoders.
func (c *Codec) ModuleAddress() uint8 { return c.address }

// Motor returns the motor/bank index used by the convenience encoders.
func (c *Codec) Motor() uint8 { return c.motor }

// Raw returns the content of the command buffer as left by the last encode.
func (c *Codec) Raw() Frame { return c.cmd }

// BuildFrame writes every field of the command buffer and returns the
// finished frame. Opcode and type are written through unchecked.
func (c *Codec) BuildFrame(moduleAddress, opcode, typeOrBank, motorOrBank uint8, value int32) Frame {
	c.cmd[offsetAddress] = moduleAddress
	c.cmd[offsetCommand] = opcode
	c.cmd[offsetType] = typeOrBank
	c.cmd[offsetMotor] = motorOrBank
	binary.BigEndian.PutUint32(c.cmd[offsetValue:offsetChecksum], uint32(value))
	c.cmd[offsetChecksum] = Checksum(c.cmd[:])
	return c.cmd
}

func (c *Codec) build(cmd Command, typ uint8, value int32) Frame {
	return c.BuildFrame(c.address, uint8(cmd), typ, c.motor, value)
}

// RotateRight spins the motor clockwise at velocity.
func (c *Codec) RotateRight(velocity int32) Frame { return c.build(CmdROR, 0, velocity) }

// RotateLeft spins the motor counter-clockwise at velocity.
func (c *Codec) RotateLeft(velocity int32) Frame { return c.build(CmdROL, 0, velocity) }

// Stop halts the motor.
func (c *Codec) Stop() Frame { return c.build(CmdMST, 0, 0) }

// MoveAbsolute moves to an absolute position.
func (c *Codec) MoveAbsolute(position int32) Frame {
	return c.build(CmdMVP, MoveAbsolute, position)
}

// MoveRelative moves by offset from the current position.
func (c *Codec) MoveRelative(offset int32) Frame {
	return c.build(CmdMVP, MoveRelative, offset)
}

// SetAxisParameter encodes SAP.
func (c *Codec) SetAxisParameter(param Parameter, value int32) Frame {
	return c.build(CmdSAP, uint8(param), value)
}

// GetAxisParameter encodes GAP.
func (c *Codec) GetAxisParameter(param Parameter) Frame {
	return c.build(CmdGAP, uint8(param), 0)
}

// SaveAxisParameter encodes STAP.
func (c *Codec) SaveAxisParameter(param Parameter) Frame {
	return c.build(CmdSTAP, uint8(param), 0)
}

// LoadAxisParameter encodes RSAP.
func (c *Codec) LoadAxisParameter(param Parameter) Frame {
	return c.build(CmdRSAP, uint8(param), 0)
}

// Global parameters carry the bank in byte 3 instead of the motor index.

// SetGlobalParameter encodes SGP.
func (c *Codec) SetGlobalParameter(param Parameter, bank uint8, value int32) Frame {
	return c.BuildFrame(c.address, uint8(CmdSGP), uint8(param), bank, value)
}

// GetGlobalParameter encodes GGP.
func (c *Codec) GetGlobalParameter(param Parameter, bank uint8) Frame {
	return c.BuildFrame(c.address, uint8(CmdGGP), uint8(param), bank, 0)
}

// SaveGlobalParameter encodes STGP.
func (c *Codec) SaveGlobalParameter(param Parameter, bank uint8) Frame {
	return c.BuildFrame(c.address, uint8(CmdSTGP), uint8(param), bank, 0)
}

// LoadGlobalParameter encodes RSGP.
func (c *Codec) LoadGlobalParameter(param Parameter, bank uint8) Frame {
	return c.BuildFrame(c.address, uint8(CmdRSGP), uint8(param), bank, 0)
}

// Current loop

// SetCurrentMax sets the motor current limit.
func (c *Codec) SetCurrentMax(v int32) Frame { return c.SetAxisParameter(ParamMaxCurrent, v) }

// SetCurrent sets the target current for torque mode.
func (c *Codec) SetCurrent(v int32) Frame { return c.SetAxisParameter(ParamTargetCurrent, v) }

// GetCurrent reads the actual motor current.
func (c *Codec) GetCurrent() Frame { return c.GetAxisParameter(ParamActualCurrent) }

// SetCurrentP sets the current loop P gain.
func (c *Codec) SetCurrentP(v int32) Frame { return c.SetAxisParameter(ParamCurrentP, v) }

// SetCurrentI sets the current loop I gain.
func (c *Codec) SetCurrentI(v int32) Frame { return c.SetAxisParameter(ParamCurrentI, v) }

// SetCurrentD sets the current loop D gain.
func (c *Codec) SetCurrentD(v int32) Frame { return c.SetAxisParameter(ParamCurrentD, v) }

// GetCurrentError reads the current loop PID error.
func (c *Codec) GetCurrentError() Frame { return c.GetAxisParameter(ParamPIDCurrentError) }

// GetCurrentErrorSum reads the current loop PID error sum.
func (c *Codec) GetCurrentErrorSum() Frame { return c.GetAxisParameter(ParamPIDCurrentErrorSum) }

// Velocity loop and ramp

// SetVelocity sets the target velocity.
func (c *Codec) SetVelocity(v int32) Frame { return c.SetAxisParameter(ParamTargetVelocity, v) }

// GetVelocity reads the actual velocity.
func (c *Codec) GetVelocity() Frame { return c.GetAxisParameter(ParamActualVelocity) }

// SetVelocityHaltFlag sets the velocity halt flag.
func (c *Codec) SetVelocityHaltFlag(v int32) Frame { return c.SetAxisParameter(ParamVelocityHaltFlag, v) }

// SetVelocityP sets the velocity loop P gain.
func (c *Codec) SetVelocityP(v int32) Frame { return c.SetAxisParameter(ParamVelocityP, v) }

// SetVelocityI sets the velocity loop I gain.
func (c *Codec) SetVelocityI(v int32) Frame { return c.SetAxisParameter(ParamVelocityI, v) }

// SetVelocityD sets the velocity loop D gain.
func (c *Codec) SetVelocityD(v int32) Frame { return c.SetAxisParameter(ParamVelocityD, v) }

// GetVelocityError reads the velocity loop PID error.
func (c *Codec) GetVelocityError() Frame { return c.GetAxisParameter(ParamPIDVelocityError) }

// GetVelocityErrorSum reads the velocity loop PID error sum.
func (c *Codec) GetVelocityErrorSum() Frame { return c.GetAxisParameter(ParamPIDVelocityErrorSum) }

// SetVelocityRampMax sets the maximum ramp velocity.
func (c *Codec) SetVelocityRampMax(v int32) Frame { return c.SetAxisParameter(ParamMaxRampVelocity, v) }

// SetVelocityAcceleration sets the ramp acceleration.
func (c *Codec) SetVelocityAcceleration(v int32) Frame { return c.SetAxisParameter(ParamAccelerationVelocity, v) }

// GetVelocityRamp reads the ramp generator speed.
func (c *Codec) GetVelocityRamp() Frame { return c.GetAxisParameter(ParamRampGeneratorSpeed) }

// SetVelocityRampEnable turns the velocity ramp on or off.
func (c *Codec) SetVelocityRampEnable(v int32) Frame { return c.SetAxisParameter(ParamEnableVelocityRamp, v) }

// DecodeFrame verifies and decodes a reply. See DecodeFrame.
func (c *Codec) DecodeFrame(buf []byte) (ReplyFrame, error) {
	return DecodeFrame(buf)
}

// DecodeFrame verifies the checksum of a 9-byte reply and extracts its
// fields. On error the returned ReplyFrame is the zero value and carries no
// information.
func DecodeFrame(buf []byte) (ReplyFrame, error) {
	if len(buf) != FrameSize {
		return ReplyFrame{}, ErrInvalidFrameLength
	}
	calculated := Checksum(buf)
	if calculated != buf[offsetChecksum] {
		return ReplyFrame{}, &ChecksumError{Calculated: calculated, Received: buf[offsetChecksum]}
	}
	return ReplyFrame{
		ReceiverAddress: buf[0],
		ModuleAddress:   buf[1],
		Status:          buf[2],
		Command:         Command(buf[3]),
		Value:           int32(binary.BigEndian.Uint32(buf[offsetValue:offsetChecksum])),
	}, nil
}
