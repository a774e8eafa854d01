/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package models defines the shared data types of the punchsync pipeline.
package models

import "fmt"

// Device is the immutable configuration of one attendance terminal.
// Identity is the numeric ID; Name is only used in operator-facing output.
type Device struct {
	ID      int    `json:"device_id"`
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
	Port    int    `json:"port"`
	Driver  string `json:"driver,omitempty"`
}

// Addr returns the host:port dial target for the device.
func (d Device) Addr() string {
	return fmt.Sprintf("%s:%d", d.Address, d.Port)
}

// ConnectionState tracks the lifecycle of a device connection. It is
// mutated only by the device's supervisor.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
