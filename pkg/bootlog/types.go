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

package bootlog

// Severity of one classified boot-log line.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeveritySuccess  Severity = "success"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Category is the coarse subsystem a boot-log line belongs to.
type Category string

const (
	CategoryKernel     Category = "kernel"
	CategoryNetwork    Category = "network"
	CategoryFilesystem Category = "filesystem"
	CategoryService    Category = "service"
	CategoryCloudInit  Category = "cloud-init"
	CategoryLogin      Category = "login"
	CategorySystem     Category = "system"
)

// KernelInfo holds the facts parsed from the kernel banner lines.
type KernelInfo struct {
	Version      string `json:"version,omitempty"`
	Architecture string `json:"architecture,omitempty"`
	CommandLine  string `json:"command_line,omitempty"`
}

// HardwareInfo holds CPU and memory facts.
type HardwareInfo struct {
	CPUModel        string `json:"cpu_model,omitempty"`
	CPUCount        int    `json:"cpu_count,omitempty"`
	MemoryTotalKB   int64  `json:"memory_total_kb,omitempty"`
	MemoryAvailKB   int64  `json:"memory_available_kb,omitempty"`
}

// NetworkInterface is one row of the boot transcript's interface table.
type NetworkInterface struct {
	Name    string `json:"name"`
	Up      bool   `json:"up"`
	Address string `json:"address,omitempty"`
	Mask    string `json:"mask,omitempty"`
	Scope   string `json:"scope,omitempty"`
	MAC     string `json:"mac,omitempty"`
}

// ServiceEvent records a service reaching a start state.
type ServiceEvent struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "starting" or "running"
}

// Entry is one classified error or warning line.
type Entry struct {
	Message   string   `json:"message"`
	Severity  Severity `json:"severity"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

// Report aggregates everything extracted from one boot transcript.
// Computed once per analysis; never cached or mutated.
type Report struct {
	Kernel       KernelInfo         `json:"kernel"`
	Hardware     HardwareInfo       `json:"hardware"`
	Interfaces   []NetworkInterface `json:"interfaces"`
	Services     []ServiceEvent     `json:"services"`
	Errors       []Entry            `json:"errors"`
	Warnings     []Entry            `json:"warnings"`
	BootStart    int64              `json:"boot_start,omitempty"`
	ReadyAt      int64              `json:"ready_at,omitempty"`
	BootDuration int64              `json:"boot_duration,omitempty"`
	SystemReady  bool               `json:"system_ready"`
}
