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

// Package bootlog extracts machine facts from an unstructured boot
// transcript: kernel ring-buffer style text where each line may carry a
// leading |<timestamp>| marker in the device's own time unit.
//
// Everything here is best-effort keyword and regex matching over text
// from an unknown device. A line matching nothing is simply left
// unclassified.
package bootlog

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	markerRe = regexp.MustCompile(`^\|(\d+)\|\s?(.*)$`)

	kernelVersionRe = regexp.MustCompile(`Linux version (\S+)`)
	kernelArchRe    = regexp.MustCompile(`\b(x86_64|aarch64|arm64|armv7l|i686|riscv64|ppc64le|s390x)\b`)
	cmdlineRe       = regexp.MustCompile(`Kernel command line:\s*(.+)$`)
	cpuModelRe      = regexp.MustCompile(`CPU\d*:\s*(.+)$`)
	cpuCountRe      = regexp.MustCompile(`(\d+)\s+CPUs\b`)
	memoryRe        = regexp.MustCompile(`Memory:\s*(\d+)K/(\d+)K available`)
	interfaceRe     = regexp.MustCompile(`^\|\s*([A-Za-z0-9./_-]+)\s*\|\s*(up|down)\s*\|\s*(\S+)\s*\|\s*(\S+)\s*\|\s*(\S+)\s*\|\s*(\S+)\s*\|$`)
	serviceRe       = regexp.MustCompile(`(?i)\b(starting|registered|enabled):\s*([A-Za-z0-9._@-]+)`)
)

const (
	bootStartMarker = "Booting paravirtualized kernel"
	systemReadyText = "System Ready"
)

// Keyword families, checked in precedence order: error beats warning
// beats success beats category keywords.
var (
	errorKeywords    = []string{"error", "fail", "fatal", "panic", "cannot", "unable", "segfault", "oops"}
	criticalKeywords = []string{"fatal", "critical", "panic"}
	warningKeywords  = []string{"warn", "deprecated", "retrying", "timed out", "timeout"}
	successKeywords  = []string{"ok", "done", "success", "ready", "started", "finished", "complete"}

	categoryKeywords = []struct {
		category Category
		words    []string
	}{
		{CategoryCloudInit, []string{"cloud-init"}},
		{CategoryKernel, []string{"kernel", "linux version", "initrd", "initramfs", "acpi"}},
		{CategoryNetwork, []string{"eth", "link", "dhcp", "network", "interface", "route", "mac address"}},
		{CategoryFilesystem, []string{"mount", "ext4", "xfs", "filesystem", "fsck", "disk"}},
		{CategoryService, []string{"service", "daemon", "systemd", "starting", "registered"}},
		{CategoryLogin, []string{"login", "getty", "tty"}},
	}
)

// StripMarker removes a leading |digits| timestamp marker, returning the
// marker value, the remainder, and whether a marker was present.
func StripMarker(line string) (int64, string, bool) {
	m := markerRe.FindStringSubmatch(line)
	if m == nil {
		return 0, line, false
	}

	ts, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, line, false
	}

	return ts, m[2], true
}

// Classify assigns a severity and category to one boot-log line (marker
// already stripped). Nothing here ever fails: an unmatched line is
// system/info.
func Classify(line string) (Severity, Category) {
	lower := strings.ToLower(line)

	severity := SeverityInfo

	switch {
	case containsAny(lower, errorKeywords):
		severity = SeverityError
		if containsAny(lower, criticalKeywords) {
			severity = SeverityCritical
		}
	case containsAny(lower, warningKeywords):
		severity = SeverityWarning
	case containsAny(lower, successKeywords):
		severity = SeveritySuccess
	}

	for _, ck := range categoryKeywords {
		if containsAny(lower, ck.words) {
			return severity, ck.category
		}
	}

	return severity, CategorySystem
}

func containsAny(line string, words []string) bool {
	for _, w := range words {
		if strings.Contains(line, w) {
			return true
		}
	}

	return false
}

// Analyze runs the whole-transcript extraction passes over a complete
// boot transcript and returns the aggregate report. Single-valued fields
// keep their first match; interface rows and service events accumulate.
func Analyze(lines []string) *Report {
	r := &Report{
		Interfaces: []NetworkInterface{},
		Services:   []ServiceEvent{},
		Errors:     []Entry{},
		Warnings:   []Entry{},
	}

	var haveStart, haveReady bool

	seenServices := make(map[string]struct{})

	for _, raw := range lines {
		ts, line, _ := StripMarker(raw)

		r.extractKernel(line)
		r.extractHardware(line)

		if m := interfaceRe.FindStringSubmatch(line); m != nil {
			r.Interfaces = append(r.Interfaces, NetworkInterface{
				Name:    m[1],
				Up:      m[2] == "up",
				Address: dashEmpty(m[3]),
				Mask:    dashEmpty(m[4]),
				Scope:   dashEmpty(m[5]),
				MAC:     dashEmpty(m[6]),
			})
		}

		if m := serviceRe.FindStringSubmatch(line); m != nil {
			name := m[2]
			if _, dup := seenServices[name]; !dup {
				seenServices[name] = struct{}{}

				status := "running"
				if strings.EqualFold(m[1], "starting") {
					status = "starting"
				}

				r.Services = append(r.Services, ServiceEvent{Name: name, Status: status})
			}
		}

		if !haveStart && strings.Contains(line, bootStartMarker) {
			r.BootStart = ts
			haveStart = true
		}

		if !haveReady && strings.Contains(line, systemReadyText) {
			r.ReadyAt = ts
			haveReady = true
			r.SystemReady = true
		}

		severity, _ := Classify(line)

		switch severity {
		case SeverityError, SeverityCritical:
			r.Errors = append(r.Errors, Entry{Message: line, Severity: severity, Timestamp: ts})
		case SeverityWarning:
			r.Warnings = append(r.Warnings, Entry{Message: line, Severity: severity, Timestamp: ts})
		}
	}

	// Boot duration needs both markers; a transcript captured mid-boot or
	// with the ring buffer trimmed gets no duration at all.
	if haveStart && haveReady {
		r.BootDuration = r.ReadyAt - r.BootStart
	}

	return r
}

// extractKernel fills the kernel facts on first match.
func (r *Report) extractKernel(line string) {
	if r.Kernel.Version == "" {
		if m := kernelVersionRe.FindStringSubmatch(line); m != nil {
			r.Kernel.Version = m[1]

			if arch := kernelArchRe.FindString(line); arch != "" {
				r.Kernel.Architecture = arch
			}
		}
	}

	if r.Kernel.CommandLine == "" {
		if m := cmdlineRe.FindStringSubmatch(line); m != nil {
			r.Kernel.CommandLine = strings.TrimSpace(m[1])
		}
	}
}

// extractHardware fills CPU and memory facts on first match.
func (r *Report) extractHardware(line string) {
	if r.Hardware.CPUModel == "" && strings.Contains(line, "CPU") {
		if m := cpuModelRe.FindStringSubmatch(line); m != nil {
			model := strings.TrimSpace(m[1])
			// Rows like "CPU0: microcode updated" are events, not models.
			if strings.Contains(model, "@") || strings.Contains(model, "Hz") {
				r.Hardware.CPUModel = model
			}
		}
	}

	if r.Hardware.CPUCount == 0 {
		if m := cpuCountRe.FindStringSubmatch(line); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				r.Hardware.CPUCount = n
			}
		}
	}

	if r.Hardware.MemoryTotalKB == 0 {
		if m := memoryRe.FindStringSubmatch(line); m != nil {
			avail, _ := strconv.ParseInt(m[1], 10, 64)
			total, _ := strconv.ParseInt(m[2], 10, 64)
			r.Hardware.MemoryAvailKB = avail
			r.Hardware.MemoryTotalKB = total
		}
	}
}

func dashEmpty(s string) string {
	if s == "-" {
		return ""
	}

	return s
}
