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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripMarker(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantTS   int64
		wantRest string
		wantOK   bool
	}{
		{
			name:     "marker with space",
			line:     "|1000| Booting paravirtualized kernel on KVM",
			wantTS:   1000,
			wantRest: "Booting paravirtualized kernel on KVM",
			wantOK:   true,
		},
		{
			name:     "marker without space",
			line:     "|42|done",
			wantTS:   42,
			wantRest: "done",
			wantOK:   true,
		},
		{
			name:     "no marker",
			line:     "plain line",
			wantTS:   0,
			wantRest: "plain line",
			wantOK:   false,
		},
		{
			name:     "interface table row is not a marker",
			line:     "| eth0 | up | 10.0.0.5 | 255.255.255.0 | global | 52:54:00:aa:bb:cc |",
			wantTS:   0,
			wantRest: "| eth0 | up | 10.0.0.5 | 255.255.255.0 | global | 52:54:00:aa:bb:cc |",
			wantOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, rest, ok := StripMarker(tt.line)

			assert.Equal(t, tt.wantTS, ts)
			assert.Equal(t, tt.wantRest, rest)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		line         string
		wantSeverity Severity
		wantCategory Category
	}{
		{
			name:         "plain info defaults to system",
			line:         "Random unmatched line",
			wantSeverity: SeverityInfo,
			wantCategory: CategorySystem,
		},
		{
			name:         "error beats category success words",
			line:         "Failed to start daemon",
			wantSeverity: SeverityError,
			wantCategory: CategoryService,
		},
		{
			name:         "critical escalation",
			line:         "Kernel panic - not syncing",
			wantSeverity: SeverityCritical,
			wantCategory: CategoryKernel,
		},
		{
			name:         "warning",
			line:         "DHCP request timed out, retrying",
			wantSeverity: SeverityWarning,
			wantCategory: CategoryNetwork,
		},
		{
			name:         "success",
			line:         "Filesystem check complete",
			wantSeverity: SeveritySuccess,
			wantCategory: CategoryFilesystem,
		},
		{
			name:         "cloud-init wins over service keywords",
			line:         "cloud-init: starting stage init",
			wantSeverity: SeverityInfo,
			wantCategory: CategoryCloudInit,
		},
		{
			name:         "login",
			line:         "getty on tty1 spawned",
			wantSeverity: SeverityInfo,
			wantCategory: CategoryLogin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			severity, category := Classify(tt.line)

			assert.Equal(t, tt.wantSeverity, severity)
			assert.Equal(t, tt.wantCategory, category)
		})
	}
}

func bootTranscript() []string {
	return []string{
		"|1000| Booting paravirtualized kernel on KVM",
		"|1200| Linux version 5.15.0-86-generic (gcc 11.4.0) x86_64",
		"|1250| Kernel command line: BOOT_IMAGE=/vmlinuz root=/dev/vda1 console=ttyS0",
		"|1300| CPU0: Intel(R) Xeon(R) CPU E5-2680 v4 @ 2.40GHz",
		"|1350| smpboot: Total of 4 CPUs activated",
		"|1400| Memory: 3929844K/4193848K available",
		"| eth0 | up | 10.0.0.5 | 255.255.255.0 | global | 52:54:00:aa:bb:cc |",
		"| lo | up | 127.0.0.1 | 255.0.0.0 | host | - |",
		"|2000| Starting: sshd",
		"|2100| Registered: cloud-init",
		"|2200| Registered: sshd",
		"|3000| EXT4-fs error (device vda1): unable to read journal",
		"|3100| network-online.target wait timed out",
		"|4500| System Ready",
	}
}

func TestAnalyzeFullTranscript(t *testing.T) {
	r := Analyze(bootTranscript())

	assert.Equal(t, "5.15.0-86-generic", r.Kernel.Version)
	assert.Equal(t, "x86_64", r.Kernel.Architecture)
	assert.Equal(t, "BOOT_IMAGE=/vmlinuz root=/dev/vda1 console=ttyS0", r.Kernel.CommandLine)

	assert.Equal(t, "Intel(R) Xeon(R) CPU E5-2680 v4 @ 2.40GHz", r.Hardware.CPUModel)
	assert.Equal(t, 4, r.Hardware.CPUCount)
	assert.Equal(t, int64(4193848), r.Hardware.MemoryTotalKB)
	assert.Equal(t, int64(3929844), r.Hardware.MemoryAvailKB)

	require.Len(t, r.Interfaces, 2)
	assert.Equal(t, "eth0", r.Interfaces[0].Name)
	assert.True(t, r.Interfaces[0].Up)
	assert.Equal(t, "10.0.0.5", r.Interfaces[0].Address)
	assert.Equal(t, "52:54:00:aa:bb:cc", r.Interfaces[0].MAC)
	assert.Equal(t, "lo", r.Interfaces[1].Name)
	assert.Empty(t, r.Interfaces[1].MAC)

	// sshd appears twice but is recorded once, keeping its first status.
	require.Len(t, r.Services, 2)
	assert.Equal(t, ServiceEvent{Name: "sshd", Status: "starting"}, r.Services[0])
	assert.Equal(t, ServiceEvent{Name: "cloud-init", Status: "running"}, r.Services[1])

	require.Len(t, r.Errors, 1)
	assert.Equal(t, SeverityError, r.Errors[0].Severity)
	assert.Equal(t, int64(3000), r.Errors[0].Timestamp)

	require.Len(t, r.Warnings, 1)
	assert.Equal(t, int64(3100), r.Warnings[0].Timestamp)

	assert.True(t, r.SystemReady)
	assert.Equal(t, int64(1000), r.BootStart)
	assert.Equal(t, int64(4500), r.ReadyAt)
	assert.Equal(t, int64(3500), r.BootDuration)
}

func TestAnalyzeMidBootHasNoDuration(t *testing.T) {
	r := Analyze([]string{
		"|1000| Booting paravirtualized kernel on KVM",
		"|1200| Linux version 5.15.0-86-generic x86_64",
	})

	assert.False(t, r.SystemReady)
	assert.Zero(t, r.BootDuration)
	assert.Zero(t, r.ReadyAt)
}

func TestAnalyzeTrimmedBufferHasNoDuration(t *testing.T) {
	// Ready marker without a start marker: the ring buffer dropped the
	// early boot lines, so no duration can be derived.
	r := Analyze([]string{
		"|9000| System Ready",
	})

	assert.True(t, r.SystemReady)
	assert.Zero(t, r.BootStart)
	assert.Zero(t, r.BootDuration)
}

func TestAnalyzeFirstMatchWins(t *testing.T) {
	r := Analyze([]string{
		"|100| Linux version 5.15.0 x86_64",
		"|200| Linux version 6.1.0 aarch64",
	})

	assert.Equal(t, "5.15.0", r.Kernel.Version)
	assert.Equal(t, "x86_64", r.Kernel.Architecture)
}

func TestAnalyzeCPUEventLineIsNotModel(t *testing.T) {
	r := Analyze([]string{
		"|100| CPU0: microcode updated early",
		"|200| CPU0: Intel(R) Xeon(R) CPU E5-2680 v4 @ 2.40GHz",
	})

	assert.Equal(t, "Intel(R) Xeon(R) CPU E5-2680 v4 @ 2.40GHz", r.Hardware.CPUModel)
}

func TestAnalyzeEmpty(t *testing.T) {
	r := Analyze(nil)

	assert.NotNil(t, r)
	assert.Empty(t, r.Interfaces)
	assert.Empty(t, r.Services)
	assert.False(t, r.SystemReady)
}
