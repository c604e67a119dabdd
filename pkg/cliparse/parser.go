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

// Package cliparse derives structured CLI state from raw console
// transcripts using pattern matching only — no device protocol knowledge.
//
// The command/output distinction is inherently fuzzy free-text
// classification. Treat it as best effort; the raw delta stays available
// downstream so a misclassified line costs nothing.
package cliparse

import (
	"regexp"
	"strings"
)

// Prompt patterns, most specific first: a config prompt also ends in '#',
// so config must win over privileged, which wins over user.
var (
	configPromptRe     = regexp.MustCompile(`^([A-Za-z0-9._-]*)\(config[^)]*\)#(.*)$`)
	privilegedPromptRe = regexp.MustCompile(`^([A-Za-z0-9._-]*)#(.*)$`)
	userPromptRe       = regexp.MustCompile(`^([A-Za-z0-9._-]*)>(.*)$`)
)

// commandVerbs are first tokens that mark a line as an issued command
// when it follows a bare prompt without an echo.
var commandVerbs = map[string]struct{}{
	"show": {}, "ping": {}, "traceroute": {}, "enable": {}, "disable": {},
	"configure": {}, "conf": {}, "exit": {}, "end": {}, "write": {},
	"copy": {}, "reload": {}, "set": {}, "delete": {}, "commit": {},
	"clear": {}, "no": {}, "interface": {}, "hostname": {}, "monitor": {},
	"debug": {}, "request": {}, "terminal": {},
}

const maxBareCommandLen = 64

// Parse walks a line list left to right and returns the derived CLI
// state. The parser holds no state between calls; pass the cumulative
// transcript when current mode and hostname must be correct, or just the
// delta when only new commands matter.
func Parse(lines []string) *Result {
	res := &Result{
		Prompts:     []Prompt{},
		Commands:    []Command{},
		CurrentMode: ModeUnknown,
	}

	// armed is true after a bare prompt: the next line may be a command
	// typed without a prompt echo.
	armed := false
	armedMode := ModeUnknown

	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t\r")

		prompt, rest, ok := matchPrompt(trimmed)
		if ok {
			res.Prompts = append(res.Prompts, prompt)
			res.CurrentMode = prompt.Mode

			if prompt.Hostname != "" {
				res.Hostname = prompt.Hostname
			}

			rest = strings.TrimSpace(rest)
			if rest != "" {
				// Command echoed on the prompt line itself.
				res.Commands = append(res.Commands, Command{Command: rest, Mode: prompt.Mode})
				armed = false
			} else {
				armed = true
				armedMode = prompt.Mode
			}

			continue
		}

		if armed && looksLikeCommand(trimmed) {
			res.Commands = append(res.Commands, Command{Command: trimmed, Mode: armedMode})
		}

		// Anything else is opaque output; it stays in the raw delta.
		armed = false
	}

	return res
}

// matchPrompt classifies a line as a prompt, returning any trailing
// command echo. Config beats privileged beats user.
func matchPrompt(line string) (Prompt, string, bool) {
	if m := configPromptRe.FindStringSubmatch(line); m != nil {
		return Prompt{Raw: line, Mode: ModeConfig, Hostname: m[1]}, m[2], true
	}

	if m := privilegedPromptRe.FindStringSubmatch(line); m != nil {
		return Prompt{Raw: line, Mode: ModePrivileged, Hostname: m[1]}, m[2], true
	}

	if m := userPromptRe.FindStringSubmatch(line); m != nil {
		return Prompt{Raw: line, Mode: ModeUser, Hostname: m[1]}, m[2], true
	}

	return Prompt{}, "", false
}

// looksLikeCommand filters the line that follows a bare prompt. Output
// lines tend to be indented, long, or free prose; commands are short and
// start with a known verb or at least with no leading whitespace.
func looksLikeCommand(line string) bool {
	if line == "" || line != strings.TrimLeft(line, " \t") {
		return false
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	if _, ok := commandVerbs[strings.ToLower(fields[0])]; ok {
		return true
	}

	return len(line) <= maxBareCommandLen
}
