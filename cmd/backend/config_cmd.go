// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ManuGH/backend/internal/config"
	"gopkg.in/yaml.v3"
)

// Exit codes shared by the config subcommands.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func runConfigCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(stderr)
		return exitOK
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], stdout, stderr)
	case "dump":
		return runConfigDump(args[1:], stdout, stderr)
	case "env":
		return runConfigEnv(args[1:], stdout, stderr)
	case "diff":
		return runConfigDiff(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage(stderr)
		return exitUsage
	}
}

func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  backend config validate [--base-dir DIR] [--env-file FILE]")
	fmt.Fprintln(w, "  backend config dump [--base-dir DIR] [--env-file FILE] [--format=yaml|json]")
	fmt.Fprintln(w, "  backend config env [--format=text|json] [--template FILE]")
	fmt.Fprintln(w, "  backend config diff --against FILE [--base-dir DIR] [--env-file FILE]")
}

func newConfigFlagSet(name string, stderr io.Writer, c *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("backend config "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	if c != nil {
		c.register(fs)
	}
	return fs
}

// loadQuiet loads settings with logs on stderr so stdout stays machine readable.
func loadQuiet(c commonFlags, stderr io.Writer) (config.Settings, *config.Loader, error) {
	bootstrapLogging(stderr)
	l := c.loader()
	s, err := l.Load()
	return s, l, err
}

func runConfigValidate(args []string, stdout, stderr io.Writer) int {
	var c commonFlags
	fs := newConfigFlagSet("validate", stderr, &c)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	s, l, err := loadQuiet(c, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error (env file %s):\n  %v\n", l.EnvFile(), err)
		return exitError
	}
	for _, w := range config.Warnings(s) {
		fmt.Fprintf(stdout, "warning: %s\n", w)
	}
	fmt.Fprintf(stdout, "configuration is valid (profile %s, fingerprint %s)\n", s.Profile, config.ShortFingerprint(s))
	return exitOK
}

func runConfigDump(args []string, stdout, stderr io.Writer) int {
	var c commonFlags
	fs := newConfigFlagSet("dump", stderr, &c)
	format := fs.String("format", "yaml", "output format: yaml or json")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if !validFormat(*format, "yaml", "yml", "json") {
		fmt.Fprintf(stderr, "Unsupported format: %s (use yaml or json)\n", *format)
		return exitUsage
	}

	s, _, err := loadQuiet(c, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error:\n  %v\n", err)
		return exitError
	}
	if err := encode(stdout, *format, config.MaskSecrets(s)); err != nil {
		fmt.Fprintf(stderr, "Failed to encode settings: %v\n", err)
		return exitError
	}
	return exitOK
}

// envRow is one registry entry as printed by "config env".
type envRow struct {
	Env      string   `json:"env"`
	Path     string   `json:"path"`
	Required bool     `json:"required"`
	Secret   bool     `json:"secret"`
	Default  string   `json:"default,omitempty"`
	Aliases  []string `json:"aliases,omitempty"`
	Help     string   `json:"help,omitempty"`
}

func runConfigEnv(args []string, stdout, stderr io.Writer) int {
	fs := newConfigFlagSet("env", stderr, nil)
	format := fs.String("format", "text", "output format: text or json")
	template := fs.String("template", "", "write an example env file to this path instead")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if !validFormat(*format, "text", "json") {
		fmt.Fprintf(stderr, "Unsupported format: %s (use text or json)\n", *format)
		return exitUsage
	}

	reg, err := config.GetRegistry()
	if err != nil {
		fmt.Fprintf(stderr, "Registry error: %v\n", err)
		return exitError
	}
	if *template != "" {
		if err := reg.SaveEnvTemplate(*template); err != nil {
			fmt.Fprintf(stderr, "Failed to write template: %v\n", err)
			return exitError
		}
		fmt.Fprintf(stdout, "wrote %s\n", *template)
		return exitOK
	}
	rows := make([]envRow, 0, len(reg.Entries))
	for _, e := range reg.Entries {
		rows = append(rows, envRow{
			Env: e.Env, Path: e.Path, Required: e.Required, Secret: e.Secret,
			Default: e.Default, Aliases: e.Aliases, Help: e.Help,
		})
	}

	if strings.EqualFold(*format, "json") {
		if err := encode(stdout, "json", rows); err != nil {
			fmt.Fprintf(stderr, "Failed to encode registry: %v\n", err)
			return exitError
		}
		return exitOK
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENV\tPATH\tFLAGS\tDEFAULT")
	for _, r := range rows {
		var flags []string
		if r.Required {
			flags = append(flags, "required")
		}
		if r.Secret {
			flags = append(flags, "secret")
		}
		def := r.Default
		if r.Secret && def != "" {
			def = config.Masked
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Env, r.Path, strings.Join(flags, ","), def)
	}
	if err := tw.Flush(); err != nil {
		return exitError
	}
	return exitOK
}

func runConfigDiff(args []string, stdout, stderr io.Writer) int {
	var c commonFlags
	fs := newConfigFlagSet("diff", stderr, &c)
	against := fs.String("against", "", "env file to compare with")
	format := fs.String("format", "text", "output format: text, yaml or json")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *against == "" {
		fmt.Fprintln(stderr, "Error: --against is required")
		return exitUsage
	}
	if !validFormat(*format, "text", "yaml", "yml", "json") {
		fmt.Fprintf(stderr, "Unsupported format: %s (use text, yaml or json)\n", *format)
		return exitUsage
	}

	current, _, err := loadQuiet(c, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error:\n  %v\n", err)
		return exitError
	}
	other, _, err := loadQuiet(commonFlags{baseDir: c.baseDir, envFile: *against}, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", *against, err)
		return exitError
	}

	changes := config.Diff(current, other)
	if *format != "text" {
		if err := encode(stdout, *format, changes); err != nil {
			fmt.Fprintf(stderr, "Failed to encode diff: %v\n", err)
			return exitError
		}
		return exitOK
	}
	if len(changes) == 0 {
		fmt.Fprintln(stdout, "no differences")
		return exitOK
	}
	for _, ch := range changes {
		fmt.Fprintf(stdout, "%s: %s -> %s\n", ch.Path, ch.Old, ch.New)
	}
	return exitOK
}

func validFormat(format string, allowed ...string) bool {
	for _, a := range allowed {
		if strings.EqualFold(format, a) {
			return true
		}
	}
	return false
}

func encode(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
}
