// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/renameio/v2"
)

// WriteEnvTemplate renders an example env file from the registry. Required
// keys are left empty, optional keys are commented out with their default.
func (r *Registry) WriteEnvTemplate(w io.Writer) error {
	var b strings.Builder
	b.WriteString("# Generated by \"backend config env --template\".\n")
	for _, e := range r.Entries {
		b.WriteByte('\n')
		if e.Help != "" {
			fmt.Fprintf(&b, "# %s\n", e.Help)
		}
		var notes []string
		if e.Required {
			notes = append(notes, "required")
		}
		if e.Secret {
			notes = append(notes, "secret")
		}
		if len(e.Aliases) > 0 {
			notes = append(notes, "alias "+strings.Join(e.Aliases, ", "))
		}
		if len(notes) > 0 {
			fmt.Fprintf(&b, "# (%s)\n", strings.Join(notes, "; "))
		}
		if e.Required {
			fmt.Fprintf(&b, "%s=\n", e.Env)
		} else {
			fmt.Fprintf(&b, "# %s=%s\n", e.Env, e.Default)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// SaveEnvTemplate writes the template to path, replacing any existing file
// atomically with 0600 permissions.
func (r *Registry) SaveEnvTemplate(path string) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending env template: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if err := r.WriteEnvTemplate(pending); err != nil {
		return fmt.Errorf("write env template: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace env template: %w", err)
	}
	return nil
}
