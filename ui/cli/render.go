// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/toeirei/gitkeeper/internal/credential"
	"github.com/toeirei/gitkeeper/internal/db"
	"github.com/toeirei/gitkeeper/internal/i18n"
	"github.com/toeirei/gitkeeper/internal/keycheck"
	"github.com/toeirei/gitkeeper/internal/model"
	"github.com/toeirei/gitkeeper/internal/sshkey"
	"github.com/toeirei/gitkeeper/util/slicest"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cellStyle   = lipgloss.NewStyle()
	tableStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Bold(true).Width(14)
	lockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// renderTable lays out rows in aligned columns inside a rounded border.
func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range rows {
		for i, c := range r {
			if w := lipgloss.Width(c); i < len(widths) && w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			s := style.Width(widths[i])
			if i < len(cells)-1 {
				s = s.MarginRight(2)
			}
			parts[i] = s.Render(c)
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	}

	lines := []string{line(headers, headerStyle)}
	for _, r := range rows {
		lines = append(lines, line(r, cellStyle))
	}
	return tableStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func printTable(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, i18n.T("cli.no_results"))
		return
	}
	fmt.Fprintln(w, renderTable(headers, rows))
}

func printField(w io.Writer, label, value string) {
	fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label+":"), value))
}

func stateLabel(c model.Credential) string {
	if c.Active() {
		return "active"
	}
	return lockedStyle.Render("locked")
}

func credentialRows(creds []model.Credential, owners map[int64]string) [][]string {
	return slicest.Map(creds, func(c model.Credential) []string {
		return []string{
			strconv.FormatInt(c.ID(), 10),
			owners[c.OwnerID()],
			c.Title(),
			c.Kind().String(),
			c.Identifier(),
			stateLabel(c),
			c.Fingerprint(),
		}
	})
}

func fieldName(field string) string {
	return i18n.T("field." + field)
}

// describeError renders err for the terminal in the configured language.
// Validation failures are listed one per line.
func describeError(err error) string {
	if errs, ok := credential.AsValidationErrors(err); ok {
		var b strings.Builder
		b.WriteString(i18n.T("error.validation_failed"))
		for _, fe := range errs.All() {
			b.WriteString("\n  - ")
			b.WriteString(describeFieldError(fe.Field, fe.Err))
		}
		return b.String()
	}
	switch {
	case errors.Is(err, credential.ErrForbidden):
		return i18n.T("error.forbidden")
	case errors.Is(err, credential.ErrNotFound), errors.Is(err, db.ErrNotFound):
		return i18n.T("error.not_found") + ": " + err.Error()
	}
	return err.Error()
}

func describeFieldError(field string, err error) string {
	data := map[string]any{"Field": fieldName(field)}

	var (
		presence  *credential.PresenceError
		unique    *credential.UniquenessError
		immutable *credential.ImmutableFieldChangedError
		length    *credential.LengthError
		inclusion *credential.InclusionError
		conflict  *credential.ConflictError
		tool      *keycheck.ExternalToolError
	)
	switch {
	case errors.As(err, &conflict):
		data["Title"] = conflict.Title
		data["Login"] = conflict.OwnerLogin
		return i18n.T("conflict."+conflict.Reason.String(), data)
	case errors.As(err, &presence):
		return i18n.T("error.presence", data)
	case errors.As(err, &unique):
		data["Value"] = unique.Value
		return i18n.T("error.uniqueness", data)
	case errors.As(err, &immutable):
		return i18n.T("error.immutable", data)
	case errors.As(err, &length):
		data["Max"] = length.Max
		return i18n.T("error.length", data)
	case errors.As(err, &inclusion):
		data["Value"] = inclusion.Value
		data["Allowed"] = strings.Join(inclusion.Allowed, ", ")
		return i18n.T("error.inclusion", data)
	case errors.As(err, &tool):
		return i18n.T("error.key_check_failed", data)
	case errors.Is(err, sshkey.ErrMalformedKey):
		return i18n.T("error.malformed_key", data)
	case field == credential.FieldActive:
		return i18n.T("error.locked", data)
	}
	return fmt.Sprintf("%s: %v", data["Field"], err)
}
