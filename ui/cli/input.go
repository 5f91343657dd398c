// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/toeirei/gitkeeper/internal/model"
	"github.com/toeirei/gitkeeper/util/slicest"
)

// readKeyMaterial returns the key text from --file, from args, or from
// stdin. An interactive terminal gets a prompt and a single line is read;
// piped input is read completely.
func readKeyMaterial(cmd *cobra.Command, args []string, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read key file: %w", err)
		}
		return string(data), nil
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Paste the public key and press enter: ")
		line, err := bufio.NewReader(f).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		return line, nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read key from stdin: %w", err)
	}
	return string(data), nil
}

// resolveCredential accepts a numeric id or the title of one of the
// acting owner's keys.
func (e *environment) resolveCredential(cmd *cobra.Command, actor *model.Owner, ref string) (model.Credential, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return e.store.CredentialByID(cmd.Context(), id)
	}
	if actor == nil {
		return model.Credential{}, fmt.Errorf("key %q: use the numeric id or pass --as", ref)
	}
	c, err := e.store.CredentialByTitle(cmd.Context(), actor.ID, ref)
	if err != nil {
		return model.Credential{}, fmt.Errorf("key %q of %s: %w", ref, actor.Login, err)
	}
	return c, nil
}

// ownerLogins maps owner ids to logins for list output.
func (e *environment) ownerLogins(cmd *cobra.Command) (map[int64]string, error) {
	owners, err := e.store.Owners(cmd.Context())
	if err != nil {
		return nil, err
	}
	return slicest.ToMap(owners, func(o model.Owner) (int64, string) {
		return o.ID, o.Login
	}), nil
}
