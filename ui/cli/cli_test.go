package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/toeirei/gitkeeper/internal/credential"
	"github.com/toeirei/gitkeeper/internal/i18n"
	"github.com/toeirei/gitkeeper/internal/testutil"
)

// cliEnv isolates config lookup and returns a sqlite DSN in a temp dir.
func cliEnv(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("HOME", tmp)
	t.Setenv("GITKEEPER_KEYCHECK_MODE", "builtin")
	t.Setenv("GITKEEPER_LANGUAGE", "en")
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return filepath.Join(tmp, "gitkeeper.db")
}

func runCLI(t *testing.T, dsn, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--database.type", "sqlite", "--database.dsn", dsn}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, dsn, stdin string, args ...string) string {
	t.Helper()
	out, err := runCLI(t, dsn, stdin, args...)
	if err != nil {
		t.Fatalf("gitkeeper %s: %v\n%s", strings.Join(args, " "), describeError(err), out)
	}
	return out
}

func TestCLI_KeyLifecycle(t *testing.T) {
	dsn := cliEnv(t)
	key := testutil.NewAuthorizedKey(t, "alice@laptop")

	mustRun(t, dsn, "", "owner", "add", "alice")
	mustRun(t, dsn, "", "owner", "add", "bob")
	mustRun(t, dsn, "", "owner", "add", "root", "--admin")
	if out := mustRun(t, dsn, "", "owner", "list"); !strings.Contains(out, "alice") || !strings.Contains(out, "root") {
		t.Fatalf("owner list output: %s", out)
	}

	out := mustRun(t, dsn, key+"\n", "key", "add", "--as", "alice", "--title", "laptop")
	if !strings.Contains(out, `Added key "laptop" as alice@redmine_`) {
		t.Fatalf("key add output: %s", out)
	}

	out = mustRun(t, dsn, "", "key", "show", "laptop", "--as", "alice")
	for _, want := range []string{"alice@redmine_", "SHA256:", "active", key} {
		if !strings.Contains(out, want) {
			t.Fatalf("key show lacks %q:\n%s", want, out)
		}
	}

	// same payload for another owner
	_, err := runCLI(t, dsn, "", "key", "add", "--as", "bob", "--title", "mine", key)
	if err == nil {
		t.Fatalf("duplicate key accepted")
	}
	if msg := describeError(err); !strings.Contains(msg, "Key is already in use") {
		t.Fatalf("unexpected error rendering: %s", msg)
	}
	_, err = runCLI(t, dsn, "", "key", "add", "--as", "root", "--owner", "bob", "--title", "mine", key)
	if msg := describeError(err); !strings.Contains(msg, `already used by alice as "laptop"`) {
		t.Fatalf("administrator should see the holder: %s", msg)
	}

	mustRun(t, dsn, "", "key", "rename", "laptop", "work laptop", "--as", "alice")
	if out := mustRun(t, dsn, "", "key", "list", "--owner", "alice"); !strings.Contains(out, "work laptop") {
		t.Fatalf("rename not visible: %s", out)
	}

	mustRun(t, dsn, "", "key", "add", "--as", "alice", "--title", "ci", "--deploy", testutil.NewAuthorizedKey(t, ""))
	if out := mustRun(t, dsn, "", "deploy", "add", "ci", "web", "--perm", "RW+", "--as", "alice"); !strings.Contains(out, "Granted RW+ on web") {
		t.Fatalf("deploy add output: %s", out)
	}
	if out := mustRun(t, dsn, "", "deploy", "list", "ci", "--as", "alice"); !strings.Contains(out, "web") {
		t.Fatalf("deploy list output: %s", out)
	}
	if _, err := runCLI(t, dsn, "", "deploy", "add", "work laptop", "api", "--as", "alice"); err == nil {
		t.Fatalf("user keys must not get deployments")
	}

	if _, err := runCLI(t, dsn, "", "key", "lock", "1", "--as", "alice"); err == nil {
		t.Fatalf("owners must not lock keys")
	}
	mustRun(t, dsn, "", "key", "lock", "1", "--as", "root")
	if out := mustRun(t, dsn, "", "key", "list", "--inactive"); !strings.Contains(out, "work laptop") {
		t.Fatalf("locked key missing from --inactive list: %s", out)
	}
	// with the original locked, bob may now use the payload
	mustRun(t, dsn, "", "key", "add", "--as", "bob", "--title", "mine", key)
	if _, err := runCLI(t, dsn, "", "key", "unlock", "1", "--as", "root"); err == nil {
		t.Fatalf("unlock must re-check the payload")
	}

	if out := mustRun(t, dsn, "", "key", "delete", "ci", "--as", "alice"); !strings.Contains(out, "Deleted key alice_deploy_key_1@redmine_") {
		t.Fatalf("delete output: %s", out)
	}
	if out := mustRun(t, dsn, "", "resync", "status"); !strings.Contains(out, "pending: 0") {
		t.Fatalf("events were not delivered: %s", out)
	}
	out = mustRun(t, dsn, "", "audit", "--limit", "0")
	for _, action := range []string{credential.ActionAddCredential, credential.ActionRenameCredential, credential.ActionLockCredential, credential.ActionDeleteCredential} {
		if !strings.Contains(out, action) {
			t.Fatalf("audit log lacks %s:\n%s", action, out)
		}
	}
	if out := mustRun(t, dsn, "", "migrate"); !strings.Contains(out, "version 1") {
		t.Fatalf("migrate output: %s", out)
	}
	mustRun(t, dsn, "", "maintenance")
}

func TestCLI_RequiresActor(t *testing.T) {
	dsn := cliEnv(t)
	_, err := runCLI(t, dsn, "", "key", "add", "--title", "x", testutil.NewAuthorizedKey(t, ""))
	if err == nil || !strings.Contains(err.Error(), "--as") {
		t.Fatalf("expected missing actor error, got %v", err)
	}
}

func TestCLI_ConfigWrite(t *testing.T) {
	dsn := cliEnv(t)
	path := filepath.Join(t.TempDir(), "out", "gitkeeper.yaml")
	out := mustRun(t, dsn, "", "config", "write", "-o", path)
	if !strings.Contains(out, path) {
		t.Fatalf("config write output: %s", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read written config: %v", err)
	}
	if !strings.Contains(string(data), "dsn: "+dsn) || !strings.Contains(string(data), "mode: builtin") {
		t.Fatalf("written config lacks effective values:\n%s", data)
	}
	if _, err := os.Stat(dsn); err == nil {
		t.Fatalf("config write must not open the database")
	}
}

func TestCLI_Version(t *testing.T) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), "version: ") || !strings.Contains(out.String(), "commit: ") {
		t.Fatalf("version output: %s", out.String())
	}
}

func TestResolveBuildVersion(t *testing.T) {
	oldC, oldD := gitCommit, buildDate
	defer func() { gitCommit, buildDate = oldC, oldD }()
	gitCommit, buildDate = "dev", ""

	info := &debug.BuildInfo{
		Main:     debug.Module{Version: "v1.2.3"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "abc123"}, {Key: "vcs.time", Value: "2026-01-02T03:04:05Z"}},
	}
	v, c, d := resolveBuildVersion(info)
	if v != "v1.2.3" || c != "abc123" || d != "2026-01-02T03:04:05Z" {
		t.Fatalf("resolveBuildVersion = %q %q %q", v, c, d)
	}

	gitCommit = "deadbeef"
	v, c, _ = resolveBuildVersion(&debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	if v != "deadbeef" || c != "deadbeef" {
		t.Fatalf("commit fallback: %q %q", v, c)
	}
}

func TestDescribeError_Localized(t *testing.T) {
	defer i18n.Init("en")
	errs := &credential.ValidationErrors{}
	errs.Add(credential.FieldTitle, &credential.PresenceError{Field: credential.FieldTitle})
	errs.Add(credential.FieldKey, &credential.ConflictError{Reason: credential.OwnedByRequester, Title: "laptop"})

	i18n.Init("de")
	msg := describeError(errs)
	for _, want := range []string{"Der Schlüssel wurde nicht gespeichert:", "Titel muss ausgefüllt werden", `als dein Schlüssel "laptop"`} {
		if !strings.Contains(msg, want) {
			t.Fatalf("missing %q in:\n%s", want, msg)
		}
	}

	i18n.Init("en")
	if got := describeError(credential.ErrForbidden); got != "You are not allowed to do that" {
		t.Fatalf("forbidden rendering: %q", got)
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"ID", "TITLE"}, [][]string{{"1", "laptop"}, {"22", "a much longer title"}})
	lines := strings.Split(out, "\n")
	if len(lines) != 5 {
		t.Fatalf("expected border, header, two rows and border; got %d lines:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[2], "laptop") || !strings.Contains(lines[3], "a much longer title") {
		t.Fatalf("rows out of order:\n%s", out)
	}
	// columns are aligned
	if strings.Index(lines[2], "laptop") != strings.Index(lines[3], "a much") {
		t.Fatalf("columns not aligned:\n%s", out)
	}
}
