package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nearfs.io/upload/cidutil"
	"nearfs.io/upload/storage/bundle"
	"nearfs.io/upload/storage/localfs"
)

const (
	fooBarDir = "bafybeiebmqu77niwx6dog6cjoy6ihvuq775hg4t7nwwzuts54rbkhektfy"
	fooFile   = "bafkreibme22gw2h7y2h7tg2fhqotaqjucnbc24deqo72b6mkl2egezxhvy"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

// writeFooBar creates dir/a.txt ("foo") and dir/b.txt ("bar").
func writeFooBar(t *testing.T, dir string) (string, string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(a, []byte("foo"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(b, []byte("bar"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return a, b
}

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"NEAR_SIGNER_ACCOUNT", "NEAR_SIGNER_KEY", "NEAR_PRIVATE_KEY", "NEAR_ENV", "NODE_ENV"} {
		t.Setenv(k, "")
	}
}

func TestCIDCommand(t *testing.T) {
	isolate(t)
	a, b := writeFooBar(t, t.TempDir())
	code, out, errOut := runCLI(t, "cid", b, a)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if strings.TrimSpace(out) != fooBarDir {
		t.Fatalf("root %q, want %s", out, fooBarDir)
	}
}

func TestCIDCommandDirectory(t *testing.T) {
	isolate(t)
	site := filepath.Join(t.TempDir(), "site")
	writeFooBar(t, site)
	code, out, errOut := runCLI(t, "cid", "--entries", site)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, fooBarDir+"\tsite\n") {
		t.Fatalf("directory entry missing from:\n%s", out)
	}
	if !strings.Contains(out, fooFile+"\tsite/a.txt\n") {
		t.Fatalf("file entry missing from:\n%s", out)
	}
}

func TestUsageErrors(t *testing.T) {
	isolate(t)
	cases := [][]string{
		{"bogus"},
		{"upload", "alice.testnet"},
		{"upload", "Not An Account", "x"},
		{"cid", "--no-such-flag", "x"},
		{"cid"},
	}
	for _, args := range cases {
		if code, _, _ := runCLI(t, args...); code != 2 {
			t.Fatalf("%v: exit %d, want 2", args, code)
		}
	}
}

func TestUploadToLocalFSWithMirror(t *testing.T) {
	isolate(t)
	a, b := writeFooBar(t, t.TempDir())
	store := t.TempDir()
	mirror := t.TempDir()

	for i := 0; i < 2; i++ {
		code, out, errOut := runCLI(t, "upload", "--backend", "localfs", "--localfs-dir", store, "--mirror-dir", mirror, "alice.testnet", a, b)
		if code != 0 {
			t.Fatalf("run %d: exit %d: %s", i, code, errOut)
		}
		if strings.TrimSpace(out) != fooBarDir {
			t.Fatalf("run %d: root %q", i, out)
		}
	}

	root, err := cidutil.Parse(fooBarDir)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m, err := localfs.New(mirror)
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	if ok, err := m.Has(context.Background(), root); err != nil || !ok {
		t.Fatalf("mirror is missing the root: %v %v", ok, err)
	}
}

func TestDryRunWritesCAR(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	a, b := writeFooBar(t, dir)
	carPath := filepath.Join(dir, "out.car")

	code, out, errOut := runCLI(t, "upload", "--dry-run", "--car", carPath, "alice.testnet", a, b)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if strings.TrimSpace(out) != fooBarDir {
		t.Fatalf("root %q", out)
	}

	f, err := os.Open(carPath)
	if err != nil {
		t.Fatalf("open CAR: %v", err)
	}
	defer f.Close()
	archive, err := bundle.ReadCAR(f)
	if err != nil {
		t.Fatalf("ReadCAR: %v", err)
	}
	root, err := archive.Root()
	if err != nil || cidutil.String(root) != fooBarDir {
		t.Fatalf("CAR root %s, %v", root, err)
	}
	if len(archive.Blocks) != 3 {
		t.Fatalf("CAR holds %d blocks, want 3", len(archive.Blocks))
	}

	store := t.TempDir()
	code, out, errOut = runCLI(t, "upload-car", "--backend", "localfs", "--localfs-dir", store, "alice.testnet", carPath)
	if code != 0 {
		t.Fatalf("upload-car exit %d: %s", code, errOut)
	}
	if strings.TrimSpace(out) != fooBarDir {
		t.Fatalf("upload-car root %q", out)
	}
}

func TestUploadErrors(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.txt")
	code, _, errOut := runCLI(t, "upload", "--dry-run", "alice.testnet", missing)
	if code != 1 || !strings.Contains(errOut, "missing.txt") {
		t.Fatalf("missing file: exit %d, stderr %q", code, errOut)
	}

	a, _ := writeFooBar(t, dir)
	code, _, errOut = runCLI(t, "upload", "--credentials-dir", t.TempDir(), "alice.testnet", a)
	if code != 1 || !strings.Contains(errOut, "no signing key") {
		t.Fatalf("no credentials: exit %d, stderr %q", code, errOut)
	}
}
