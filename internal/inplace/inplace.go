// Package inplace implements the safe in-place replacement sequence:
// gated confirmation, a recovery file carrying the undo command, and an
// atomic encrypt-to-sibling-then-rename sequence with a drop-guard that
// cleans up on any abort before the final rename.
//
// Grounded directly in the original cage::in_place safety architecture
// (RecoveryManager, SafetyValidator, InPlaceOperation, Drop rollback).
package inplace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/padlokk/cage/internal/ageerr"
)

// Options mirrors the CommonOptions in-place flag group: enabled gates
// the whole feature; danger_mode skips recovery file creation (and then
// requires DANGER_MODE=1); i_am_sure skips danger mode's typed
// confirmation prompt.
type Options struct {
	Enabled    bool
	DangerMode bool
	IAmSure    bool
}

// Validate runs the gates in order: the operation must be explicitly
// requested, the file must exist, and — in danger mode — both
// DANGER_MODE=1 and (IAmSure or an interactive "DELETE MY FILE"
// confirmation) are required. stdin is consulted only when IAmSure is
// false and a confirmation is actually needed.
func Validate(opts Options, path string, stdin io.Reader, stderr io.Writer) error {
	if !opts.Enabled {
		return ageerr.InvalidOperation("in_place", "in-place operation was not explicitly requested")
	}
	if _, err := os.Stat(path); err != nil {
		return ageerr.FileError("in-place", path, err)
	}

	if !opts.DangerMode {
		return nil
	}

	if os.Getenv("DANGER_MODE") != "1" {
		return ageerr.InvalidOperation("in_place_danger", "DANGER_MODE=1 environment variable required with danger_mode")
	}

	if opts.IAmSure {
		return nil
	}

	fmt.Fprintln(stderr, "DANGER MODE: this action is UNRECOVERABLE!")
	fmt.Fprintf(stderr, "  file: %s\n", path)
	fmt.Fprintln(stderr, "  no recovery file will be created")
	fmt.Fprintln(stderr, "  if encryption fails or the passphrase is forgotten, the file is lost forever")
	fmt.Fprint(stderr, "type 'DELETE MY FILE' to confirm this unrecoverable action: ")

	reader := bufio.NewReader(stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return ageerr.IoError("read_line", "confirmation_input", err)
	}
	if strings.TrimSpace(line) != "DELETE MY FILE" {
		return ageerr.InvalidOperation("in_place_danger", "user cancelled dangerous operation")
	}
	return nil
}

// CreateRecoveryFile writes the sibling "<original>.tmp.recover" file
// (mode 0600) carrying the timestamp, operation name, the passphrase in
// clear text, and the literal command needed to undo the operation. It
// must not be called in danger mode — call sites gate on !DangerMode.
func CreateRecoveryFile(original, passphrase, operation string) (string, error) {
	recoveryPath := original + ".tmp.recover"
	content := fmt.Sprintf(`# cage recovery information
# generated: %s
# original: %s
# operation: %s
# passphrase: %s
#
# to recover your file:
# cage unlock %s %s
#
# delete this file once you've verified your encryption!
# this file contains your passphrase and is a security risk if left around.
`,
		time.Now().UTC().Format("2006-01-02 15:04:05 UTC"),
		original, operation, passphrase, original, passphrase,
	)

	if err := os.WriteFile(recoveryPath, []byte(content), 0o600); err != nil {
		return "", ageerr.FileError("create_recovery", recoveryPath, err)
	}
	return recoveryPath, nil
}

// EncryptFunc performs one encrypt (or decrypt, for unlock) of src into
// dst, given a passphrase.
type EncryptFunc func(src, dst, passphrase string) error

// Operation drives the atomic replace sequence for one file: encrypt
// original -> temp sibling, verify temp exists, copy permissions (and
// best-effort mtime) from original to temp, rename temp -> original. If
// the sequence aborts before the rename, Close removes the temp file and
// any unfinished recovery file.
type Operation struct {
	original      string
	tempEncrypted string
	recoveryFile  string
	completed     bool
}

// New prepares an Operation for file.
func New(file string) *Operation {
	return &Operation{
		original:      file,
		tempEncrypted: file + ".tmp.cage",
	}
}

// ExecuteLock runs the full in-place lock sequence: create a recovery
// file (unless dangerMode), encrypt to the temp sibling, verify it
// exists, copy metadata, then atomically rename over the original.
func (o *Operation) ExecuteLock(passphrase string, dangerMode bool, encrypt EncryptFunc) error {
	defer o.cleanupIfIncomplete()

	if !dangerMode {
		recovery, err := CreateRecoveryFile(o.original, passphrase, "encrypt")
		if err != nil {
			return err
		}
		o.recoveryFile = recovery
	}

	if err := encrypt(o.original, o.tempEncrypted, passphrase); err != nil {
		return err
	}

	if _, err := os.Stat(o.tempEncrypted); err != nil {
		return ageerr.FileError("verify_temp", o.tempEncrypted, err)
	}

	if err := copyMetadata(o.original, o.tempEncrypted); err != nil {
		return err
	}

	if err := os.Rename(o.tempEncrypted, o.original); err != nil {
		return ageerr.FileError("atomic_replace", o.original, err)
	}

	o.completed = true
	return nil
}

// ExecuteUnlock runs the equivalent sequence for unlock: no recovery
// file is created (there is nothing to recover from a decrypt), but the
// same verify-metadata-rename sequence and drop guard apply.
func (o *Operation) ExecuteUnlock(passphrase string, decrypt EncryptFunc) error {
	defer o.cleanupIfIncomplete()

	if err := decrypt(o.original, o.tempEncrypted, passphrase); err != nil {
		return err
	}
	if _, err := os.Stat(o.tempEncrypted); err != nil {
		return ageerr.FileError("verify_temp", o.tempEncrypted, err)
	}
	if err := copyMetadata(o.original, o.tempEncrypted); err != nil {
		return err
	}
	if err := os.Rename(o.tempEncrypted, o.original); err != nil {
		return ageerr.FileError("atomic_replace", o.original, err)
	}
	o.completed = true
	return nil
}

func (o *Operation) cleanupIfIncomplete() {
	if o.completed {
		return
	}
	if _, err := os.Stat(o.tempEncrypted); err == nil {
		_ = os.Remove(o.tempEncrypted)
	}
	if o.recoveryFile != "" {
		if _, err := os.Stat(o.recoveryFile); err == nil {
			_ = os.Remove(o.recoveryFile)
		}
	}
}

func copyMetadata(from, to string) error {
	info, err := os.Stat(from)
	if err != nil {
		return ageerr.FileError("read_metadata", from, err)
	}
	if err := os.Chmod(to, info.Mode()); err != nil {
		return ageerr.FileError("set_permissions", to, err)
	}
	mtime := info.ModTime()
	_ = os.Chtimes(to, mtime, mtime)
	return nil
}

// RecoveryPath returns the sibling path CreateRecoveryFile would use for
// original, without creating it — useful for status/cleanup checks.
func RecoveryPath(original string) string {
	return original + ".tmp.recover"
}

// TempPath returns the sibling temp-ciphertext path an Operation on
// original would use, without creating one.
func TempPath(original string) string {
	return original + ".tmp.cage"
}
