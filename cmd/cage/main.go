// cage automates the age encryption tool through a pseudo-terminal so
// scripts never have to answer its passphrase prompts interactively.
//
// The cryptography itself is entirely age's; cage only drives the
// process, manages backups and in-place safety, and logs an audit
// trail of every operation.
package main

import (
	"os"

	"github.com/padlokk/cage/internal/cli"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}
