package cli

import (
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/padlokk/cage/internal/ageerr"
)

func init() {
	proxyCmd.SilenceErrors = true
	proxyCmd.SilenceUsage = true
	proxyCmd.DisableFlagParsing = true
}

var proxyCmd = &cobra.Command{
	Use:   "proxy -- [age flags]",
	Short: "Pass arguments straight through to age with a PTY attached",
	Long: `proxy hands every argument after "--" to the age binary itself, with a
real pseudo-terminal attached, for flags cage's typed operations don't
cover. No automation, redaction, or audit logging happens on this path;
the operator's own terminal drives age directly.`,
	RunE: runProxy,
}

func init() {
	rootCmd.AddCommand(proxyCmd)
}

func runProxy(cmd *cobra.Command, args []string) error {
	passthrough := args
	for i, a := range args {
		if a == "--" {
			passthrough = args[i+1:]
			break
		}
	}

	binPath, err := exec.LookPath("age")
	if err != nil {
		return ageerr.DependencyMissing("age", "install age (https://github.com/FiloSottile/age)")
	}

	c := exec.Command(binPath, passthrough...)
	ptmx, err := pty.Start(c)
	if err != nil {
		return ageerr.ProcessExecutionFailed("age", nil, err.Error())
	}
	defer ptmx.Close()

	if term.IsTerminal(int(os.Stdin.Fd())) {
		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err == nil {
			defer term.Restore(int(os.Stdin.Fd()), oldState)
		}
	}

	go io.Copy(ptmx, os.Stdin)
	go io.Copy(os.Stdout, ptmx)

	if err := c.Wait(); err != nil {
		return ageerr.ProcessExecutionFailed("age", nil, err.Error())
	}
	return nil
}
