package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/sofmeright/distrobaker/src/identity"
)

var (
	preparePasswdTemplate string
	preparePasswdDir      string
	prepareSSHHost        string
	prepareKnownHost      string
)

var prepareCmd = &cobra.Command{
	Use:   "prepare [-- command [args...]]",
	Short: "Prepare the container identity and SSH access",
	Long: `Prepare the container identity and SSH access.

Writes an nss_wrapper passwd entry for the running UID and the SSH
configuration for the dist-git host. With a command the process is replaced
by it, running with the prepared environment. Without one the environment
is printed as shell exports.`,
	RunE: runPrepare,
}

func init() {
	prepareCmd.Flags().StringVar(&preparePasswdTemplate, "passwd-template", "", "nss_wrapper passwd template file (default: built-in)")
	prepareCmd.Flags().StringVar(&preparePasswdDir, "passwd-dir", os.TempDir(), "directory for the generated passwd file")
	prepareCmd.Flags().StringVar(&prepareSSHHost, "ssh-host", "", "dist-git SSH host to configure")
	prepareCmd.Flags().StringVar(&prepareKnownHost, "known-host", "", "known_hosts line for --ssh-host")

	rootCmd.AddCommand(prepareCmd)
}

func runPrepare(cmd *cobra.Command, args []string) error {
	id, err := identity.Current()
	if err != nil {
		return err
	}

	tmpl := identity.DefaultPasswdTemplate
	if preparePasswdTemplate != "" {
		data, err := os.ReadFile(preparePasswdTemplate)
		if err != nil {
			return fmt.Errorf("reading passwd template: %w", err)
		}
		tmpl = string(data)
	}

	passwd, err := identity.WritePasswd(preparePasswdDir, tmpl, id)
	if err != nil {
		return err
	}
	logger.Info().Int("uid", id.UID).Str("passwd", passwd).Msg("identity prepared")

	if prepareSSHHost != "" {
		if err := identity.PrepareSSH(id.Home, prepareSSHHost, prepareKnownHost); err != nil {
			return err
		}
		logger.Info().Str("host", prepareSSHHost).Msg("ssh prepared")
	}

	env := identity.Env(id, passwd)
	if len(args) == 0 {
		for _, kv := range env {
			fmt.Fprintf(cmd.OutOrStdout(), "export %s\n", kv)
		}
		return nil
	}

	path, err := exec.LookPath(args[0])
	if err != nil {
		return fmt.Errorf("resolving %s: %w", args[0], err)
	}
	return syscall.Exec(path, args, append(os.Environ(), env...))
}
