// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/taskdrop/taskdrop/envconfig"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-28s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "taskdrop",
		Short:         "Attention-guided structured dropout for residual blocks",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	serveCmd := newServeCmd()
	maskCmd := newMaskCmd()
	forwardCmd := newForwardCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	sampling := []envconfig.EnvVar{
		envVars["TASKDROP_DROPOUT"],
		envVars["TASKDROP_SEED"],
		envVars["TASKDROP_NUM_THREADS"],
	}

	appendEnvDocs(serveCmd, []envconfig.EnvVar{
		envVars["TASKDROP_DEBUG"],
		envVars["TASKDROP_HOST"],
		envVars["TASKDROP_ORIGINS"],
		envVars["TASKDROP_DROPOUT"],
		envVars["TASKDROP_ATTENTION_DROPOUT"],
		envVars["TASKDROP_SEED"],
		envVars["TASKDROP_NUM_THREADS"],
	})
	appendEnvDocs(maskCmd, append([]envconfig.EnvVar{envVars["TASKDROP_HOST"]}, sampling...))
	appendEnvDocs(forwardCmd, append(sampling, envVars["TASKDROP_ATTENTION_DROPOUT"]))

	rootCmd.AddCommand(
		serveCmd,
		maskCmd,
		forwardCmd,
	)

	return rootCmd
}
