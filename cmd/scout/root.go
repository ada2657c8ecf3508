package main

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/providers/aws/common"
	awsfetch "github.com/pankaj-dahiya-devops/cloudscout/internal/providers/aws/fetch"
)

// deps are the collaborators the commands construct. Tests replace them
// with fakes so no command reaches AWS.
type deps struct {
	newProvider  func(maxAttempts int) common.AWSClientProvider
	newCollector func(log zerolog.Logger, workers int) awsfetch.Collector
	logOut       io.Writer
}

func defaultDeps() deps {
	return deps{
		newProvider: func(maxAttempts int) common.AWSClientProvider {
			return common.NewDefaultAWSClientProvider().WithMaxAttempts(maxAttempts)
		},
		newCollector: func(log zerolog.Logger, workers int) awsfetch.Collector {
			return awsfetch.NewDefaultCollector(log).WithWorkers(workers)
		},
		logOut: os.Stderr,
	}
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(defaultDeps())
}

func newRootCmdWith(d deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "scout",
		Short:         "cloudscout: rule-based AWS configuration audit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Config file (default: ~/.config/cloudscout/config.yaml)")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")

	root.AddCommand(newAuditCmd(d))
	root.AddCommand(newRulesCmd())
	root.AddCommand(newDoctorCmd(d))
	root.AddCommand(newVersionCmd())
	return root
}

// isTerminal reports whether w is a character device, so table output can
// be coloured.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
