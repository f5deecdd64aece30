// pkg/metis_cli/wrap.go

package metis_cli

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/metis/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/metis/pkg/metis_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ConfigPath is the value of the root --config persistent flag. Subcommand
// packages read it here to avoid importing the root command package.
var ConfigPath string

// Wrap ensures panic recovery, telemetry, logging, and lifecycle timing
// around a cobra command body.
func Wrap(fn func(rc *metis_io.RuntimeContext, cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		if logger.GetLogger() == nil {
			logger.Initialize()
		}

		rc := metis_io.NewContext(context.Background(), cmd.Name())
		defer rc.End(&err)

		defer func() {
			if r := recover(); r != nil {
				err = cerr.AssertionFailedf("panic: %v", r)
				rc.Log.Error("Panic recovered", zap.Any("panic", r))
			}
		}()

		rc.Log.Debug("Command invoked",
			zap.String("command", cmd.CommandPath()),
			zap.Strings("args", args))

		return fn(rc, cmd, args)
	}
}
