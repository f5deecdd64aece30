// pkg/metis_cli/flags.go

package metis_cli

import (
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BindEnvOverrides lets METIS_* environment variables stand in for flags
// the user did not set explicitly, so cron jobs and CI pipelines can
// configure passes without long flag lists. METIS_NAMESPACE fills
// --namespace, METIS_DRY_RUN fills --dry-run, and so on.
func BindEnvOverrides(cmd *cobra.Command) error {
	v := viper.New()
	v.SetEnvPrefix("METIS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	var result error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			result = multierror.Append(result, err)
			return
		}
		if !f.Changed && v.IsSet(f.Name) {
			if err := cmd.Flags().Set(f.Name, v.GetString(f.Name)); err != nil {
				result = multierror.Append(result, err)
			}
		}
	})
	return result
}
