package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/erpgen/internal/config"
)

// pathFlags selects the config overrides a command accepts.
type pathFlags int

const (
	pathFlagsSchema   pathFlags = 1 << iota // --schema --previous --changes
	pathFlagsDatabase                       // --database --external --snapshot-dir
	pathFlagsOutput                         // --output --package
)

// addPathFlags registers config overrides on cmd. Defaults are left empty:
// only flags the user sets take part in config loading, so an unset flag
// never hides erpgen.yaml or ERPGEN_ values.
func addPathFlags(cmd *cobra.Command, which pathFlags) {
	f := cmd.Flags()
	if which&pathFlagsSchema != 0 {
		f.String("schema", "", "current schema file (default "+config.DefaultSchema+")")
		f.String("previous", "", "previous schema file (default "+config.DefaultPrevious+")")
		f.String("changes", "", "change directive file (default "+config.DefaultChanges+")")
	}
	if which&pathFlagsDatabase != 0 {
		f.String("database", "", "live SQLite database (default "+config.DefaultDatabase+")")
		f.String("external", "", "update database for external reloads")
		f.String("snapshot-dir", "", "directory for pre-migration snapshots (default "+config.DefaultSnapshotDir+")")
	}
	if which&pathFlagsOutput != 0 {
		f.StringP("output", "o", "", "output directory for generated code (default "+config.DefaultOutput+")")
		f.String("package", "", "package name of generated code (default "+config.DefaultPackage+")")
	}
}
