// Command tessera bundles offline inspection tools for the row-key layer:
// decoding row keys and TSUIDs, checking rollup catalogs, and converting
// UIDs between their numeric and binary forms. The tools operate on the
// configured layout alone and never contact a live store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tesseradb/tessera"
	"github.com/tesseradb/tessera/rollup"
	"github.com/tesseradb/tessera/schema"
	"github.com/tesseradb/tessera/storage/memstore"
	"github.com/tesseradb/tessera/uid"
)

var (
	configPath string
	config     tessera.Config
	log        *zap.Logger
)

func main() {
	root := &cobra.Command{
		Use:           "tessera",
		Short:         "Inspection tools for the tessera row-key layer",
		Version:       tessera.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config = tessera.NewConfig()
			if configPath != "" {
				if err := config.FromTomlFile(configPath); err != nil {
					return err
				}
			}
			if err := config.Validate(); err != nil {
				return err
			}
			var err error
			log, err = config.Log.New(cmd.ErrOrStderr())
			return err
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path of a TOML config file")

	root.AddCommand(rowKeyCommand())
	root.AddCommand(rollupCommand())
	root.AddCommand(uidCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newSchema builds a codec over an empty in-memory store. Enough for the
// offline layout operations the tools perform; no UID resolution happens.
func newSchema() (*schema.Schema, error) {
	uids := uid.NewStore(memstore.New(config.UID.Table), config.UID)
	uids.DisableMetrics()
	uids.WithLogger(log)

	var rollups *rollup.Config
	if config.Schema.RollupsEnabled {
		var err error
		if rollups, err = rollup.LoadFile(config.Schema.RollupCatalog); err != nil {
			return nil, err
		}
	}
	sch, err := schema.New(config.Schema, uids, rollups)
	if err != nil {
		return nil, err
	}
	sch.WithLogger(log)
	return sch, nil
}
