package command

import (
	"github.com/spf13/cobra"

	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/config"
)

var _config = config.NewDefaultConfig()

// RootCmd is the root command for the continuity ledger node.
var RootCmd = &cobra.Command{
	Use:   "continuity",
	Short: "continuity ledger consensus node",
}
