package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	grpcAddr  string
	cfgFile   string
	token     string
	format    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "primectl",
	Short: "Prime chain command-line tool",
	Long: `primectl builds identity commitments from record files, proves and
verifies inclusion, and reads from or appends to a chaind ledger.

Commitment commands (root, proof, verify) run locally. Ledger commands
(head, block, append) talk to chaind over HTTP, or over gRPC when --grpc
is set.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".primectl"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("primectl")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if grpcAddr == "" {
			grpcAddr = viper.GetString("grpc")
		}
		if token == "" {
			token = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.primectl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "chaind HTTP base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&grpcAddr, "grpc", "", "chaind gRPC address; ledger commands use gRPC when set")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "submitter bearer token for append")
	rootCmd.PersistentFlags().StringVar(&format, "format", "text", "output format: text or json")

	rootCmd.AddCommand(rootRootCmd)
	rootCmd.AddCommand(proofCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(headCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(appendCmd)
	rootCmd.AddCommand(factorCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the primectl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "primectl %s\n", version)
	},
}
