// Package main provides the dgxsim CLI application entry point.
// dgxsim is a DGX SuperPOD administration trainer: it simulates the
// real cluster tooling against a virtual cluster with injectable
// faults, so learners can practice diagnosis without hardware.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dgxsim/internal/logger"
	"dgxsim/internal/shell"
	"dgxsim/internal/version"
)

var (
	logLevel     string
	logFile      string
	testMode     bool
	topologyPath string
	nodeCount    int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dgxsim",
	Short: "dgxsim - DGX SuperPOD administration trainer",
	Long: `dgxsim simulates the administration tooling of a DGX SuperPOD cluster.
It renders realistic nvidia-smi, dcgmi, ipmitool, Slurm, cmsh, and nvsm
output from a virtual cluster whose faults you control.`,
	Run: runShell,
}

// shellCmd represents the shell command (explicit version of default behavior)
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start the interactive trainer terminal",
	Long:  `Start the interactive terminal against the virtual cluster.`,
	Run:   runShell,
}

// batchCmd replays a command script against a fresh cluster, which is
// how lesson transcripts are regenerated.
var batchCmd = &cobra.Command{
	Use:   "batch <script>",
	Short: "Run a newline-separated command script",
	Args:  cobra.ExactArgs(1),
	Run:   runBatch,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version.GetInfo().String())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")
	rootCmd.PersistentFlags().BoolVar(&testMode, "test-mode", false, "Run in deterministic test mode")
	rootCmd.PersistentFlags().StringVar(&topologyPath, "cluster", "", "Load cluster topology from a YAML file")
	rootCmd.PersistentFlags().IntVar(&nodeCount, "nodes", 4, "Node count for the default synthetic cluster")

	for _, name := range []string{"log-level", "log-file", "test-mode", "cluster", "nodes"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", name, err)
			os.Exit(1)
		}
	}

	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(versionCmd)

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// A local .env can carry DGXSIM_LOG_LEVEL and friends.
	_ = godotenv.Load()

	if err := logger.Configure(logLevel, logFile, testMode); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
}

func newTerminal() *shell.Terminal {
	store, err := shell.LoadStore(viper.GetString("cluster"), viper.GetInt("nodes"))
	if err != nil {
		logger.Fatal("Failed to load cluster topology", "error", err)
	}
	t, err := shell.New(store)
	if err != nil {
		logger.Fatal("Failed to initialize terminal", "error", err)
	}
	return t
}

func runShell(_ *cobra.Command, _ []string) {
	logger.Info("Starting dgxsim", "version", version.Get())

	t := newTerminal()
	fmt.Printf("dgxsim %s - DGX SuperPOD administration trainer\n", version.Get())
	fmt.Println("Type a cluster admin command, or 'exit' to quit.")

	if err := t.Run(); err != nil {
		logger.Fatal("Terminal session failed", "error", err)
	}
}

func runBatch(_ *cobra.Command, args []string) {
	scriptPath := args[0]
	logger.Info("Starting dgxsim batch mode", "script", scriptPath)

	f, err := os.Open(scriptPath)
	if err != nil {
		logger.Fatal("Cannot open script", "error", err)
	}
	defer func() { _ = f.Close() }()

	t := newTerminal()
	if err := t.RunScript(f, os.Stdout); err != nil {
		logger.Fatal("Script execution failed", "error", err)
	}
}
