package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var setupDir string

// checkSetupCmd verifies a working directory is ready to run the gateway
var checkSetupCmd = &cobra.Command{
	Use:   "check-setup",
	Short: "Check that the gateway configuration is complete",
	Long: `Checks the files the gateway needs and the identity provider
variables in .env. Exits non-zero when an essential file is missing.`,
	RunE: runCheckSetup,
}

func init() {
	checkSetupCmd.Flags().StringVar(&setupDir, "dir", ".", "Directory to check")
}

var essentialFiles = []string{
	"go.mod",
	"config/config.yaml",
	".env",
}

var requiredEnv = []string{
	"AUTH0_DOMAIN",
	"AUTH0_CLIENT_ID",
	"AUTH0_CLIENT_SECRET",
	"BACKEND_URL",
}

type setupReport struct {
	Missing    []string
	MissingEnv []string
	EnvFound   bool
}

func (r setupReport) OK() bool { return len(r.Missing) == 0 }

func checkSetup(dir string, out io.Writer) setupReport {
	var rep setupReport
	for _, f := range essentialFiles {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			fmt.Fprintf(out, "  MISSING  %s\n", f)
			rep.Missing = append(rep.Missing, f)
			continue
		}
		fmt.Fprintf(out, "  ok       %s\n", f)
	}

	env, err := godotenv.Read(filepath.Join(dir, ".env"))
	if err != nil {
		return rep
	}
	rep.EnvFound = true
	for _, k := range requiredEnv {
		if env[k] == "" && os.Getenv(k) == "" {
			rep.MissingEnv = append(rep.MissingEnv, k)
		}
	}
	if len(rep.MissingEnv) == 0 {
		fmt.Fprintln(out, "  ok       environment variables")
	} else {
		fmt.Fprintf(out, "  WARN     incomplete environment: %s\n", strings.Join(rep.MissingEnv, ", "))
	}
	return rep
}

func runCheckSetup(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Checking %s\n\n", setupDir)

	rep := checkSetup(setupDir, out)

	fmt.Fprintln(out, "\n"+strings.Repeat("=", 50))
	defer fmt.Fprintln(out, strings.Repeat("=", 50))
	if !rep.OK() {
		fmt.Fprintln(out, "Essential files are missing.")
		return fmt.Errorf("missing %s", strings.Join(rep.Missing, ", "))
	}
	fmt.Fprintln(out, "Setup complete. Start the gateway with: go run ./cmd/server")
	return nil
}
