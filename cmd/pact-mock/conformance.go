package main

import (
	"fmt"
	"os"

	"github.com/form3tech-oss/pact-mock/internal/app/conformance"
	"github.com/form3tech-oss/pact-mock/internal/app/mockservice"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	conformanceQueryOrderInsensitive bool
	conformanceVerbose               bool
)

var conformanceCmd = &cobra.Command{
	Use:   "conformance [testcases dir]",
	Short: "Run the matcher against a directory of pact specification test cases",
	Args:  cobra.ExactArgs(1),
	RunE:  runConformance,
}

func init() {
	conformanceCmd.Flags().BoolVar(&conformanceQueryOrderInsensitive, "query-order-insensitive", false, "compare query parameters per key")
	conformanceCmd.Flags().BoolVarP(&conformanceVerbose, "verbose", "v", false, "log every case and its comparison tree")
	rootCmd.AddCommand(conformanceCmd)
}

func runConformance(cmd *cobra.Command, args []string) error {
	if conformanceVerbose {
		log.SetLevel(log.DebugLevel)
	}

	cases, err := conformance.Load(os.DirFS(args[0]))
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		return errors.Errorf("no test cases found under %s", args[0])
	}

	matcher := mockservice.NewMatcher(mockservice.MatcherOptions{QueryOrderInsensitive: conformanceQueryOrderInsensitive})
	outcomes := conformance.NewRunner(matcher, log.StandardLogger()).Run(cases)
	failed := conformance.Failed(outcomes)

	out := cmd.OutOrStdout()
	for _, o := range failed {
		fmt.Fprintf(out, "  FAIL %s: %s\n", o.Case.Name, o.Case.Comment)
	}
	fmt.Fprintf(out, "%d passed, %d failed\n", len(outcomes)-len(failed), len(failed))

	if len(failed) > 0 {
		return errors.Errorf("%d test case(s) failed", len(failed))
	}
	return nil
}
