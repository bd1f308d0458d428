package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"pamsync/internal/config"
	"pamsync/internal/sheet"
	"pamsync/internal/validate"
)

func validateCmd() *cobra.Command {
	var domains []string

	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Parse and validate a sheet export offline",
		Long: `Parse and validate a sheet export without touching the database.

Every rejected row is printed with its row number. The command exits
non-zero when the document is malformed or any row is rejected.

Examples:
  pamctl validate semana-10.csv --domain acme.com
  CONFIG_ENV=production pamctl validate semana-10.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if len(domains) == 0 {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("no --domain given and config could not be loaded: %w", err)
				}
				domains = cfg.Sync.AllowedDomains
			}
			return runValidate(cmd.OutOrStdout(), string(raw), domains)
		},
	}

	cmd.Flags().StringSliceVarP(&domains, "domain", "d", nil, "allowed identity domain (repeatable)")
	return cmd
}

func runValidate(w io.Writer, doc string, domains []string) error {
	v, err := validate.New(domains)
	if err != nil {
		return err
	}
	s, err := sheet.Parse(doc)
	if err != nil {
		return err
	}

	res := v.Validate(s)
	for _, msg := range res.Messages() {
		fmt.Fprintln(w, msg)
	}

	periods := map[string]int{}
	for _, row := range res.Valid {
		periods[row.Period().String()]++
	}
	fmt.Fprintf(w, "%d valid rows, %d rejected, %d periods\n", len(res.Valid), len(res.Errors), len(periods))

	if len(res.Errors) > 0 {
		return fmt.Errorf("%d rows rejected", len(res.Errors))
	}
	if res.Failed() {
		return fmt.Errorf("document has no valid rows")
	}
	return nil
}
