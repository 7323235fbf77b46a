package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jurisflow/calc-engine/generic"
	"github.com/jurisflow/calc-engine/reference"
	"github.com/jurisflow/calc-engine/store/sqlite"
)

var (
	referenceDate string

	appendKind   string
	appendYear   int
	appendMonth  int
	appendAmount string
)

var referenceCmd = &cobra.Command{
	Use:   "reference",
	Short: "Inspect and maintain the minimum wage and INSS ceiling tables",
}

var minimumWageCmd = &cobra.Command{
	Use:   "minimum-wage",
	Short: "Minimum wage in force at --date",
	RunE: func(cmd *cobra.Command, args []string) error {
		return lookupReference(cmd, reference.KindMinimumWage)
	},
}

var ceilingCmd = &cobra.Command{
	Use:   "ceiling",
	Short: "INSS benefit ceiling in force at --date",
	RunE: func(cmd *cobra.Command, args []string) error {
		return lookupReference(cmd, reference.KindBenefitCeiling)
	},
}

var appendCmd = &cobra.Command{
	Use:   "append",
	Short: "Add or replace a breakpoint; it is replayed on every start",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := reference.ParseKind(appendKind)
		if err != nil {
			return err
		}
		amount, err := decimal.NewFromString(appendAmount)
		if err != nil {
			return eris.Wrapf(err, "invalid --amount %q", appendAmount)
		}

		env, err := newEngine(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		value := sqlite.ReferenceValue{Kind: kind, Year: appendYear, Month: time.Month(appendMonth), Amount: amount}
		if err := env.table.Append(value.Kind, value.Year, value.Month, value.Amount); err != nil {
			return err
		}
		if err := env.store.SaveReferenceValue(cmd.Context(), value); err != nil {
			return err
		}
		zap.L().Info("reference value appended", zap.String("kind", string(kind)), zap.Int("year", appendYear))
		return printJSON(cmd.OutOrStdout(), value)
	},
}

func lookupReference(cmd *cobra.Command, kind reference.Kind) error {
	at := generic.Today()
	if referenceDate != "" {
		parsed, err := generic.ParseDate(referenceDate)
		if err != nil {
			return eris.Wrap(err, "invalid --date")
		}
		at = parsed
	}

	env, err := newEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	amount, err := env.table.Lookup(kind, at)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{
		"kind":      kind,
		"date":      at,
		"amount":    amount,
		"formatted": reference.FormatBRL(amount),
		"version":   env.table.Version(),
	})
}

func init() {
	referenceCmd.PersistentFlags().StringVar(&referenceDate, "date", "", "reference date (YYYY-MM-DD, default today)")

	appendCmd.Flags().StringVar(&appendKind, "kind", "", "series: minimum_wage or benefit_ceiling")
	appendCmd.Flags().IntVar(&appendYear, "year", 0, "year of the breakpoint")
	appendCmd.Flags().IntVar(&appendMonth, "month", 1, "month the value takes effect")
	appendCmd.Flags().StringVar(&appendAmount, "amount", "", "amount in BRL")

	referenceCmd.AddCommand(minimumWageCmd, ceilingCmd, appendCmd)
	rootCmd.AddCommand(referenceCmd)
}
