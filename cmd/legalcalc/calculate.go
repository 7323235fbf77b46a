package main

import (
	"os"

	json "github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jurisflow/calc-engine/arrears"
	"github.com/jurisflow/calc-engine/facts"
	"github.com/jurisflow/calc-engine/factory"
	"github.com/jurisflow/calc-engine/generic"
	"github.com/jurisflow/calc-engine/severance"
)

var (
	factsFile string
	extracted bool

	arrearsAmount  string
	arrearsStart   string
	arrearsEnd     string
	arrearsIndex   string
	arrearsUplift  bool
	arrearsDynamic bool
)

var severanceCmd = &cobra.Command{
	Use:   "severance",
	Short: "Compute severance from labor facts",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := readLaborFacts(factsFile, extracted)
		if err != nil {
			return err
		}
		res := severance.Compute(f)
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var arrearsCmd = &cobra.Command{
	Use:   "arrears",
	Short: "Compute corrected social-security arrears",
	Long:  "Uses --facts when given (the dynamic-base detector decides the base); otherwise --amount, --start and --end describe the input explicitly.",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newEngine(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		calc := arrears.NewCalculator(env.table, env.provider, arrears.WithLogger(zap.L()))

		var res arrears.Result
		if factsFile != "" {
			f, err := readBenefitFacts(factsFile, extracted)
			if err != nil {
				return err
			}
			res = calc.CalculateFromFacts(cmd.Context(), f)
		} else {
			in, err := explicitArrearsInput()
			if err != nil {
				return err
			}
			res = calc.Calculate(cmd.Context(), in)
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func explicitArrearsInput() (arrears.Input, error) {
	in := arrears.Input{Index: arrearsIndex, Uplift25: arrearsUplift, DynamicBase: arrearsDynamic}
	if arrearsAmount != "" {
		amount, err := decimal.NewFromString(arrearsAmount)
		if err != nil {
			return in, eris.Wrapf(err, "invalid --amount %q", arrearsAmount)
		}
		in.BenefitAmount = amount
	}
	var err error
	if in.Start, err = generic.ParseDate(arrearsStart); err != nil {
		return in, eris.Wrap(err, "invalid --start")
	}
	if in.End, err = generic.ParseDate(arrearsEnd); err != nil {
		return in, eris.Wrap(err, "invalid --end")
	}
	return in, nil
}

func readLaborFacts(path string, fromExtraction bool) (facts.LaborFacts, error) {
	var f facts.LaborFacts
	raw, err := readFactsFile(path)
	if err != nil {
		return f, err
	}
	if fromExtraction {
		f, dropped, err := factory.NewFactsFactory(zap.L()).ParseLaborFacts(string(raw))
		logDropped(dropped)
		return f, err
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, eris.Wrapf(err, "decode labor facts %s", path)
	}
	return f, nil
}

func readBenefitFacts(path string, fromExtraction bool) (facts.BenefitFacts, error) {
	var f facts.BenefitFacts
	raw, err := readFactsFile(path)
	if err != nil {
		return f, err
	}
	if fromExtraction {
		f, dropped, err := factory.NewFactsFactory(zap.L()).ParseBenefitFacts(string(raw))
		logDropped(dropped)
		return f, err
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, eris.Wrapf(err, "decode benefit facts %s", path)
	}
	return f, nil
}

func readFactsFile(path string) ([]byte, error) {
	if path == "" {
		return nil, eris.New("--facts is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read facts %s", path)
	}
	return raw, nil
}

func logDropped(fields []string) {
	if len(fields) > 0 {
		zap.L().Warn("extracted fields could not be read", zap.Strings("fields", fields))
	}
}

func init() {
	severanceCmd.Flags().StringVar(&factsFile, "facts", "", "labor facts JSON file")
	severanceCmd.Flags().BoolVar(&extracted, "extracted", false, "treat --facts as raw extraction output")
	rootCmd.AddCommand(severanceCmd)

	arrearsCmd.Flags().StringVar(&factsFile, "facts", "", "benefit facts JSON file")
	arrearsCmd.Flags().BoolVar(&extracted, "extracted", false, "treat --facts as raw extraction output")
	arrearsCmd.Flags().StringVar(&arrearsAmount, "amount", "", "monthly benefit amount (RMI)")
	arrearsCmd.Flags().StringVar(&arrearsStart, "start", "", "first month owed (YYYY-MM-DD)")
	arrearsCmd.Flags().StringVar(&arrearsEnd, "end", "", "last month owed (YYYY-MM-DD)")
	arrearsCmd.Flags().StringVar(&arrearsIndex, "index", facts.DefaultCorrectionIndex, "correction index (SELIC, INPC, IPCA-E)")
	arrearsCmd.Flags().BoolVar(&arrearsUplift, "uplift", false, "apply the 25% permanent-assistance uplift")
	arrearsCmd.Flags().BoolVar(&arrearsDynamic, "dynamic-base", false, "use the minimum wage in force each month as the base")
	rootCmd.AddCommand(arrearsCmd)
}
