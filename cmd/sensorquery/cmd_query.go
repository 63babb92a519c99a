package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"github.com/vjranagit/sensorquery/pkg/query"
	"github.com/vjranagit/sensorquery/pkg/types"
)

var measurementsCmd = &cobra.Command{
	Use:   "measurements",
	Short: "List raw measurements as JSON",
	Example: `  sensorquery measurements --sensor-name urn:dev:mac:fcc23d000000050f \
    --sensor-type temp --amount 5 --from 2019-03-28T10:00:00 --to 2019-03-28T10:10:00`,
	RunE: runMeasurements,
}

var avgCmd = &cobra.Command{
	Use:     "avg",
	Short:   "Average one sensor type over a time window",
	Example: `  sensorquery avg --sensor-type humidity --from 2019-01-01T00:00:00 --to 2019-01-07T00:00:00`,
	RunE:    runAvg,
}

func init() {
	measurementsCmd.Flags().String("sensor-name", "", "sensor name prefix, e.g. urn:dev:mac:fcc23d000000050f")
	measurementsCmd.Flags().Int("amount", query.DefaultAmount, "maximum number of measurements")
	measurementsCmd.Flags().String("sensor-type", "", "sensor type, e.g. temp, humidity, pressure")
	measurementsCmd.Flags().String("from", "", "window start, yyyy-MM-ddTHH:mm:ss")
	measurementsCmd.Flags().String("to", "", "window end, yyyy-MM-ddTHH:mm:ss")

	avgCmd.Flags().String("sensor-type", "", "sensor type, e.g. temp, humidity, pressure")
	avgCmd.Flags().String("from", "", "window start, yyyy-MM-ddTHH:mm:ss")
	avgCmd.Flags().String("to", "", "window end, yyyy-MM-ddTHH:mm:ss")

	rootCmd.AddCommand(measurementsCmd, avgCmd)
}

func runMeasurements(cmd *cobra.Command, args []string) error {
	params := types.ListParams{
		SensorName: stringFlag(cmd, "sensor-name"),
		SensorType: stringFlag(cmd, "sensor-type"),
		FromDate:   stringFlag(cmd, "from"),
		ToDate:     stringFlag(cmd, "to"),
	}
	if cmd.Flags().Changed("amount") {
		amount, _ := cmd.Flags().GetInt("amount")
		params.Amount = &amount
	}

	resolver, closeFn, err := newResolver(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	measurements, err := resolver.ListMeasurements(cmd.Context(), params)
	if err != nil {
		return err
	}
	return printJSON(measurements)
}

func runAvg(cmd *cobra.Command, args []string) error {
	params := types.AverageParams{
		SensorType: stringFlag(cmd, "sensor-type"),
		FromDate:   stringFlag(cmd, "from"),
		ToDate:     stringFlag(cmd, "to"),
	}

	resolver, closeFn, err := newResolver(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	agg, err := resolver.AverageByDate(cmd.Context(), params)
	if err != nil {
		return err
	}
	return printJSON(agg)
}

func newResolver(cmd *cobra.Command) (*query.Resolver, func(), error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, nil, err
	}

	backend, err := openBackend(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {
		backend.Close()
		logger.Sync()
	}
	return query.NewResolver(backend, query.WithLogger(logger)), closeFn, nil
}

// stringFlag returns the flag value only when the user set it
func stringFlag(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
