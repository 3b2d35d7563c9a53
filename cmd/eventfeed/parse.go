package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"eventfeed/internal/config"
	"eventfeed/internal/feed"
	"eventfeed/internal/model"
	"eventfeed/internal/normalize"
)

var (
	parseDate          string
	parseTime          string
	parseTitle         string
	parseURL           string
	parseSchema        string
	parseTimezone      string
	parseStrictWeekday bool
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Normalize literal date and time text",
	Long:  "Run the row normalizer on literal listing text and print the resulting occurrences as feed JSON. No config file or browser is needed.",
	RunE:  runParse,
}

func init() {
	parseCmd.Flags().StringVar(&parseDate, "date", "", "Date text, e.g. \"Mon 5 - Wed 7 Jun 2023\" (required)")
	parseCmd.Flags().StringVar(&parseTime, "time", "", "Time text, e.g. \"10:00 to 12:00, 14:00 to 16:00\"")
	parseCmd.Flags().StringVar(&parseTitle, "title", "Untitled", "Event heading")
	parseCmd.Flags().StringVar(&parseURL, "url", "", "Event URL")
	parseCmd.Flags().StringVar(&parseSchema, "schema", config.DefaultSchema, "Markup variant: legacy or current")
	parseCmd.Flags().StringVar(&parseTimezone, "timezone", config.DefaultTimezone, "IANA time zone of the listing")
	parseCmd.Flags().BoolVar(&parseStrictWeekday, "strict-weekday", false, "Reject weekday tokens that disagree with the date")

	if err := parseCmd.MarkFlagRequired("date"); err != nil {
		panic(fmt.Sprintf("failed to mark date flag as required: %v", err))
	}

	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, _ []string) error {
	schema, err := normalize.SchemaByName(parseSchema)
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(parseTimezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %s: %w", parseTimezone, err)
	}

	n := normalize.NewNormalizer(schema, loc, parseStrictWeekday)
	occs, err := n.Normalize(model.RawRow{
		Title:    parseTitle,
		URL:      parseURL,
		DateText: parseDate,
		TimeText: parseTime,
	})
	if err != nil {
		return err
	}

	body, err := feed.EncodeJSON(occs)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(body)
	return err
}
