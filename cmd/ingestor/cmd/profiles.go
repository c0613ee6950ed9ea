package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"golang-statement-ingestion/internal/profiles"

	"github.com/spf13/cobra"
)

// profilesCmd lists the predefined provider profiles
var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List predefined provider profiles",
	Long: `Profiles lists the predefined provider profiles available to the
ingest command, with their date formats and mapped fields. Custom
profiles can be supplied as JSON documents via --profile-file.`,
	RunE: runProfiles,
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}

func runProfiles(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "NAME\tDATE FORMAT\tDELIMITER\tFIELDS\tDESCRIPTION")

	for _, profile := range profiles.ListProfiles() {
		fields := profile.MappedFields()
		sort.Strings(fields)
		fmt.Fprintf(w, "%s\t%s\t%q\t%s\t%s\n",
			profile.Name,
			profile.DateFormat,
			profile.Delimiter,
			strings.Join(fields, ","),
			profile.Description,
		)
	}

	return nil
}
