package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"alfredoptarigan/cv-matcher/internal/services"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Inspect the canonical skill vocabulary",
}

var skillsCanonicalizeCmd = &cobra.Command{
	Use:   "canonicalize [skill...]",
	Short: "Print the canonical name and category of each skill",
	Example: `  matchctl skills canonicalize golang "React.js" k8s
  matchctl skills canonicalize --text "5+ years with Postgres and Node.js"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		tablePath, _ := cmd.Flags().GetString("skill-table")

		table, err := services.LoadSkillTable(tablePath)
		if err != nil {
			return err
		}
		canon := services.NewCanonicalizer(table)

		if text != "" {
			args = append(args, canon.MentionedSkills(text)...)
		}
		if len(args) == 0 {
			return fmt.Errorf("no skills given")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "INPUT\tCANONICAL\tCATEGORY")
		for _, skill := range args {
			category := canon.Category(skill)
			if category == "" {
				category = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", strings.TrimSpace(skill), canon.Canonical(skill), category)
		}
		return w.Flush()
	},
}

func init() {
	skillsCanonicalizeCmd.Flags().String("text", "", "free text to scan for known skills")
	skillsCanonicalizeCmd.Flags().String("skill-table", "", "extra skill table YAML layered over the built-in one")
	skillsCmd.AddCommand(skillsCanonicalizeCmd)
}
