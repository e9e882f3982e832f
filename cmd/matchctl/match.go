package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"alfredoptarigan/cv-matcher/internal/models"
	"alfredoptarigan/cv-matcher/internal/services"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match one CV against one job's requirements",
	Example: `  matchctl match --cv cv.pdf --requirements job.yaml
  matchctl match --facts facts.json --requirements job.json --scoring-version v4.0-exact`,
	RunE: runMatch,
}

func init() {
	f := matchCmd.Flags()
	f.String("cv", "", "CV file (.pdf or plain text)")
	f.String("facts", "", "pre-extracted CV facts (JSON)")
	f.String("requirements", "", "job requirements (YAML or JSON)")
	f.String("cv-id", "", "CV identifier (default: CV file name)")
	f.String("job-id", "", "job identifier (default: requirements file name)")
	f.String("scoring-version", "", fmt.Sprintf("scoring version, one of %s", strings.Join(services.ScoringVersions(), ", ")))

	matchCmd.MarkFlagRequired("requirements")
	matchCmd.MarkFlagsOneRequired("cv", "facts")
	matchCmd.MarkFlagsMutuallyExclusive("cv", "facts")
}

func runMatch(cmd *cobra.Command, _ []string) error {
	cvPath, _ := cmd.Flags().GetString("cv")
	factsPath, _ := cmd.Flags().GetString("facts")
	reqPath, _ := cmd.Flags().GetString("requirements")
	cvID, _ := cmd.Flags().GetString("cv-id")
	jobID, _ := cmd.Flags().GetString("job-id")
	version, _ := cmd.Flags().GetString("scoring-version")

	reqs, err := readRequirements(reqPath)
	if err != nil {
		return err
	}

	command := services.MatchCommand{
		CVID:           firstNonEmpty(cvID, baseName(cvPath), baseName(factsPath)),
		JobID:          firstNonEmpty(jobID, baseName(reqPath)),
		Requirements:   reqs,
		ScoringVersion: version,
	}

	if factsPath != "" {
		if command.Facts, err = readFacts(factsPath); err != nil {
			return err
		}
	} else {
		if command.CVText, err = services.NewCVTextSource().ReadText(cvPath); err != nil {
			return err
		}
	}

	stack, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer stack.Close()

	outcome, err := stack.Service.Match(cmd.Context(), command)
	if err != nil {
		return err
	}

	return writeJSON(cmd, models.MatchResponse{
		CVID:      outcome.Entry.CVID,
		JobID:     outcome.Entry.JobID,
		CacheKey:  outcome.Entry.Key,
		Cached:    outcome.Cached,
		CreatedAt: outcome.Entry.CreatedAt,
		ExpiresAt: outcome.Entry.ExpiresAt,
		Result:    outcome.Result,
	})
}

func readRequirements(path string) (*models.RequirementSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read requirements: %w", err)
	}

	var reqs models.RequirementSet
	if err := yaml.Unmarshal(data, &reqs); err != nil {
		return nil, fmt.Errorf("failed to parse requirements: %w", err)
	}
	return &reqs, nil
}

func readFacts(path string) (*models.CVFacts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cv facts: %w", err)
	}

	var facts models.CVFacts
	if err := json.Unmarshal(data, &facts); err != nil {
		return nil, fmt.Errorf("failed to parse cv facts: %w", err)
	}
	return &facts, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func baseName(path string) string {
	if path == "" {
		return ""
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
