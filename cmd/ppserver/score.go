package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Blackbeard96/summer-games/internal/domain/assessment"
	"github.com/Blackbeard96/summer-games/internal/domain/scoring"
)

// scoreRequest is the JSON read by the score command.
type scoreRequest struct {
	Kind     string          `json:"kind"`
	Goal     float64         `json:"goal"`
	Actual   float64         `json:"actual"`
	MaxScore float64         `json:"max_score"`
	Scoring  *scoring.Config `json:"scoring,omitempty"`
}

func newScoreCmd() *cobra.Command {
	var compact bool

	cmd := &cobra.Command{
		Use:   "score [file]",
		Short: "Score a goal offline and print the result as JSON",
		Long: `Reads {"kind","goal","actual","max_score","scoring"} from the file, or
from stdin when the file is "-" or omitted, and prints the scoring result.
An omitted scoring block uses the default tables of the kind.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			res, err := scoreFrom(in)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(res)
		},
	}
	cmd.Flags().BoolVar(&compact, "compact", false, "print single-line JSON")
	return cmd
}

func scoreFrom(r io.Reader) (scoring.Result, error) {
	var req scoreRequest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return scoring.Result{}, fmt.Errorf("decode score request: %w", err)
	}
	if req.Kind == "" {
		req.Kind = scoring.KindTest
	}
	if !assessment.Kind(req.Kind).IsValid() {
		return scoring.Result{}, fmt.Errorf("unknown assessment kind %q", req.Kind)
	}

	var cfg scoring.Config
	if req.Scoring != nil {
		cfg = *req.Scoring
	}
	return scoring.Preview(req.Kind, scoring.Input{
		Goal:     req.Goal,
		Actual:   req.Actual,
		MaxScore: req.MaxScore,
	}, cfg)
}
