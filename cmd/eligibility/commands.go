package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/khannas43/smart-eligibility/internal/detection"
	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/khannas43/smart-eligibility/internal/hybrid"
	"github.com/khannas43/smart-eligibility/internal/priority"
	"github.com/spf13/cobra"
)

func evaluateCmd() *cobra.Command {
	var useML bool

	cmd := &cobra.Command{
		Use:   "evaluate <scheme-code> <family-id>",
		Short: "Evaluate and record one family against one scheme",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.evaluator.EvaluateAndRecord(cmd.Context(), args[0], args[1], useML)
			if err != nil {
				slog.Error("evaluation not persisted", "error", err)
			}
			return printJSON(res)
		},
	}

	cmd.Flags().BoolVar(&useML, "ml", false, "Blend the scheme's ML model into the score")
	return cmd
}

func batchCmd() *cobra.Command {
	var req hybrid.BatchRequest

	cmd := &cobra.Command{
		Use:   "batch <scheme-code>",
		Short: "Evaluate every family of a district (or the listed families)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.close()

			req.SchemeCode = args[0]
			job, err := a.batches.Run(cmd.Context(), req)
			if job != nil {
				if perr := printJSON(job); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&req.DistrictID, "district", "", "District to evaluate (all districts when empty)")
	cmd.Flags().StringSliceVar(&req.FamilyIDs, "families", nil, "Explicit family IDs")
	cmd.Flags().BoolVar(&req.UseML, "ml", false, "Blend the scheme's ML model into the score")
	cmd.Flags().IntVar(&req.Workers, "workers", 0, "Parallel evaluations (engine default when 0)")
	return cmd
}

func detectCmd() *cobra.Command {
	var familyID, beneficiaryID string

	cmd := &cobra.Command{
		Use:   "detect <scheme-code>",
		Short: "Run detection for one beneficiary, or for every active enrollment of the scheme",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.close()

			if beneficiaryID == "" {
				run, err := a.detector.RunScheme(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(run)
			}

			sum, c, err := a.detector.DetectAndRecord(cmd.Context(), detection.Request{
				BeneficiaryID: beneficiaryID,
				FamilyID:      familyID,
				SchemeCode:    args[0],
			})
			if perr := printJSON(map[string]any{"summary": sum, "case": c}); perr != nil {
				return perr
			}
			return err
		},
	}

	cmd.Flags().StringVar(&beneficiaryID, "beneficiary", "", "Beneficiary to check")
	cmd.Flags().StringVar(&familyID, "family", "", "Family of the beneficiary")
	return cmd
}

func worklistCmd() *cobra.Command {
	var (
		req    priority.WorklistRequest
		output string
	)

	cmd := &cobra.Command{
		Use:   "worklist <scheme-code>",
		Short: "Generate a departmental worklist from the latest snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.close()

			req.SchemeCode = args[0]
			if req.GeneratedBy == "" {
				req.GeneratedBy = "cli"
			}
			list, err := a.prioritizer.GenerateDepartmentalWorklist(cmd.Context(), req)
			if err != nil {
				return err
			}

			if output == "" {
				return printJSON(list)
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := priority.ExportXLSX(list, f); err != nil {
				f.Close()
				return fmt.Errorf("export worklist: %w", err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			slog.Info("worklist exported",
				"list_id", list.ID,
				"entries", len(list.Entries),
				"path", output,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.DistrictID, "district", "", "Restrict to one district")
	cmd.Flags().Float64Var(&req.MinScore, "min-score", 0, "Minimum eligibility score")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "Maximum entries (engine default when 0)")
	cmd.Flags().StringVar(&req.GeneratedBy, "generated-by", "", "Officer recorded on the list")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the list as XLSX to this path instead of JSON")
	return cmd
}

func initDecisionConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-decision-config [scheme-code...]",
		Short: "Insert the default decision config for schemes that have none",
		Long: `Insert the conservative default decision config for each scheme that has
no config yet. Existing configs are never changed. Without arguments the
schemes listed under scheduler.schemes are initialized.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			schemes := args
			if len(schemes) == 0 {
				schemes = cfg.Scheduler.Schemes
			}
			if len(schemes) == 0 {
				return fmt.Errorf("no schemes given: %w", domain.ErrInvalidInput)
			}

			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.close()

			created, err := a.bander.InitializeDefaults(cmd.Context(), schemes)
			fmt.Printf("initialized: %s\n", strings.Join(created, ", "))
			return err
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
