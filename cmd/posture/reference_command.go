package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"posture/internal/angles"
	"posture/internal/detector"
	"posture/internal/reference"
)

var titleCaser = cases.Title(language.English)

func newReferenceCommand(ctx *commandContext) *cobra.Command {
	referenceCmd := &cobra.Command{
		Use:   "reference",
		Short: "Manage personal reference postures",
	}

	referenceCmd.AddCommand(newReferenceSaveCommand(ctx))
	referenceCmd.AddCommand(newReferenceImportCommand(ctx))
	referenceCmd.AddCommand(newReferenceShowCommand(ctx))

	return referenceCmd
}

func newReferenceSaveCommand(ctx *commandContext) *cobra.Command {
	var neck, back, legs float64

	cmd := &cobra.Command{
		Use:   "save <user>",
		Short: "Save measured straight-sitting angles as a user's reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := newSession(ctx, args[0])
			if err != nil {
				return err
			}
			triple := angles.Triple{Neck: neck, Back: back, Legs: legs}
			if err := session.SaveReference(triple); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved reference posture for %s to %s\n", args[0], session.Paths().Reference)
			return nil
		},
	}

	cmd.Flags().Float64Var(&neck, "neck", 0, "Neck angle in degrees")
	cmd.Flags().Float64Var(&back, "back", 0, "Back angle in degrees")
	cmd.Flags().Float64Var(&legs, "legs", 0, "Legs angle in degrees")
	for _, flag := range []string{"neck", "back", "legs"} {
		_ = cmd.MarkFlagRequired(flag)
	}
	return cmd
}

func newReferenceImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <user> <capture.json>",
		Short: "Install an existing capture file as a user's reference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := newSession(ctx, args[0])
			if err != nil {
				return err
			}
			triple, err := session.ImportReference(args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported reference for %s (neck %.2f, back %.2f, legs %.2f)\n",
				args[0], triple.Neck, triple.Back, triple.Legs)
			return nil
		},
	}
}

func newReferenceShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <user>",
		Short: "Show the resolved calibration for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			session, err := newSession(ctx, args[0])
			if err != nil {
				return err
			}

			personalPath := ""
			if session.Paths().HasReference() {
				personalPath = session.Paths().Reference
			}
			res, err := reference.Resolve(cfg.Paths.BaseReference, personalPath, cfg.Analysis.ConfidenceThreshold)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Base reference:     %s\n", res.BasePath)
			fmt.Fprintf(out, "Personal reference: %s\n", res.PersonalPath)
			if !res.HasPersonal {
				fmt.Fprintln(out, "No personal reference found; baseline angles are in effect")
			}

			rows := make([][]string, 0, len(angles.Axes))
			for _, axis := range angles.Axes {
				rows = append(rows, []string{
					titleCaser.String(axis),
					formatDegrees(res.Base.Axis(axis)),
					formatDegrees(res.Personal.Axis(axis)),
					formatSigned(res.Offsets.Axis(axis)),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Region", "Base", "Personal", "Offset"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}

func newSession(ctx *commandContext, user string) (*detector.Session, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return nil, err
	}
	return detector.NewSession(cfg, logger, nil, user)
}

func formatDegrees(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64) + "°"
}

func formatSigned(value float64) string {
	return fmt.Sprintf("%+.2f°", value)
}
