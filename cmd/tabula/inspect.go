package main

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/koustreak/tabula/internal/errs"
	"github.com/koustreak/tabula/internal/fieldspec"
	"github.com/koustreak/tabula/internal/query"
	"github.com/koustreak/tabula/internal/server"
	"github.com/koustreak/tabula/internal/validation"
)

func newTablesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables tabula knows about",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			for _, t := range a.Registry.Tables() {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func newSchemaCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <table>",
		Short: "Print the normalized schema of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			schema, err := a.Registry.GetSchema(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), schema)
		},
	}
}

func newFieldsCommand(opts *rootOptions) *cobra.Command {
	var (
		mode     string
		parentFK string
		prefix   string
		required bool
	)

	cmd := &cobra.Command{
		Use:   "fields <table>",
		Short: "Print the form field specs of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			schema, err := a.Registry.GetSchema(ctx, args[0])
			if err != nil {
				return err
			}

			specs := a.Fields.BuildAll(ctx, schema, prefix, fieldspec.BuildOptions{
				Mode:             fieldspec.ParseMode(mode),
				ParentForeignKey: parentFK,
				Required:         required,
			})
			out := make([]server.FieldResponse, len(specs))
			for i, spec := range specs {
				out[i] = server.FieldResponse{FieldSpec: spec}
				if spec.Options == nil {
					continue
				}
				if out[i].Options, err = spec.Options.Wait(ctx); err != nil {
					out[i].OptionsError = err.Error()
				}
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(fieldspec.ModeEdit), "edit or display")
	cmd.Flags().StringVar(&parentFK, "parent-fk", "", "column linking the form to its parent record")
	cmd.Flags().StringVar(&prefix, "prefix", "", "binding path prefix")
	cmd.Flags().BoolVar(&required, "required", false, "mark every field required")
	return cmd
}

func newValidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <table> <json-record>",
		Short: "Validate a JSON record against a table's schema",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rec query.Record
			if err := json.Unmarshal([]byte(args[1]), &rec); err != nil || rec == nil {
				return errs.Wrap(errs.ErrKindInvalidInput, "record must be a JSON object", err)
			}

			a, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			schema, err := a.Registry.GetSchema(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			problems := validation.Validate(schema, rec)
			out := cmd.OutOrStdout()
			if problems.Valid() {
				color.New(color.FgGreen).Fprintln(out, "valid")
				return nil
			}
			field := color.New(color.FgRed, color.Bold)
			for _, f := range problems.Fields() {
				field.Fprint(out, f)
				fmt.Fprintf(out, ": %s\n", problems[f])
			}
			return errs.Newf(errs.ErrKindInvalidInput, "%d field(s) failed validation", len(problems))
		},
	}
}
