package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agritutor/agritutor/internal/metrics"
	"github.com/agritutor/agritutor/internal/output"
	"github.com/agritutor/agritutor/internal/prompt"
	"github.com/agritutor/agritutor/internal/tutor"
)

var (
	templatesCategory string
	fillVars          []string
	fillAllowMissing  bool
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List prompt categories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, formatter, err := catalogCommandSetup(cmd)
		if err != nil {
			return err
		}
		return writeCategories(cmd.OutOrStdout(), formatter, catalog)
	},
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List prompt templates",
	Long: `List prompt templates in catalog order.

With --category, only templates in that category are shown. An unknown
category lists nothing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, formatter, err := catalogCommandSetup(cmd)
		if err != nil {
			return err
		}
		return writeTemplates(cmd.OutOrStdout(), formatter, catalog, templatesCategory)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <template-id>",
	Short: "Show a template with its variables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, formatter, err := catalogCommandSetup(cmd)
		if err != nil {
			return err
		}
		tmpl, err := catalog.Get(strings.TrimSpace(args[0]))
		if err != nil {
			return err
		}
		rendered, err := formatter.FormatTemplate(tmpl)
		return render(cmd.OutOrStdout(), rendered, err)
	},
}

var fillCmd = &cobra.Command{
	Use:   "fill <template-id>",
	Short: "Fill a template's placeholders",
	Long: `Fill a template's {VARIABLE} placeholders and print the prompt.

Values are applied in the order given. Every declared variable must have a
non-blank value unless --allow-incomplete is set.`,
	Example: `  agritutor fill regional-context --var TOPIC="Drip irrigation" --var REGION=Punjab`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, formatter, err := catalogCommandSetup(cmd)
		if err != nil {
			return err
		}
		values, err := parseVars(fillVars)
		if err != nil {
			return err
		}
		result, fillErr := fillTemplate(catalog, strings.TrimSpace(args[0]), values, fillAllowMissing)
		if result.TemplateID == "" {
			return fillErr
		}
		rendered, err := formatter.FormatFill(result)
		if err := writeToSink(cmd, result.TemplateID, rendered, err); err != nil {
			return err
		}
		return fillErr
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Catalog maintenance commands",
}

var catalogLintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Check template variables against placeholders",
	Long: `Cross-check each template's declared variables against the {NAME}
placeholders in its body. Exits non-zero when issues are found.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, formatter, err := catalogCommandSetup(cmd)
		if err != nil {
			return err
		}
		return lintCatalog(cmd.OutOrStdout(), formatter, catalog)
	},
}

func init() {
	rootCmd.AddCommand(categoriesCmd, templatesCmd, showCmd, fillCmd, catalogCmd)
	catalogCmd.AddCommand(catalogLintCmd)

	templatesCmd.Flags().StringVarP(&templatesCategory, "category", "c", "", "only list templates in this category")

	fillCmd.Flags().StringArrayVar(&fillVars, "var", nil, "variable value as KEY=VALUE (repeatable)")
	fillCmd.Flags().BoolVar(&fillAllowMissing, "allow-incomplete", false, "print the prompt even when variables are blank")
	addOutputFlags(fillCmd)
}

func catalogCommandSetup(cmd *cobra.Command) (*prompt.Catalog, output.Formatter, error) {
	formatter, err := currentFormatter()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, nil, err
	}
	return catalog, formatter, nil
}

func writeTemplates(w io.Writer, formatter output.Formatter, catalog *prompt.Catalog, category string) error {
	category = strings.TrimSpace(category)
	templates := catalog.Templates()
	if category != "" {
		templates = catalog.InCategory(category)
	}
	rendered, err := formatter.FormatTemplates(templates)
	return render(w, rendered, err)
}

func writeCategories(w io.Writer, formatter output.Formatter, catalog *prompt.Catalog) error {
	rendered, err := formatter.FormatCategories(output.SummarizeCategories(catalog))
	return render(w, rendered, err)
}

// lintCatalog prints lint findings and fails when there are any.
func lintCatalog(w io.Writer, formatter output.Formatter, catalog *prompt.Catalog) error {
	issues := catalog.Lint()
	metrics.RecordCommand("catalog-lint", len(issues) == 0)
	rendered, err := formatter.FormatIssues(issues)
	if err := render(w, rendered, err); err != nil {
		return err
	}
	if len(issues) > 0 {
		return fmt.Errorf("catalog %s has %d issue(s)", catalog.Source(), len(issues))
	}
	return nil
}

// fillTemplate fills template id with values. The result is returned even
// when values are incomplete so callers can show what is missing; the error
// is then an *tutor.IncompleteError unless allowIncomplete is set.
func fillTemplate(catalog *prompt.Catalog, id string, values prompt.Values, allowIncomplete bool) (output.FillResult, error) {
	tmpl, err := catalog.Get(id)
	if err != nil {
		return output.FillResult{}, err
	}

	result := output.FillResult{
		TemplateID: tmpl.ID,
		Prompt:     tmpl.Fill(values),
		Complete:   tmpl.Complete(values),
		Missing:    prompt.Missing(tmpl.Variables, values),
	}
	metrics.RecordFill(tmpl.ID, result.Complete)

	if !result.Complete && !allowIncomplete {
		return result, &tutor.IncompleteError{TemplateID: tmpl.ID, Missing: result.Missing}
	}
	return result, nil
}
