package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/isdm-app/isdm-api/internal/directory"
	"github.com/isdm-app/isdm-api/internal/models"
	"github.com/isdm-app/isdm-api/internal/service"
)

// viewOptions are the directory query flags shared by list and export.
type viewOptions struct {
	search string
	sort   string
	status string
	career string
}

func (o *viewOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.search, "search", "s", "", "Substring of the full name or DNI without dots")
	cmd.Flags().StringVar(&o.sort, "sort", string(directory.SortAZ), "a-z, z-a, reciente or antiguo")
	cmd.Flags().StringVar(&o.status, "status", directory.StatusAll, "todos, activo, pendiente or inactivo")
	cmd.Flags().StringVar(&o.career, "career", directory.CareerAll, "todas or a career name")
}

func newStudentsCommand(s Services) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "students",
		Short: "Inspect and manage student records",
	}
	cmd.AddCommand(newStudentsListCommand(s.Directory))
	cmd.AddCommand(newStudentsGetCommand(s.Students))
	cmd.AddCommand(newStudentsDeleteCommand(s.Students))
	cmd.AddCommand(newStudentsExportCommand(s.Directory, s.Exports))
	return cmd
}

func newStudentsListCommand(dir directoryLister) *cobra.Command {
	var opts viewOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the directory view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStudentsList(cmd, dir, opts)
		},
	}
	opts.bind(cmd)
	return cmd
}

func newStudentsGetCommand(students studentService) *cobra.Command {
	return &cobra.Command{
		Use:   "get [id]",
		Short: "Show one student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStudentsGet(cmd, students, args[0])
		},
	}
}

func newStudentsDeleteCommand(students studentService) *cobra.Command {
	var assumeYes bool
	cmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a student after confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStudentsDelete(cmd, students, args[0], assumeYes)
		},
	}
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func newStudentsExportCommand(dir directoryLister, exports exportRenderer) *cobra.Command {
	var (
		opts   viewOptions
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the directory view to a CSV or PDF file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStudentsExport(cmd, dir, exports, opts, format, output)
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", string(service.ExportCSV), "csv or pdf")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (defaults to the generated name)")
	return cmd
}

func loadView(cmd *cobra.Command, dir directoryLister, opts viewOptions) ([]models.Student, directory.Query, error) {
	if dir == nil {
		return nil, directory.Query{}, errors.New("directory service not configured")
	}
	q, err := directory.ParseQuery(opts.search, opts.sort, opts.status, opts.career)
	if err != nil {
		return nil, q, err
	}

	ctx, cancel := contextWithLoadTimeout(cmd)
	defer cancel()
	if err := dir.WaitReady(ctx); err != nil {
		return nil, q, fmt.Errorf("failed to load students: %w", err)
	}
	view, err := dir.List(q)
	return view, q, err
}

func runStudentsList(cmd *cobra.Command, dir directoryLister, opts viewOptions) error {
	view, _, err := loadView(cmd, dir, opts)
	if err != nil {
		return err
	}
	if len(view) == 0 {
		cmd.Println("No students match the current filters.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDNI\tCAREER\tSTATUS")
	for _, s := range view {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.FullName(), s.DNI, s.Career, s.DisplayStatus())
	}
	if err := w.Flush(); err != nil {
		return err
	}
	cmd.Printf("\nTotal: %d students\n", len(view))
	return nil
}

func runStudentsGet(cmd *cobra.Command, students studentService, id string) error {
	if students == nil {
		return errors.New("student service not configured")
	}
	s, err := students.Get(commandContext(cmd), id)
	if err != nil {
		return fmt.Errorf("failed to get student: %w", err)
	}

	cmd.Printf("ID:        %s\n", s.ID)
	cmd.Printf("Name:      %s\n", s.FullName())
	cmd.Printf("DNI:       %s\n", s.DNI)
	cmd.Printf("Birthdate: %s\n", s.BirthDate)
	cmd.Printf("Email:     %s\n", s.Email)
	cmd.Printf("Mobile:    %s\n", s.PhoneMobile)
	if s.PhoneHome != "" {
		cmd.Printf("Home:      %s\n", s.PhoneHome)
	}
	cmd.Printf("Career:    %s\n", s.Career)
	cmd.Printf("Status:    %s\n", s.DisplayStatus())
	return nil
}

func runStudentsDelete(cmd *cobra.Command, students studentService, id string, assumeYes bool) error {
	if students == nil {
		return errors.New("student service not configured")
	}
	ctx := commandContext(cmd)

	s, err := students.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get student: %w", err)
	}

	flow := directory.NewDeletionFlow(students)
	if err := flow.Request(*s); err != nil {
		return err
	}

	if !assumeYes {
		cmd.Printf("%s [y/N] ", directory.ConfirmationPrompt(*s))
		answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" && answer != "s" && answer != "si" && answer != "sí" {
			_ = flow.Cancel()
			cmd.Println("Cancelled.")
			return nil
		}
	}

	if err := flow.Confirm(ctx); err != nil {
		message := flow.Message()
		_ = flow.Acknowledge()
		return fmt.Errorf("%s: %w", message, err)
	}
	cmd.Printf("Deleted %s.\n", s.FullName())
	return nil
}

func runStudentsExport(cmd *cobra.Command, dir directoryLister, exports exportRenderer, opts viewOptions, format, output string) error {
	if exports == nil {
		return errors.New("export service not configured")
	}
	exportFormat, err := service.ParseExportFormat(format)
	if err != nil {
		return err
	}
	view, q, err := loadView(cmd, dir, opts)
	if err != nil {
		return err
	}

	file, err := exports.Render(view, q, exportFormat)
	if err != nil {
		return fmt.Errorf("failed to render export: %w", err)
	}
	path := output
	if path == "" {
		path = file.Filename
	}
	if err := os.WriteFile(path, file.Body, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	cmd.Printf("Wrote %d students to %s\n", len(view), path)
	return nil
}
