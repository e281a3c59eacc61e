package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"exceptionforms/client"
	"exceptionforms/filter"
	"exceptionforms/models"

	"github.com/spf13/cobra"
)

func (a *app) readLine(prompt string) (string, error) {
	fmt.Fprint(a.out, prompt)
	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *app) loginCmd() *cobra.Command {
	var user, pass string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return errors.New("--username is required")
			}
			if pass == "" {
				p, err := a.readLine("Password: ")
				if err != nil {
					return err
				}
				pass = p
			}

			session, err := a.client.Login(cmd.Context(), user, pass)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Logged in as %s (%s)\n", session.User.Name, session.User.Role)
			if session.User.MustChangePassword {
				fmt.Fprintln(a.out, "A password change is required: formsctl passwd --current ... --new ...")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "username", "u", "", "username")
	cmd.Flags().StringVarP(&pass, "password", "p", os.Getenv("FORMSCTL_PASSWORD"), "password (prompted when empty)")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.client.Logout(cmd.Context())
		},
	}
}

func (a *app) registerCmd() *cobra.Command {
	var user, pass, name string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a reviewer account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Register(cmd.Context(), user, pass, name); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Registration successful!")
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "username", "u", "", "username")
	cmd.Flags().StringVarP(&pass, "password", "p", "", "password")
	cmd.Flags().StringVar(&name, "name", "", "full name")
	return cmd
}

func (a *app) passwdCmd() *cobra.Command {
	var current, next string
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change the password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.ChangePassword(cmd.Context(), current, next); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Password changed")
			return nil
		},
	}
	cmd.Flags().StringVar(&current, "current", "", "current password")
	cmd.Flags().StringVar(&next, "new", "", "new password")
	return cmd
}

func parseFormType(s string) (models.FormType, error) {
	if s == "" || s == "all" {
		return "", nil
	}
	return models.ParseFormType(s)
}

func parseDay(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid form id %q", s)
	}
	return uint(id), nil
}

func (a *app) dashboardCmd() *cobra.Command {
	var (
		formType, mode   string
		status, from, to string
		f                filter.Filter
	)
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "List forms with the summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ft, err := parseFormType(formType)
			if err != nil {
				return err
			}
			m, err := models.ParseMode(mode)
			if err != nil {
				return err
			}
			f.Status = models.Status(status)
			if f.From, err = parseDay(from, false); err != nil {
				return err
			}
			if f.To, err = parseDay(to, true); err != nil {
				return err
			}

			view := client.NewDashboardView(a.client, ft, m)
			view.Filter = f
			if err := view.Refresh(cmd.Context()); err != nil {
				return err
			}
			return a.printDashboard(view)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&formType, "type", "", "hourly, supervisor or all")
	fl.StringVar(&mode, "mode", "", "pure or mapped (default: every record)")
	fl.StringVar(&f.Search, "search", "", "free-text search")
	fl.StringVar(&status, "status", "", "pending, processed or error")
	fl.StringVar(&f.Employee, "employee", "", "employee name")
	fl.StringVar(&f.PassNumber, "pass", "", "pass number")
	fl.StringVar(&f.Title, "title", "", "title")
	fl.StringVar(&f.Location, "location", "", "location")
	fl.StringVar(&f.JobNumber, "job", "", "job number")
	fl.StringVar(&from, "from", "", "uploaded on or after YYYY-MM-DD")
	fl.StringVar(&to, "to", "", "uploaded on or before YYYY-MM-DD")
	return cmd
}

func (a *app) printDashboard(view *client.DashboardView) error {
	s := view.Summary()
	fmt.Fprintf(a.out, "%s\n\n", view.Title())
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Total forms\t%d\n", s.TotalForms)
	fmt.Fprintf(tw, "Total overtime\t%s\n", s.TotalOvertime)
	fmt.Fprintf(tw, "Job numbers\t%d (%d unique)\n", s.TotalJobNumbers, s.UniqueJobNumbers)
	fmt.Fprintf(tw, "Top position\t%s (%d)\n", s.MostRelevantPosition.Position, s.MostRelevantPosition.Count)
	fmt.Fprintf(tw, "Top location\t%s (%d)\n", s.MostRelevantLocation.Location, s.MostRelevantLocation.Count)
	if s.MostCommonReason != nil {
		fmt.Fprintf(tw, "Top reason\t%s (%d)\n", s.MostCommonReason.Reason, s.MostCommonReason.Count)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	rows := view.Rows()
	fmt.Fprintf(a.out, "\nShowing %d forms\n", len(rows))
	tw = tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tPASS\tEMPLOYEE\tTITLE\tLOCATION\tJOB\tUPLOADED\tFILE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.FormType, r.Status, r.PassNumber, r.EmployeeName, r.Title,
			r.Location, r.JobNumber, r.UploadDate.Local().Format("2006-01-02 15:04"), r.FileName)
	}
	return tw.Flush()
}

func (a *app) showCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Print one form as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			m, err := models.ParseMode(mode)
			if err != nil {
				return err
			}

			res, err := a.client.GetForm(cmd.Context(), id, m)
			if err != nil {
				return err
			}
			if res.Fallback != nil {
				fmt.Fprintf(a.out, "Note: %s\n\n", res.Fallback.Notice())
			}
			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			return enc.Encode(res.FormDetail)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "mapped", "pure or mapped")
	return cmd
}

func (a *app) saveCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "save ID FILE",
		Short: "Replace a form with the JSON in FILE",
		Long:  "Replace a form with the JSON in FILE. The output of show is accepted as is.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			m, err := models.ParseMode(mode)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			var update models.FormUpdate
			if err := json.Unmarshal(data, &update); err != nil {
				return fmt.Errorf("invalid form JSON: %w", err)
			}

			res, err := a.client.SaveForm(cmd.Context(), id, update, m)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Form %d saved (%d rows)\n", res.Form.ID, len(res.Rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "mapped", "pure or mapped")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.client.DeleteForm(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Form %d deleted\n", id)
			return nil
		},
	}
}

func (a *app) uploadCmd() *cobra.Command {
	var formType string
	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a scanned form",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ft, err := models.ParseFormType(formType)
			if err != nil {
				return err
			}

			var file *client.File
			if len(args) > 0 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				file = &client.File{Name: filepath.Base(f.Name()), Body: f}
			}

			u := client.NewUploader(a.client, ft)
			u.OnStateChange = func(s client.UploadState) {
				if s == client.UploadSubmitting {
					fmt.Fprintln(a.out, "Uploading...")
				}
			}
			u.Navigate = func(route string) {
				fmt.Fprintf(a.out, "Open the dashboard: formsctl dashboard --type %s (%s)\n", ft, route)
			}
			res, err := u.Submit(cmd.Context(), file)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s: %d succeeded, %d failed, forms %v\n", res.Message, res.Success, res.Failed, res.FormIDs)
			return nil
		},
	}
	cmd.Flags().StringVar(&formType, "type", "hourly", "hourly or supervisor")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var formType, mode, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the CSV export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ft, err := parseFormType(formType)
			if err != nil {
				return err
			}
			m, err := models.ParseMode(mode)
			if err != nil {
				return err
			}

			tmp, err := os.CreateTemp(".", ".export-*.csv")
			if err != nil {
				return err
			}
			defer os.Remove(tmp.Name())

			name, err := a.client.Export(cmd.Context(), ft, m, tmp)
			if cerr := tmp.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			if output != "" {
				name = output
			}
			if err := os.Rename(tmp.Name(), name); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Exported to %s\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&formType, "type", "", "hourly, supervisor or all")
	cmd.Flags().StringVar(&mode, "mode", "", "pure or mapped")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: the server's file name)")
	return cmd
}

func (a *app) auditCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit trail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logs, err := a.client.AuditTrail(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tUSER\tACTION\tTARGET\tDETAILS")
			for _, l := range logs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					l.Timestamp.Local().Format("2006-01-02 15:04:05"), l.User, l.Action, l.Target, l.Details)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "number of entries")
	return cmd
}

func (a *app) modeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mode [pure|mapped]",
		Short: "Show or set the extraction mode",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				m, err := a.client.ExtractionMode(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, m)
				return nil
			}
			m, err := models.ParseMode(args[0])
			if err != nil || m == models.ModeNone {
				return errors.New("mode must be pure or mapped")
			}
			if err := a.client.SetExtractionMode(cmd.Context(), m); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Extraction mode set to %s\n", m)
			return nil
		},
	}
}
