package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Spatial-NVR/constructor/internal/backend"
	"github.com/Spatial-NVR/constructor/internal/live"
	"github.com/Spatial-NVR/constructor/internal/report"
	"github.com/Spatial-NVR/constructor/internal/store"
	"github.com/Spatial-NVR/constructor/internal/validation"
)

func newLoginCmd(e *env) *cobra.Command {
	var form validation.LoginForm

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the backend and store the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if form.Password == "" {
				form.Password = os.Getenv("CONSTRUCTOR_PASSWORD")
			}
			if errs := form.Validate(); errs.HasErrors() {
				return errs
			}
			ctx := cmd.Context()
			client, tokens, err := e.connect(ctx)
			if err != nil {
				return err
			}
			tok, err := client.Login(ctx, form.Username, form.Password)
			if err != nil {
				return err
			}
			if err := tokens.Save(ctx, client.BaseURL(), form.Username, tok.AccessToken); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in to %s as %s\n", client.BaseURL(), form.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&form.Username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&form.Password, "password", "p", "", "Password (or CONSTRUCTOR_PASSWORD)")
	return cmd
}

func newLogoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored backend token",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, tokens, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			return tokens.Clear(cmd.Context(), client.BaseURL())
		},
	}
}

func newHardwareCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hardware",
		Short: "Manage the hardware camera registry",
	}

	var skip, limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List registered camera streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			cams, err := client.ListHardware(cmd.Context(), skip, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTREAM\tPTZ")
			for _, c := range cams {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", c.ID, c.Name, validation.SanitizeStreamURL(c.StreamURL), c.PTZEnabled)
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVar(&skip, "skip", 0, "Entries to skip")
	list.Flags().IntVar(&limit, "limit", 100, "Maximum entries")

	var form validation.HardwareForm
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a camera stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cam, err := form.Camera()
			if err != nil {
				return err
			}
			client, _, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			created, err := client.CreateHardware(cmd.Context(), cam)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), created.ID)
			return nil
		},
	}
	add.Flags().StringVar(&form.Name, "name", "", "Camera name")
	add.Flags().StringVar(&form.StreamURL, "url", "", "Stream URL (rtsp, rtsps, rtmp, http, https)")
	add.Flags().BoolVar(&form.PTZEnabled, "ptz", false, "Camera supports PTZ")
	add.Flags().StringVar(&form.PTZProtocol, "ptz-protocol", "", "PTZ protocol")
	add.Flags().StringVar(&form.Username, "stream-user", "", "Stream username")
	add.Flags().StringVar(&form.Password, "stream-password", "", "Stream password")

	remove := &cobra.Command{
		Use:   "delete <id>",
		Short: "Unregister a camera stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			return client.DeleteHardware(cmd.Context(), backend.ID(args[0]))
		},
	}

	cmd.AddCommand(list, add, remove)
	return cmd
}

func newAppealsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appeals",
		Short: "Work with the appeal list",
	}

	var (
		out      string
		local    bool
		search   string
		severity []int
		from, to string
		status   int
	)
	export := &cobra.Command{
		Use:   "export",
		Short: "Download the appeal history spreadsheet",
		Long:  "Downloads the backend's history export. With --local the spreadsheet is built here from the current appeal list and the filter flags.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, _, err := e.connect(ctx)
			if err != nil {
				return err
			}
			if !local {
				data, err := client.ExportAppealHistory(ctx)
				if err != nil {
					return err
				}
				return writeOutput(out, data)
			}

			f := live.Filter{Search: search, Severities: severity, Status: status}
			if f.From, err = live.ParseDay(from, false); err != nil {
				return err
			}
			if f.To, err = live.ParseDay(to, true); err != nil {
				return err
			}
			feed := live.NewFeed(live.Options{Fetcher: client, PageSize: 1000})
			if err := feed.Load(ctx); err != nil {
				return err
			}
			refs, err := client.LoadReferences(ctx)
			if err != nil {
				fmt.Fprintln(os.Stderr, "warning: reference names unavailable:", err)
			}
			data, err := report.Appeals(f.Apply(feed.Appeals()).Appeals, report.NamesFrom(refs))
			if err != nil {
				return err
			}
			return writeOutput(out, data)
		},
	}
	export.Flags().StringVarP(&out, "output", "o", "appeals.xlsx", "Output file")
	export.Flags().BoolVar(&local, "local", false, "Build the spreadsheet locally")
	export.Flags().StringVar(&search, "search", "", "Search ticket, location and description")
	export.Flags().IntSliceVar(&severity, "severity", nil, "Severity ids")
	export.Flags().StringVar(&from, "from", "", "First day, YYYY-MM-DD")
	export.Flags().StringVar(&to, "to", "", "Last day, YYYY-MM-DD")
	export.Flags().IntVar(&status, "status", 0, "Status id")

	cmd.AddCommand(export)
	return cmd
}

func newDraftsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "Inspect locally saved drafts",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List drafts, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := e.openDB(cmd.Context())
			if err != nil {
				return err
			}
			drafts, err := store.NewDraftStore(db).List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tBUILDING\tUPDATED")
			for _, d := range drafts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Name, d.BuildingID, d.UpdatedAt.Format(time.DateTime))
			}
			return tw.Flush()
		},
	}

	var out string
	show := &cobra.Command{
		Use:   "export <draft-id>",
		Short: "Write a draft's layout document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := e.openDB(cmd.Context())
			if err != nil {
				return err
			}
			d, err := store.NewDraftStore(db).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeOutput(out, d.Document)
		},
	}
	show.Flags().StringVarP(&out, "output", "o", "-", "Output file")

	cmd.AddCommand(list, show)
	return cmd
}
