package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"

	"github.com/spf13/cobra"

	"github.com/Spatial-NVR/constructor/internal/backend"
	"github.com/Spatial-NVR/constructor/internal/building"
	"github.com/Spatial-NVR/constructor/internal/editor"
	"github.com/Spatial-NVR/constructor/internal/geometry"
	"github.com/Spatial-NVR/constructor/internal/render"
	"github.com/Spatial-NVR/constructor/internal/store"
)

// readLayout imports a document file onto an empty building the same way
// the editor does, so missing fields keep their defaults
func readLayout(path, uploadsBase string) (building.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return building.Config{}, err
	}
	cfg, fields, err := building.Import(data, uploadsBase)
	if err != nil {
		return building.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	m := building.NewModel()
	m.SetName(editor.DefaultBuildingName)
	if err := m.Apply(cfg, fields); err != nil {
		return building.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return m.Snapshot(), nil
}

func newExportCmd(e *env) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export <building-id>",
		Short: "Download a saved building as a layout document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, _, err := e.connect(ctx)
			if err != nil {
				return err
			}
			saved, err := client.GetConfig(ctx, backend.ID(args[0]))
			if err != nil {
				return err
			}
			cfg, err := building.ConfigFromBody(saved.Config, e.cfg.UploadsBase())
			if err != nil {
				return err
			}
			cfg.Name = saved.Name

			data, err := building.Export(cfg)
			if err != nil {
				return err
			}
			return writeOutput(out, data)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "-", "Output file")
	return cmd
}

func newPublishCmd(e *env) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "publish <document>",
		Short: "Save a layout document to the backend",
		Long:  "Creates a new building, or replaces building --id when given. Every attempt is added to the local publish history.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, _, err := e.connect(ctx)
			if err != nil {
				return err
			}
			cfg, err := readLayout(args[0], e.cfg.UploadsBase())
			if err != nil {
				return err
			}

			payload := backend.BuildingConfig{
				ID:     backend.ID(id),
				Name:   cfg.Name,
				Config: building.BodyFromConfig(cfg),
			}
			var saved *backend.BuildingConfig
			if id == "" {
				saved, err = client.CreateConfig(ctx, payload)
			} else {
				saved, err = client.UpdateConfig(ctx, payload.ID, payload)
			}

			entry := &store.PublishEntry{BuildingID: payload.ID, Name: cfg.Name, Created: id == ""}
			if err != nil {
				entry.Error = err.Error()
			} else if saved != nil && saved.ID != "" {
				entry.BuildingID = saved.ID
			}
			if logErr := store.NewPublishLog(e.db).Record(context.WithoutCancel(ctx), entry); logErr != nil {
				fmt.Fprintln(os.Stderr, "warning: publish not recorded:", logErr)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), entry.BuildingID)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Existing building id to replace")
	return cmd
}

func newRenderCmd(e *env) *cobra.Command {
	var (
		out        string
		format     string
		floor      int
		stack      bool
		width      float64
		height     float64
		background bool
	)

	cmd := &cobra.Command{
		Use:   "render <document>",
		Short: "Draw one floor, or the floor stack, as SVG or PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "svg" && format != "png" {
				return fmt.Errorf("unsupported format %q", format)
			}
			cfgFile, err := e.settings()
			if err != nil {
				return err
			}
			cfg, err := readLayout(args[0], cfgFile.UploadsBase())
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			if stack {
				s := render.BuildStack(cfg.Range, nil, nil, render.DefaultStackLayout)
				if format == "svg" {
					err = render.StackSVG(&buf, s)
				} else {
					err = render.StackPNG(&buf, s)
				}
				if err != nil {
					return err
				}
				return writeOutput(out, buf.Bytes())
			}

			f := building.Floor(floor)
			if !cfg.Range.Contains(f) {
				return fmt.Errorf("floor %d is outside the building", floor)
			}
			c := render.BuildCanvas(cfg.Floor(f), geometry.Size{Width: width, Height: height}, editor.Selection{}, nil)
			if format == "svg" {
				err = render.CanvasSVG(&buf, c)
			} else {
				var bg image.Image
				if background && c.Background != "" {
					bg = fetchBackground(cmd.Context(), e, c.Background)
				}
				err = render.CanvasPNG(&buf, c, bg)
			}
			if err != nil {
				return err
			}
			return writeOutput(out, buf.Bytes())
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "-", "Output file")
	cmd.Flags().StringVarP(&format, "format", "f", "svg", "svg or png")
	cmd.Flags().IntVar(&floor, "floor", 1, "Floor number")
	cmd.Flags().BoolVar(&stack, "stack", false, "Render the floor picker instead of a floor")
	cmd.Flags().Float64Var(&width, "width", 800, "Canvas width in pixels")
	cmd.Flags().Float64Var(&height, "height", 800, "Canvas height in pixels")
	cmd.Flags().BoolVar(&background, "background", false, "Download the floor plan into PNG output")
	return cmd
}

// fetchBackground downloads a floor plan; failures draw without it
func fetchBackground(ctx context.Context, e *env, ref string) image.Image {
	client, _, err := e.connect(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning: background skipped:", err)
		return nil
	}
	data, err := client.FetchFile(ctx, ref)
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning: background skipped:", err)
		return nil
	}
	img, err := render.DecodeBackground(bytes.NewReader(data))
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning: background skipped:", err)
		return nil
	}
	return img
}
