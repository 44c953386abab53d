package api

import (
	"bytes"
	"context"
	"image"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Spatial-NVR/constructor/internal/building"
	"github.com/Spatial-NVR/constructor/internal/editor"
	"github.com/Spatial-NVR/constructor/internal/geometry"
	"github.com/Spatial-NVR/constructor/internal/render"
)

// fetchTimeout bounds background downloads during rendering
const fetchTimeout = 10 * time.Second

func (h *ConstructorHandler) stack(r *http.Request) render.Stack {
	v := h.session.Snapshot()

	layout := render.DefaultStackLayout
	if cw, err := strconv.ParseFloat(r.URL.Query().Get("width"), 64); err == nil && cw > 0 && finite(cw) {
		layout.ContainerWidth = cw
	}

	var hovered *building.Floor
	if v.Hover != nil && v.Hover.Kind == editor.TargetFloor {
		f := building.Floor(v.Hover.ID)
		hovered = &f
	}
	return render.BuildStack(v.Config.Range, v.Selection.Floor, hovered, layout)
}

// RenderStack draws the isometric floor stack as svg or png
func (h *ConstructorHandler) RenderStack(w http.ResponseWriter, r *http.Request) {
	s := h.stack(r)

	switch chi.URLParam(r, "format") {
	case "svg":
		w.Header().Set("Content-Type", "image/svg+xml")
		if err := render.StackSVG(w, s); err != nil {
			h.logger.Warn("Failed to write stack svg", "error", err)
		}
	case "png":
		var buf bytes.Buffer
		if err := render.StackPNG(&buf, s); err != nil {
			InternalError(w, err.Error())
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	default:
		NotFound(w, "unsupported format")
	}
}

// StackPointer hit-tests a pointer position on the stack. With
// ?click=1 the floor under the pointer is selected, otherwise hovered.
func (h *ConstructorHandler) StackPointer(w http.ResponseWriter, r *http.Request) {
	var req PointRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if errs := req.Validate(); errs.HasErrors() {
		ValidationErrorResponse(w, errs)
		return
	}

	f, ok := h.stack(r).HitTest(geometry.Point{X: req.X, Y: req.Y})
	if !ok {
		h.session.ClearHover()
		OK(w, map[string]any{"hit": false})
		return
	}

	if r.URL.Query().Get("click") != "" {
		if err := h.session.SelectFloor(f); err != nil {
			Fail(w, err)
			return
		}
	} else {
		h.session.Hover(editor.Target{Kind: editor.TargetFloor, ID: int64(f)})
	}
	OK(w, map[string]any{"hit": true, "floor": f})
}

func (h *ConstructorHandler) canvas(f building.Floor) render.Canvas {
	v := h.session.Snapshot()
	hover := v.Hover
	if hover != nil && hover.Kind == editor.TargetFloor {
		hover = nil
	}
	return render.BuildCanvas(v.Config.Floor(f), v.Canvas, v.Selection, hover)
}

// RenderFloor draws one floor's canvas as svg or png
func (h *ConstructorHandler) RenderFloor(w http.ResponseWriter, r *http.Request) {
	f, err := parseFloor(chi.URLParam(r, "floor"))
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	c := h.canvas(f)

	switch chi.URLParam(r, "format") {
	case "svg":
		w.Header().Set("Content-Type", "image/svg+xml")
		if err := render.CanvasSVG(w, c); err != nil {
			h.logger.Warn("Failed to write canvas svg", "error", err)
		}
	case "png":
		var buf bytes.Buffer
		if err := render.CanvasPNG(&buf, c, h.background(r.Context(), c.Background)); err != nil {
			InternalError(w, err.Error())
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	default:
		NotFound(w, "unsupported format")
	}
}

// background downloads and decodes a floor plan. Failures render the
// canvas without it.
func (h *ConstructorHandler) background(ctx context.Context, ref string) image.Image {
	if ref == "" || h.files == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	data, err := h.files.FetchFile(ctx, ref)
	if err != nil {
		h.logger.Warn("Failed to fetch background", "ref", ref, "error", err)
		return nil
	}
	img, err := render.DecodeBackground(bytes.NewReader(data))
	if err != nil {
		h.logger.Warn("Failed to decode background", "ref", ref, "error", err)
		return nil
	}
	return img
}

// CanvasPointer hit-tests a pointer position on the working floor's canvas
// and updates the hover label
func (h *ConstructorHandler) CanvasPointer(w http.ResponseWriter, r *http.Request) {
	var req PointRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if errs := req.Validate(); errs.HasErrors() {
		ValidationErrorResponse(w, errs)
		return
	}

	sel := h.session.Selection()
	if sel.Floor == nil {
		Fail(w, editor.ErrNoFloorSelected)
		return
	}

	t, ok := h.canvas(*sel.Floor).HitTest(geometry.Point{X: req.X, Y: req.Y})
	if !ok {
		h.session.ClearHover()
		OK(w, map[string]any{"hit": false})
		return
	}
	h.session.Hover(t)
	OK(w, map[string]any{"hit": true, "target": t, "label": t.Label()})
}
