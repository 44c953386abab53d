package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Spatial-NVR/constructor/internal/backend"
)

func setupBuildings(t *testing.T) (*fakeBackend, http.Handler) {
	t.Helper()
	fb := newFakeBackend()
	at := func(d int) *time.Time {
		ts := time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC)
		return &ts
	}
	fb.configs["1"] = backend.BuildingConfig{ID: "1", Name: "Main office", UpdatedAt: at(1)}
	fb.configs["2"] = backend.BuildingConfig{ID: "2", Name: "Warehouse", UpdatedAt: at(3)}
	fb.configs["3"] = backend.BuildingConfig{ID: "3", Name: "Branch office", UpdatedAt: at(2)}
	fb.configs["4"] = backend.BuildingConfig{ID: "4", Name: "Draft office"}

	r := chi.NewRouter()
	r.Mount("/", NewBuildingHandler(fb, nil).Routes())
	return fb, r
}

func TestBuildings_List(t *testing.T) {
	_, h := setupBuildings(t)

	tests := []struct {
		name  string
		query string
		want  []backend.ID
	}{
		{"all newest first", "", []backend.ID{"2", "3", "1", "4"}},
		{"name filter", "?q=OFFICE", []backend.ID{"3", "1", "4"}},
		{"no match", "?q=garage", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := doJSON(t, h, "GET", "/"+tt.query, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d", w.Code)
			}
			var got []backend.BuildingConfig
			decodeData(t, resp, &got)
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d configs, got %d", len(tt.want), len(got))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("Position %d: expected %s, got %s", i, id, got[i].ID)
				}
			}
			if resp.Meta.Total != 4 || resp.Meta.Matched != len(tt.want) {
				t.Errorf("Unexpected meta %+v", resp.Meta)
			}
		})
	}
}

func TestBuildings_GetDelete(t *testing.T) {
	fb, h := setupBuildings(t)

	if w, _ := doJSON(t, h, "GET", "/2", nil); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if w, _ := doJSON(t, h, "DELETE", "/2", nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
	if _, ok := fb.configs["2"]; ok {
		t.Error("Expected config 2 to be deleted")
	}
	if w, _ := doJSON(t, h, "GET", "/2", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestBuildings_Hardware(t *testing.T) {
	fb, h := setupBuildings(t)

	w, resp := doJSON(t, h, "POST", "/hardware", map[string]string{"name": "X", "stream_url": "ftp://cam"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
	if len(resp.Error.Details) != 2 {
		t.Errorf("Expected name and stream_url errors, got %+v", resp.Error.Details)
	}

	for _, name := range []string{"Lobby", "Gate", "Roof"} {
		cam := map[string]any{"name": name, "stream_url": "rtsp://10.0.0.5/" + name, "ptz_enabled": name == "Roof"}
		if w, _ := doJSON(t, h, "POST", "/hardware", cam); w.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
		}
	}

	w, resp = doJSON(t, h, "GET", "/hardware?skip=1&limit=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var page []backend.HardwareCamera
	decodeData(t, resp, &page)
	if len(page) != 1 || page[0].Name != "Gate" {
		t.Errorf("Expected the second camera, got %+v", page)
	}

	w, resp = doJSON(t, h, "GET", "/hardware?limit=bad", nil)
	decodeData(t, resp, &page)
	if w.Code != http.StatusOK || len(page) != 3 {
		t.Errorf("Expected the default page with 3 cameras, got %d %d", w.Code, len(page))
	}

	if w, _ := doJSON(t, h, "DELETE", "/hardware/"+fb.hardware[0].ID.String(), nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
	if w, _ := doJSON(t, h, "DELETE", "/hardware/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestBuildings_HardwareFailurePolicy(t *testing.T) {
	cam := map[string]string{"name": "Lobby", "stream_url": "rtsp://10.0.0.5/live"}

	fb, h := setupBuildings(t)
	fb.writeErr = errUnreachable
	if w, _ := doJSON(t, h, "POST", "/hardware", cam); w.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 under the default policy, got %d", w.Code)
	}

	r := chi.NewRouter()
	r.Mount("/", NewBuildingHandler(fb, backend.PolicySet{backend.SiteHardwareSave: backend.AssumeSuccessOnNetworkError}).Routes())
	w, resp := doJSON(t, r, "POST", "/hardware", cam)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	if resp.Data.(map[string]any)["assumed"] != true {
		t.Errorf("Expected assumed=true, got %+v", resp.Data)
	}
}
