package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Spatial-NVR/constructor/internal/backend"
)

// fakeBackend serves canned data for every backend call the API makes.
// writeErr fails every create, update and delete.
type fakeBackend struct {
	mu       sync.Mutex
	nextID   int
	configs  map[backend.ID]backend.BuildingConfig
	appeals  map[backend.ID]backend.Appeal
	users    map[backend.ID]backend.User
	roles    map[backend.ID]backend.Role
	perms    map[backend.ID]backend.Permission
	hardware []backend.HardwareCamera
	files    map[string][]byte
	writeErr error
	logins   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nextID:  100,
		configs: map[backend.ID]backend.BuildingConfig{},
		appeals: map[backend.ID]backend.Appeal{},
		users:   map[backend.ID]backend.User{},
		roles:   map[backend.ID]backend.Role{},
		perms:   map[backend.ID]backend.Permission{},
		files:   map[string][]byte{},
	}
}

func (f *fakeBackend) id() backend.ID {
	f.nextID++
	return backend.ID(strconv.Itoa(f.nextID))
}

func notFound(op string) error {
	return &backend.HTTPError{Op: op, Status: http.StatusNotFound, Detail: "Not found"}
}

func (f *fakeBackend) BaseURL() string { return "http://backend" }

func (f *fakeBackend) UploadsURL(filename string) string {
	return "http://backend/uploads/" + filename
}

// Buildings

func (f *fakeBackend) ListConfigs(ctx context.Context) ([]backend.BuildingConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]backend.BuildingConfig, 0, len(f.configs))
	for _, c := range f.configs {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeBackend) GetConfig(ctx context.Context, id backend.ID) (*backend.BuildingConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.configs[id]
	if !ok {
		return nil, notFound("get building config")
	}
	return &c, nil
}

func (f *fakeBackend) CreateConfig(ctx context.Context, cfg backend.BuildingConfig) (*backend.BuildingConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	cfg.ID = f.id()
	now := time.Now()
	cfg.UpdatedAt = &now
	f.configs[cfg.ID] = cfg
	return &cfg, nil
}

func (f *fakeBackend) UpdateConfig(ctx context.Context, id backend.ID, cfg backend.BuildingConfig) (*backend.BuildingConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	cfg.ID = id
	f.configs[id] = cfg
	return &cfg, nil
}

func (f *fakeBackend) DeleteConfig(ctx context.Context, id backend.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.configs[id]; !ok {
		return notFound("delete building config")
	}
	delete(f.configs, id)
	return nil
}

func (f *fakeBackend) UploadImage(ctx context.Context, name string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name] = data
	return name, nil
}

func (f *fakeBackend) FetchFile(ctx context.Context, ref string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, data := range f.files {
		if ref == name || ref == "http://backend/uploads/"+name {
			return data, nil
		}
	}
	return nil, notFound("fetch file")
}

// Hardware

func (f *fakeBackend) ListHardware(ctx context.Context, skip, limit int) ([]backend.HardwareCamera, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if skip >= len(f.hardware) {
		return nil, nil
	}
	end := min(skip+limit, len(f.hardware))
	return append([]backend.HardwareCamera(nil), f.hardware[skip:end]...), nil
}

func (f *fakeBackend) CreateHardware(ctx context.Context, cam backend.HardwareCamera) (*backend.HardwareCamera, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	cam.ID = f.id()
	f.hardware = append(f.hardware, cam)
	return &cam, nil
}

func (f *fakeBackend) DeleteHardware(ctx context.Context, id backend.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, cam := range f.hardware {
		if cam.ID == id {
			f.hardware = append(f.hardware[:i], f.hardware[i+1:]...)
			return nil
		}
	}
	return notFound("delete hardware camera")
}

// Appeals

func (f *fakeBackend) ListAppeals(ctx context.Context, skip, limit int) ([]backend.Appeal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]backend.Appeal, 0, len(f.appeals))
	for _, a := range f.appeals {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeBackend) GetAppeal(ctx context.Context, id backend.ID) (*backend.Appeal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appeals[id]
	if !ok {
		return nil, notFound("get appeal")
	}
	return &a, nil
}

func (f *fakeBackend) CreateAppeal(ctx context.Context, in backend.AppealInput) (*backend.Appeal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	a := backend.Appeal{
		ID:          f.id(),
		TypeID:      in.TypeID,
		SeverityID:  in.SeverityID,
		StatusID:    in.StatusID,
		Location:    in.Location,
		Description: in.Description,
		Source:      in.Source,
		Payload:     in.Payload,
		CreatedAt:   time.Now().UTC(),
	}
	f.appeals[a.ID] = a
	return &a, nil
}

func (f *fakeBackend) UpdateAppeal(ctx context.Context, id backend.ID, patch backend.AppealPatch) (*backend.Appeal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appeals[id]
	if !ok {
		return nil, notFound("update appeal")
	}
	if patch.StatusID != nil {
		a.StatusID = *patch.StatusID
	}
	if patch.Description != nil {
		a.Description = *patch.Description
	}
	f.appeals[id] = a
	return &a, nil
}

func (f *fakeBackend) DeleteAppeal(ctx context.Context, id backend.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.appeals[id]; !ok {
		return notFound("delete appeal")
	}
	delete(f.appeals, id)
	return nil
}

func (f *fakeBackend) AppealHistory(ctx context.Context, id backend.ID) ([]backend.AppealHistoryEntry, error) {
	return []backend.AppealHistoryEntry{{ID: "1", AppealID: id, Field: "status_id"}}, nil
}

func (f *fakeBackend) LoadReferences(ctx context.Context) (*backend.References, error) {
	return &backend.References{}, nil
}

// Access control

func (f *fakeBackend) Login(ctx context.Context, username, password string) (*backend.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if password != "secret" {
		return nil, &backend.HTTPError{Op: "login", Status: http.StatusUnauthorized, Detail: "Incorrect username or password"}
	}
	f.logins++
	return &backend.Token{AccessToken: "tok-" + username, TokenType: "bearer"}, nil
}

func (f *fakeBackend) Register(ctx context.Context, reg backend.Registration) (*backend.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := backend.User{ID: f.id(), Username: reg.Username, Email: reg.Email}
	f.users[u.ID] = u
	return &u, nil
}

func (f *fakeBackend) Me(ctx context.Context) (*backend.User, error) {
	return &backend.User{ID: "1", Username: "admin"}, nil
}

func (f *fakeBackend) ListPermissions(ctx context.Context) ([]backend.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]backend.Permission, 0, len(f.perms))
	for _, p := range f.perms {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeBackend) CreatePermission(ctx context.Context, p backend.Permission) (*backend.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	p.ID = f.id()
	f.perms[p.ID] = p
	return &p, nil
}

func (f *fakeBackend) DeletePermission(ctx context.Context, id backend.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	delete(f.perms, id)
	return nil
}

func (f *fakeBackend) ListRoles(ctx context.Context) ([]backend.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]backend.Role, 0, len(f.roles))
	for _, r := range f.roles {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeBackend) CreateRole(ctx context.Context, r backend.Role) (*backend.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	r.ID = f.id()
	f.roles[r.ID] = r
	return &r, nil
}

func (f *fakeBackend) UpdateRole(ctx context.Context, id backend.ID, r backend.Role) (*backend.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	r.ID = id
	f.roles[id] = r
	return &r, nil
}

func (f *fakeBackend) DeleteRole(ctx context.Context, id backend.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	delete(f.roles, id)
	return nil
}

func (f *fakeBackend) ListUsers(ctx context.Context) ([]backend.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]backend.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeBackend) GetUser(ctx context.Context, id backend.ID) (*backend.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, notFound("get user")
	}
	return &u, nil
}

func (f *fakeBackend) CreateUser(ctx context.Context, in backend.UserInput) (*backend.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	u := backend.User{ID: f.id(), Username: in.Username, Email: in.Email, Phone: in.Phone}
	f.users[u.ID] = u
	return &u, nil
}

func (f *fakeBackend) UpdateUser(ctx context.Context, id backend.ID, in backend.UserInput) (*backend.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	u := backend.User{ID: id, Username: in.Username, Email: in.Email, Phone: in.Phone}
	f.users[id] = u
	return &u, nil
}

func (f *fakeBackend) DeleteUser(ctx context.Context, id backend.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	delete(f.users, id)
	return nil
}

func (f *fakeBackend) UpdateUserRole(ctx context.Context, userID, roleID backend.ID) (*backend.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	u, ok := f.users[userID]
	if !ok {
		return nil, notFound("update user role")
	}
	u.Roles = []backend.Role{f.roles[roleID]}
	f.users[userID] = u
	return &u, nil
}

var errUnreachable = &backend.NetworkError{Op: "call", Err: errors.New("connection refused")}

// doJSON sends body as JSON and decodes the envelope
func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp Response
	if w.Code != http.StatusNoContent && w.Header().Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode %s %s response %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, resp
}

// decodeData re-decodes the envelope's data field into dst
func decodeData(t *testing.T, resp Response, dst any) {
	t.Helper()
	data, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("Failed to marshal data: %v", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		t.Fatalf("Failed to decode data %s: %v", data, err)
	}
}
