package blueprints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/sails/internal/server/params"
	"github.com/agentstation/sails/internal/server/response"
	"github.com/agentstation/sails/pkg/constants"
	"github.com/agentstation/sails/pkg/datastore"
	"github.com/agentstation/sails/pkg/datastore/memory"
	"github.com/agentstation/sails/pkg/logging"
	"github.com/agentstation/sails/pkg/orm"
)

// recorder captures pubsub calls as readable strings.
type recorder struct {
	mu    sync.Mutex
	calls []string
	data  []map[string]any
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) Subscribe(socketID string, model *orm.Model, records []orm.Record) int {
	r.add(fmt.Sprintf("subscribe %s %s %d", socketID, model.Identity(), len(records)))
	return len(records)
}

func (r *recorder) PublishUpdate(model *orm.Model, id any, changes map[string]any, originator string) {
	r.mu.Lock()
	r.data = append(r.data, changes)
	r.mu.Unlock()
	r.add(fmt.Sprintf("update %s#%v by %q", model.Identity(), id, originator))
}

func (r *recorder) PublishAdd(model *orm.Model, id any, alias string, addedID any, originator string) {
	r.add(fmt.Sprintf("add %s#%v.%s %v by %q", model.Identity(), id, alias, addedID, originator))
}

func (r *recorder) PublishRemove(model *orm.Model, id any, alias string, removedID any, originator string) {
	r.add(fmt.Sprintf("remove %s#%v.%s %v by %q", model.Identity(), id, alias, removedID, originator))
}

type fixture struct {
	registry *orm.Registry
	user     *orm.Model
	pet      *orm.Model
	pubsub   *recorder
	actions  *Actions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()

	user, err := orm.NewModel(orm.Definition{
		Identity: "user",
		Attributes: map[string]orm.Attribute{
			"name":     {Type: orm.TypeString, Required: true},
			"age":      {Type: orm.TypeInteger},
			"password": {Type: orm.TypeString, Protected: true},
			"pets":     {Collection: "pet", Via: "owner"},
		},
	}, store)
	require.NoError(t, err)

	pet, err := orm.NewModel(orm.Definition{
		Identity: "pet",
		Attributes: map[string]orm.Attribute{
			"name":  {Type: orm.TypeString},
			"owner": {Model: "user"},
		},
	}, store)
	require.NoError(t, err)

	registry := orm.NewRegistry()
	require.NoError(t, registry.Register(user))
	require.NoError(t, registry.Register(pet))

	ps := &recorder{}
	return &fixture{
		registry: registry,
		user:     user,
		pet:      pet,
		pubsub:   ps,
		actions:  New(registry, ps, logging.NewNopLogger()),
	}
}

func (f *fixture) create(t *testing.T, model *orm.Model, values map[string]any) string {
	t.Helper()
	rec, err := model.Create(context.Background(), values)
	require.NoError(t, err)
	return rec.ID()
}

// serve routes one request through a mux bound the way the server binds
// blueprint routes.
func (f *fixture) serve(opts Options, pattern string, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.Handle(pattern, f.actions.Update(opts))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, url, body string) *http.Request {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Message
}

func TestUpdate_Success(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, f.user, map[string]any{"name": "alice", "age": 30, "password": "secret"})

	w := f.serve(Options{Model: "user"}, "PUT /user/{id}",
		jsonRequest(http.MethodPut, "/user/"+id, `{"name":"bob","age":"31"}`))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	body := decode(t, w)
	assert.Equal(t, id, body["id"])
	assert.Equal(t, "bob", body["name"])
	assert.Equal(t, float64(31), body["age"])
	assert.NotContains(t, body, "password")

	stored, err := f.user.FindOne(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "bob", stored["name"])

	assert.Equal(t, []string{
		"subscribe  user 1",
		fmt.Sprintf("update user#%s by %q", id, ""),
	}, f.pubsub.calls)
	assert.Equal(t, "bob", f.pubsub.data[0]["name"])
}

func TestUpdate_ControllerFallback(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, f.user, map[string]any{"name": "alice"})

	w := f.serve(Options{Controller: "user"}, "PATCH /user/{id}",
		jsonRequest(http.MethodPatch, "/user/"+id, `{"name":"carol"}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "carol", decode(t, w)["name"])
}

func TestUpdate_Errors(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, f.user, map[string]any{"name": "alice"})

	tests := []struct {
		name       string
		opts       Options
		pattern    string
		req        *http.Request
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "missing model option",
			opts:       Options{},
			pattern:    "PUT /user/{id}",
			req:        jsonRequest(http.MethodPut, "/user/"+id, `{}`),
			wantStatus: http.StatusBadRequest,
			wantMsg:    "No model specified",
		},
		{
			name:       "missing id",
			opts:       Options{Model: "user"},
			pattern:    "GET /user/update",
			req:        httptest.NewRequest(http.MethodGet, "/user/update?name=x", nil),
			wantStatus: http.StatusBadRequest,
			wantMsg:    "No id provided.",
		},
		{
			name:       "unknown model",
			opts:       Options{Model: "ghost"},
			pattern:    "PUT /ghost/{id}",
			req:        jsonRequest(http.MethodPut, "/ghost/1", `{}`),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "missing record",
			opts:       Options{Model: "user"},
			pattern:    "PUT /user/{id}",
			req:        jsonRequest(http.MethodPut, "/user/nope", `{"name":"x"}`),
			wantStatus: http.StatusNotFound,
			wantMsg:    "user with ID nope not found",
		},
		{
			name:       "invalid value",
			opts:       Options{Model: "user"},
			pattern:    "PUT /user/{id}",
			req:        jsonRequest(http.MethodPut, "/user/"+id, `{"age":"old"}`),
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Validation failed",
		},
		{
			name:       "required attribute nulled",
			opts:       Options{Model: "user"},
			pattern:    "PUT /user/{id}",
			req:        jsonRequest(http.MethodPut, "/user/"+id, `{"name":null}`),
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.serve(tt.opts, tt.pattern, tt.req)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, errorMessage(t, w))
			}
		})
	}
	assert.Empty(t, f.pubsub.calls, "failed updates publish nothing")
}

func TestUpdate_IDFromQuery(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, f.user, map[string]any{"name": "alice"})

	w := f.serve(Options{Model: "user"}, "GET /user/update",
		httptest.NewRequest(http.MethodGet, "/user/update?id="+id+"&name=dora", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dora", decode(t, w)["name"])
}

func TestUpdate_JSONP(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, f.user, map[string]any{"name": "alice"})

	w := f.serve(Options{Model: "user", JSONP: true}, "GET /user/update/{id}",
		httptest.NewRequest(http.MethodGet, "/user/update/"+id+"?name=eve&callback=handle", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/javascript; charset=utf-8", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "/**/ typeof handle === 'function' && handle({"))

	stored, err := f.user.FindOne(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "eve", stored["name"])
	assert.NotContains(t, stored, "callback", "callback is not part of the update")
}

func TestUpdate_JSONPDisabledOverSocket(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, f.user, map[string]any{"name": "alice"})

	req := httptest.NewRequest(http.MethodGet, "/user/update/"+id+"?name=fay&callback=handle", nil)
	req = req.WithContext(params.WithSocket(req.Context(), "sock-1"))
	w := f.serve(Options{Model: "user", JSONP: true}, "GET /user/update/{id}", req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "fay", decode(t, w)["name"])

	assert.Equal(t, []string{
		"subscribe sock-1 user 1",
		fmt.Sprintf("update user#%s by %q", id, "sock-1"),
	}, f.pubsub.calls)
}

func TestUpdate_ReverseCollection(t *testing.T) {
	f := newFixture(t)
	u1 := f.create(t, f.user, map[string]any{"name": "u1"})
	u2 := f.create(t, f.user, map[string]any{"name": "u2"})
	pet := f.create(t, f.pet, map[string]any{"name": "rex", "owner": u1})

	w := f.serve(Options{Model: "pet"}, "PUT /pet/{id}",
		jsonRequest(http.MethodPut, "/pet/"+pet, fmt.Sprintf(`{"owner":%q}`, u2)))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{
		"subscribe  pet 1",
		fmt.Sprintf("update pet#%s by %q", pet, ""),
		fmt.Sprintf("remove user#%s.pets %s by %q", u1, pet, ""),
		fmt.Sprintf("add user#%s.pets %s by %q", u2, pet, ""),
	}, f.pubsub.calls)
}

func TestUpdate_ReverseEventsReachRequestingSocket(t *testing.T) {
	f := newFixture(t)
	u1 := f.create(t, f.user, map[string]any{"name": "u1"})
	u2 := f.create(t, f.user, map[string]any{"name": "u2"})
	pet := f.create(t, f.pet, map[string]any{"name": "rex", "owner": u1})

	req := jsonRequest(http.MethodPut, "/pet/"+pet, fmt.Sprintf(`{"owner":%q}`, u2))
	req = req.WithContext(params.WithSocket(req.Context(), "sock-1"))
	w := f.serve(Options{Model: "pet"}, "PUT /pet/{id}", req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{
		"subscribe sock-1 pet 1",
		fmt.Sprintf("update pet#%s by %q", pet, "sock-1"),
		fmt.Sprintf("remove user#%s.pets %s by %q", u1, pet, ""),
		fmt.Sprintf("add user#%s.pets %s by %q", u2, pet, ""),
	}, f.pubsub.calls)

	// reverse model side
	f.pubsub.calls = nil
	p2 := f.create(t, f.pet, map[string]any{"name": "b"})
	req = jsonRequest(http.MethodPut, "/user/"+u1, fmt.Sprintf(`{"pets":[%q]}`, p2))
	req = req.WithContext(params.WithSocket(req.Context(), "sock-1"))
	w = f.serve(Options{Model: "user"}, "PUT /user/{id}", req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{
		"subscribe sock-1 user 1",
		fmt.Sprintf("update user#%s by %q", u1, "sock-1"),
		fmt.Sprintf("update pet#%s by %q", p2, ""),
	}, f.pubsub.calls)
}

func TestUpdate_BadBody(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, f.user, map[string]any{"name": "alice"})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"malformed json", `{"name":`, http.StatusBadRequest, "Malformed request body"},
		{"not an object", `["bob"]`, http.StatusBadRequest, "Malformed request body"},
		{"oversized", `{"name":"` + strings.Repeat("b", constants.MaxRequestBodySize) + `"}`, http.StatusRequestEntityTooLarge, "Request body too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.serve(Options{Model: "user"}, "PUT /user/{id}",
				jsonRequest(http.MethodPut, "/user/"+id, tt.body))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantMsg, errorMessage(t, w))
		})
	}

	stored, err := f.user.FindOne(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored["name"])
	assert.Empty(t, f.pubsub.calls)
}

func TestUpdate_ReverseCollectionUnchanged(t *testing.T) {
	f := newFixture(t)
	u1 := f.create(t, f.user, map[string]any{"name": "u1"})
	pet := f.create(t, f.pet, map[string]any{"name": "rex", "owner": u1})

	w := f.serve(Options{Model: "pet"}, "PUT /pet/{id}",
		jsonRequest(http.MethodPut, "/pet/"+pet, fmt.Sprintf(`{"owner":%q,"name":"max"}`, u1)))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, f.pubsub.calls, 2, "an unchanged association publishes nothing extra")
}

func TestUpdate_ReverseModel(t *testing.T) {
	f := newFixture(t)
	p1 := f.create(t, f.pet, map[string]any{"name": "a"})
	p2 := f.create(t, f.pet, map[string]any{"name": "b"})
	p3 := f.create(t, f.pet, map[string]any{"name": "c"})
	user := f.create(t, f.user, map[string]any{"name": "u", "pets": []any{p1}})

	w := f.serve(Options{Model: "user"}, "PUT /user/{id}",
		jsonRequest(http.MethodPut, "/user/"+user, fmt.Sprintf(`{"pets":[%q,{"id":%q}]}`, p2, p3)))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, f.pubsub.calls, 4)
	assert.Equal(t, fmt.Sprintf("update pet#%s by %q", p2, ""), f.pubsub.calls[2])
	assert.Equal(t, fmt.Sprintf("update pet#%s by %q", p3, ""), f.pubsub.calls[3])
	assert.Equal(t, map[string]any{"owner": user}, f.pubsub.data[1])
	assert.Equal(t, map[string]any{"owner": user}, f.pubsub.data[2])
}

func TestUpdate_PubSubDisabled(t *testing.T) {
	f := newFixture(t)
	f.actions = New(f.registry, nil, nil)
	id := f.create(t, f.user, map[string]any{"name": "alice"})

	w := f.serve(Options{Model: "user"}, "PUT /user/{id}",
		jsonRequest(http.MethodPut, "/user/"+id, `{"name":"bob"}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, f.pubsub.calls)
}

// brokenAdapter fails in configurable ways.
type brokenAdapter struct {
	findErr   error
	updateErr error
}

func (b *brokenAdapter) Name() string { return "broken" }

func (b *brokenAdapter) Find(context.Context, string, string) (map[string]any, error) {
	if b.findErr != nil {
		return nil, b.findErr
	}
	return map[string]any{datastore.IDField: "1"}, nil
}

func (b *brokenAdapter) Update(context.Context, string, string, map[string]any) ([]map[string]any, error) {
	return nil, b.updateErr
}

func (b *brokenAdapter) Create(context.Context, string, map[string]any) (map[string]any, error) {
	return nil, errors.New("read only")
}

func (b *brokenAdapter) Close() error { return nil }

func TestUpdate_AdapterFailures(t *testing.T) {
	tests := []struct {
		name    string
		adapter *brokenAdapter
		wantMsg string
	}{
		{"find fails", &brokenAdapter{findErr: errors.New("disk on fire")}, "Internal server error"},
		{"update fails", &brokenAdapter{updateErr: errors.New("locked")}, "Internal server error"},
		{"update matches nothing", &brokenAdapter{}, "No instances returned from update."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, err := orm.NewModel(orm.Definition{Identity: "thing"}, tt.adapter)
			require.NoError(t, err)
			registry := orm.NewRegistry()
			require.NoError(t, registry.Register(model))

			log := logging.NewTestLogger(t)
			ps := &recorder{}
			actions := New(registry, ps, log.Logger)

			mux := http.NewServeMux()
			mux.Handle("PUT /thing/{id}", actions.Update(Options{Model: "thing"}))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, jsonRequest(http.MethodPut, "/thing/1", `{"a":1}`))

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Equal(t, tt.wantMsg, errorMessage(t, w))
			assert.NotContains(t, w.Body.String(), "disk on fire")
			assert.Empty(t, ps.calls)
			log.AssertContains(t, `"model":"thing"`)
		})
	}
}

func TestMissing(t *testing.T) {
	assert.Equal(t, []string{"a", "c"}, missing([]string{"a", "b", "c", "a"}, []string{"b"}))
	assert.Nil(t, missing(nil, []string{"x"}))
}
