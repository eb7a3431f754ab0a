package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eargollo/reclaim/internal/api"
	"github.com/eargollo/reclaim/internal/backend"
	"github.com/eargollo/reclaim/internal/content"
	internaldb "github.com/eargollo/reclaim/internal/db"
	"github.com/eargollo/reclaim/internal/history"
	"github.com/eargollo/reclaim/internal/session"
)

const dupesPage = `[
 {"key":"/library/metadata/1","library":"Movies","title":"Heat","contentType":"movie","year":1995,"ignored":false,
  "media":[
   {"id":1,"width":1920,"parts":[{"id":11,"file":"/m/heat-1080.mkv","size":500}]},
   {"id":2,"width":1280,"parts":[{"id":12,"file":"/m/heat-720.mkv","size":500}]}]},
 {"key":"/library/metadata/2","library":"Movies","title":"Ronin","contentType":"movie","year":1998,"ignored":false,
  "media":[
   {"id":3,"width":1920,"parts":[{"id":13,"file":"/m/ronin-a.mkv","size":900}]},
   {"id":4,"width":1920,"parts":[{"id":14,"file":"/m/ronin-b.mkv","size":100}]}]}
]`

// fakeBackend serves the backend REST endpoints from memory.
type fakeBackend struct {
	mu          sync.Mutex
	failDelete  map[int64]string
	deleted     []int64
	blockDelete chan struct{}
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/server/info":
		w.Write([]byte(`{"name":"plex-home","url":"http://plex:32400"}`))
	case "/api/server/deleted-sizes":
		w.Write([]byte(`{"Movies": 1024}`))
	case "/api/content/dupes":
		if r.URL.Query().Get("page") == "1" {
			w.Write([]byte(dupesPage))
			return
		}
		w.Write([]byte(`[]`))
	case "/api/content/samples":
		w.Write([]byte(`[]`))
	case "/api/content/ignore", "/api/content/unignore":
		w.Write([]byte(`{}`))
	case "/api/delete/media":
		if f.blockDelete != nil {
			<-f.blockDelete
		}
		var body struct {
			MediaID int64 `json:"media_id"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		if msg, ok := f.failDelete[body.MediaID]; ok {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": msg})
			return
		}
		f.deleted = append(f.deleted, body.MediaID)
		w.Write([]byte(`{}`))
	default:
		http.NotFound(w, r)
	}
}

type harness struct {
	srv     *httptest.Server
	sess    *session.Session
	journal *history.Journal
	fake    *fakeBackend
}

func newHarness(t *testing.T, fake *fakeBackend) *harness {
	t.Helper()
	backendSrv := httptest.NewServer(fake)
	t.Cleanup(backendSrv.Close)

	client, err := backend.New(backendSrv.URL + "/api/")
	if err != nil {
		t.Fatal(err)
	}

	db, err := internaldb.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := internaldb.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	journal := history.New(db)

	sess := session.New(session.Deps{Backend: client, Recorder: journal, RefreshDelay: time.Hour})
	t.Cleanup(sess.Close)
	if err := sess.Refresh(context.Background(), content.ModeDuplicate); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	srv := httptest.NewServer(api.Handler(api.Deps{
		Session:    sess,
		Journal:    journal,
		BackendURL: client.BaseURL(),
		Version:    "test",
	}))
	t.Cleanup(srv.Close)
	return &harness{srv: srv, sess: sess, journal: journal, fake: fake}
}

func (h *harness) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var buf bytes.Buffer
		buf.ReadFrom(resp.Body)
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, want, buf.String())
	}
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	resp := h.do(t, http.MethodGet, "/api/status", "")
	requireStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}

	var body struct {
		Version string `json:"version"`
		Session struct {
			Mode          string `json:"mode"`
			Groups        int    `json:"groups"`
			Selected      int    `json:"selected"`
			SelectedBytes int64  `json:"selected_bytes"`
		} `json:"session"`
		TotalDeleted int64 `json:"total_deleted"`
	}
	decodeJSON(t, resp, &body)
	if body.Version != "test" || body.Session.Mode != "duplicate" || body.Session.Groups != 2 {
		t.Errorf("status = %+v", body)
	}
	if body.Session.Selected != 2 || body.Session.SelectedBytes != 600 {
		t.Errorf("selection = %d/%d, want 2/600", body.Session.Selected, body.Session.SelectedBytes)
	}
	if body.TotalDeleted != 1024 {
		t.Errorf("total_deleted = %d", body.TotalDeleted)
	}
}

func TestContentListFlags(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	resp := h.do(t, http.MethodGet, "/api/content?view=active", "")
	requireStatus(t, resp, http.StatusOK)

	var body struct {
		Items []struct {
			Key   string `json:"key"`
			Media []struct {
				ID        int64 `json:"id"`
				TotalSize int64 `json:"totalSize"`
				Keep      bool  `json:"keep"`
				Selected  bool  `json:"selected"`
			} `json:"media"`
		} `json:"items"`
		Total int `json:"total"`
	}
	decodeJSON(t, resp, &body)
	if body.Total != 2 || len(body.Items) != 2 {
		t.Fatalf("total = %d items = %d", body.Total, len(body.Items))
	}
	heat := body.Items[0]
	if !heat.Media[0].Keep || heat.Media[0].Selected || !heat.Media[1].Selected || heat.Media[1].TotalSize != 500 {
		t.Errorf("heat media = %+v", heat.Media)
	}

	resp = h.do(t, http.MethodGet, "/api/content?view=bogus", "")
	requireStatus(t, resp, http.StatusBadRequest)
}

func TestSelectionEndpoints(t *testing.T) {
	h := newHarness(t, &fakeBackend{})

	requireStatus(t, h.do(t, http.MethodDelete, "/api/selection/2", ""), http.StatusOK)
	requireStatus(t, h.do(t, http.MethodPut, "/api/selection/3", ""), http.StatusOK)
	requireStatus(t, h.do(t, http.MethodPut, "/api/selection/99", ""), http.StatusNotFound)
	requireStatus(t, h.do(t, http.MethodPut, "/api/selection/abc", ""), http.StatusBadRequest)

	resp := h.do(t, http.MethodGet, "/api/selection", "")
	requireStatus(t, resp, http.StatusOK)
	var sel struct {
		Count int   `json:"count"`
		Bytes int64 `json:"bytes"`
	}
	decodeJSON(t, resp, &sel)
	if sel.Count != 2 || sel.Bytes != 1000 {
		t.Errorf("selection = %+v, want 2 variants / 1000 bytes", sel)
	}

	resp = h.do(t, http.MethodDelete, "/api/selection", "")
	requireStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &sel)
	if sel.Count != 0 {
		t.Errorf("after clear count = %d", sel.Count)
	}

	resp = h.do(t, http.MethodPost, "/api/selection/reset", "")
	requireStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &sel)
	if sel.Count != 2 {
		t.Errorf("after reset count = %d", sel.Count)
	}

	resp = h.do(t, http.MethodPost, "/api/selection/invert", "")
	requireStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &sel)
	if sel.Count != 2 || sel.Bytes != 1400 {
		t.Errorf("after invert = %+v", sel)
	}
}

func TestDeleteOne(t *testing.T) {
	fake := &fakeBackend{failDelete: map[int64]string{4: "Media is locked"}}
	h := newHarness(t, fake)

	requireStatus(t, h.do(t, http.MethodPost, "/api/media/2/delete", ""), http.StatusOK)
	if !h.sess.Ledger().Has(2) || h.sess.Selection().Has(2) {
		t.Error("media 2 not moved to ledger")
	}

	resp := h.do(t, http.MethodPost, "/api/media/4/delete", "")
	requireStatus(t, resp, http.StatusBadGateway)
	var eb struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeJSON(t, resp, &eb)
	if eb.Error.Code != "BACKEND_ERROR" || eb.Error.Message != "Media is locked" {
		t.Errorf("error = %+v", eb.Error)
	}
	if !h.sess.Selection().Has(4) || h.sess.Ledger().Has(4) {
		t.Error("failed delete changed state")
	}

	requireStatus(t, h.do(t, http.MethodPost, "/api/media/77/delete", ""), http.StatusNotFound)

	resp = h.do(t, http.MethodGet, "/api/history", "")
	requireStatus(t, resp, http.StatusOK)
	var hist struct {
		Items []history.Entry `json:"items"`
		Total int             `json:"total"`
	}
	decodeJSON(t, resp, &hist)
	if hist.Total != 1 || hist.Items[0].MediaID != 2 || hist.Items[0].Title != "Heat (1995)" {
		t.Errorf("history = %+v", hist)
	}
}

func TestBatchDeleteConflict(t *testing.T) {
	fake := &fakeBackend{blockDelete: make(chan struct{})}
	h := newHarness(t, fake)

	accepted := h.do(t, http.MethodPost, "/api/delete", "")
	requireStatus(t, accepted, http.StatusAccepted)
	var started struct {
		Selected int   `json:"selected"`
		Bytes    int64 `json:"bytes"`
	}
	decodeJSON(t, accepted, &started)
	if started.Selected != 2 || started.Bytes != 600 {
		t.Errorf("batch started with %+v, want 2 items of 600 bytes", started)
	}
	requireStatus(t, h.do(t, http.MethodPost, "/api/delete", ""), http.StatusConflict)
	close(fake.blockDelete)

	deadline := time.Now().Add(5 * time.Second)
	for h.sess.Deletion().Deleting() {
		if time.Now().After(deadline) {
			t.Fatal("batch did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if h.sess.Ledger().Size() != 2 || h.sess.Selection().Size() != 0 {
		t.Errorf("ledger=%d selection=%d", h.sess.Ledger().Size(), h.sess.Selection().Size())
	}

	resp := h.do(t, http.MethodGet, "/api/history/totals", "")
	requireStatus(t, resp, http.StatusOK)
	var totals struct {
		Items []history.LibraryTotal `json:"items"`
	}
	decodeJSON(t, resp, &totals)
	if len(totals.Items) != 1 || totals.Items[0].Count != 2 || totals.Items[0].Bytes != 600 {
		t.Errorf("totals = %+v", totals.Items)
	}
}

func TestIgnoreAndIncludeIgnored(t *testing.T) {
	h := newHarness(t, &fakeBackend{})

	requireStatus(t, h.do(t, http.MethodPost, "/api/content/ignore", `{"content_key":"/library/metadata/2"}`), http.StatusOK)
	requireStatus(t, h.do(t, http.MethodPost, "/api/content/ignore", `{}`), http.StatusBadRequest)

	resp := h.do(t, http.MethodGet, "/api/content?view=ignored", "")
	requireStatus(t, resp, http.StatusOK)
	var body struct {
		Total int `json:"total"`
	}
	decodeJSON(t, resp, &body)
	if body.Total != 1 {
		t.Errorf("ignored total = %d", body.Total)
	}

	requireStatus(t, h.do(t, http.MethodPost, "/api/content/include-ignored", `{"include":false}`), http.StatusOK)
	if h.sess.Selection().Has(4) {
		t.Error("variant of ignored group still selected")
	}
	requireStatus(t, h.do(t, http.MethodPost, "/api/content/include-ignored", `{}`), http.StatusBadRequest)

	requireStatus(t, h.do(t, http.MethodPost, "/api/content/unignore", `{"content_key":"/library/metadata/2"}`), http.StatusOK)
	if h.sess.Content().Len() != 2 {
		t.Errorf("active after unignore = %d", h.sess.Content().Len())
	}
}

func TestRefreshValidatesMode(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	requireStatus(t, h.do(t, http.MethodPost, "/api/content/refresh", `{"mode":"movies"}`), http.StatusBadRequest)
	requireStatus(t, h.do(t, http.MethodPost, "/api/content/refresh", `{"mode":"sample"}`), http.StatusAccepted)
}
