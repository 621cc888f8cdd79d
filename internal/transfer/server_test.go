package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/karma/internal/logger"
	"github.com/samcharles93/karma/pkg/karma"
)

func exampleMultiArray(t *testing.T) *karma.MultiArray {
	t.Helper()
	desc := karma.NewPacketDesc(
		karma.Scalar(karma.TypeInt, "x"),
		karma.ArrayOf("grid",
			karma.NewPacketDesc(karma.Scalar(karma.TypeDouble, "v")),
			karma.Dim("y", 2), karma.Dim("x", 2)),
	)
	p, err := karma.NewPacket(desc)
	if err != nil {
		t.Fatalf("new packet: %v", err)
	}
	_ = p.SetInt64("x", 7)
	grid, _ := p.Array("grid")
	for i := range grid.Count {
		c, _ := grid.At(i)
		_ = c.SetFloat64("v", float64(i+1))
	}
	ma := karma.NewMultiArray()
	if err := ma.Add("image", desc, p.Data); err != nil {
		t.Fatalf("add: %v", err)
	}
	return ma
}

func newTestEcho(maxBody int64) (*echo.Echo, *Store) {
	store := NewStore(karma.ReaderOptions{})
	server := NewServer(store, logger.Discard(), maxBody)
	e := echo.New()
	server.Register(e)
	return e, store
}

func do(t *testing.T, e *echo.Echo, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set(echo.HeaderContentType, MIMEKarma)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestPutGetDeleteLifecycle(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(0)
	ma := exampleMultiArray(t)
	raw, err := karma.Encode(ma)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	putRec := do(t, e, http.MethodPut, "/v1/arrays/scan", raw)
	if putRec.Code != http.StatusOK {
		t.Fatalf("put status: got %d body=%s", putRec.Code, putRec.Body.String())
	}
	var entry Entry
	if err := json.Unmarshal(putRec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode put response: %v", err)
	}
	if !strings.HasPrefix(entry.ID, "ma_") || entry.Size != len(raw) {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if diff := cmp.Diff([]string{"image"}, entry.Packets); diff != "" {
		t.Fatalf("packets (-want +got):\n%s", diff)
	}

	getRec := do(t, e, http.MethodGet, "/v1/arrays/scan", nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status: got %d body=%s", getRec.Code, getRec.Body.String())
	}
	if ct := getRec.Header().Get(echo.HeaderContentType); ct != MIMEKarma {
		t.Fatalf("content type: got %q want %q", ct, MIMEKarma)
	}
	got, err := karma.Decode(getRec.Body.Bytes())
	if err != nil {
		t.Fatalf("decode get body: %v", err)
	}
	if diff := cmp.Diff(ma, got); diff != "" {
		t.Fatalf("multi-array mismatch (-want +got):\n%s", diff)
	}

	delRec := do(t, e, http.MethodDelete, "/v1/arrays/scan", nil)
	if delRec.Code != http.StatusOK {
		t.Fatalf("delete status: got %d body=%s", delRec.Code, delRec.Body.String())
	}
	if !strings.Contains(delRec.Body.String(), `"deleted":true`) {
		t.Fatalf("delete response missing deleted=true: %s", delRec.Body.String())
	}

	missing := do(t, e, http.MethodGet, "/v1/arrays/scan", nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d body=%s", missing.Code, missing.Body.String())
	}
	if !strings.Contains(missing.Body.String(), `"type":"not_found_error"`) {
		t.Fatalf("unexpected error body: %s", missing.Body.String())
	}
}

func TestDumpJSONAndSchemaViews(t *testing.T) {
	t.Parallel()

	e, store := newTestEcho(0)
	if _, err := store.Put("scan", exampleMultiArray(t)); err != nil {
		t.Fatalf("put: %v", err)
	}

	dump := do(t, e, http.MethodGet, "/v1/arrays/scan/dump?comments=true", nil)
	if dump.Code != http.StatusOK {
		t.Fatalf("dump status: got %d body=%s", dump.Code, dump.Body.String())
	}
	for _, want := range []string{"x: 7\n", "grid[1][0].v: 3.0\n", "# grid: array [2][2]"} {
		if !strings.Contains(dump.Body.String(), want) {
			t.Fatalf("dump missing %q:\n%s", want, dump.Body.String())
		}
	}

	terse := do(t, e, http.MethodGet, "/v1/arrays/scan/dump", nil)
	if strings.Contains(terse.Body.String(), "#") {
		t.Fatalf("terse dump has comments:\n%s", terse.Body.String())
	}

	js := do(t, e, http.MethodGet, "/v1/arrays/scan/json", nil)
	if js.Code != http.StatusOK {
		t.Fatalf("json status: got %d body=%s", js.Code, js.Body.String())
	}
	if !strings.Contains(js.Body.String(), `"grid":[[{"v":1},{"v":2}],[{"v":3},{"v":4}]]`) {
		t.Fatalf("unexpected json body: %s", js.Body.String())
	}

	sc := do(t, e, http.MethodGet, "/v1/arrays/scan/schema", nil)
	if sc.Code != http.StatusOK || !strings.Contains(sc.Body.String(), "type: double") {
		t.Fatalf("schema: got %d body=%s", sc.Code, sc.Body.String())
	}

	list := do(t, e, http.MethodGet, "/v1/arrays", nil)
	if !strings.Contains(list.Body.String(), `"name":"scan"`) {
		t.Fatalf("list missing entry: %s", list.Body.String())
	}
}

func TestPutRejectsMalformedBodies(t *testing.T) {
	t.Parallel()

	e, store := newTestEcho(1024)
	raw, _ := karma.Encode(exampleMultiArray(t))

	tests := []struct {
		name   string
		body   []byte
		status int
	}{
		{"bad magic", []byte("NotKarma\x00\x00\x00\x01"), http.StatusBadRequest},
		{"truncated", raw[:20], http.StatusBadRequest},
		{"trailing", append(append([]byte(nil), raw...), 0), http.StatusBadRequest},
		{"too large", bytes.Repeat([]byte{0}, 1025), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		rec := do(t, e, http.MethodPut, "/v1/arrays/bad", tt.body)
		if rec.Code != tt.status {
			t.Fatalf("%s: got %d want %d body=%s", tt.name, rec.Code, tt.status, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), `"error"`) {
			t.Fatalf("%s: missing error object: %s", tt.name, rec.Body.String())
		}
	}
	if len(store.List()) != 0 {
		t.Fatalf("rejected bodies were stored")
	}
}

func TestStoreReturnsIndependentCopies(t *testing.T) {
	t.Parallel()

	store := NewStore(karma.ReaderOptions{})
	if _, err := store.Put("a", exampleMultiArray(t)); err != nil {
		t.Fatalf("put: %v", err)
	}
	first, _, err := store.Get("a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	p, _ := first.Get("image")
	_ = p.SetInt64("x", 99)

	second, _, _ := store.Get("a")
	q, _ := second.Get("image")
	if x, _ := q.Int64("x"); x != 7 {
		t.Fatalf("stored copy changed: got %d want 7", x)
	}

	if _, err := store.Put("", exampleMultiArray(t)); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if store.Delete("missing") {
		t.Fatalf("delete of missing entry reported true")
	}
}

func TestStoreGetReportsMissingAndCorrupt(t *testing.T) {
	t.Parallel()

	e, store := newTestEcho(0)
	if _, _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing: got %v want %v", err, ErrNotFound)
	}

	if _, err := store.Put("scan", exampleMultiArray(t)); err != nil {
		t.Fatalf("put: %v", err)
	}
	store.mu.Lock()
	r := store.records["scan"]
	r.raw = r.raw[:len(r.raw)-3]
	store.mu.Unlock()

	if _, _, err := store.Get("scan"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("get corrupt: got %v want %v", err, ErrCorrupt)
	}
	rec := do(t, e, http.MethodGet, "/v1/arrays/scan/dump", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("dump of corrupt entry: got %d want %d", rec.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(rec.Body.String(), `"server_error"`) {
		t.Fatalf("error body: got %s", rec.Body.String())
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	t.Parallel()

	store := NewStore(karma.ReaderOptions{})
	ma := exampleMultiArray(t)
	raw, _ := karma.Encode(ma)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := string(rune('a' + i))
			if _, err := store.PutRaw(name, raw); err != nil {
				t.Errorf("put %s: %v", name, err)
				return
			}
			if _, _, err := store.Get(name); err != nil {
				t.Errorf("get %s: %v", name, err)
			}
		}()
	}
	wg.Wait()

	entries := store.List()
	if len(entries) != 8 {
		t.Fatalf("entries: got %d want 8", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Name >= entries[i].Name {
			t.Fatalf("list not sorted: %q before %q", entries[i-1].Name, entries[i].Name)
		}
	}
}
