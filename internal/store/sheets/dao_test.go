package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"

	"chgk-poll-bot/internal/store"
)

func TestGet(t *testing.T) {
	row := []interface{}{"tasks", `{"tasks":[]}`, nil}
	assert.Equal(t, "tasks", get(row, 0))
	assert.Equal(t, `{"tasks":[]}`, get(row, 1))
	assert.Equal(t, "", get(row, 2))
	assert.Equal(t, "", get(row, 5))
	assert.Equal(t, "", get(row, -1))
}

var rowRange = regexp.MustCompile(`!A(\d+):C\d+$`)

// fakeSheet keeps the Documents sheet as rows, header first.
type fakeSheet struct {
	mu      sync.Mutex
	rows    [][]interface{}
	appends int
	updates int
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var vr sheetsv4.ValueRange
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&vr)
	}
	switch {
	case r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]any{"range": SheetDocuments + "!A:C", "values": f.rows})
	case strings.HasSuffix(r.URL.Path, ":append"):
		f.appends++
		f.rows = append(f.rows, vr.Values...)
		_ = json.NewEncoder(w).Encode(map[string]any{})
	case r.Method == http.MethodPut:
		m := rowRange.FindStringSubmatch(r.URL.Path)
		if m == nil {
			http.Error(w, "bad range", http.StatusBadRequest)
			return
		}
		n, _ := strconv.Atoi(m[1])
		f.updates++
		f.rows[n-1] = vr.Values[0]
		_ = json.NewEncoder(w).Encode(map[string]any{})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeSheet) stats() (appends, updates, rows int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appends, f.updates, len(f.rows)
}

func newTestClient(t *testing.T, fake *fakeSheet) *Client {
	t.Helper()
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)

	srv, err := sheetsv4.NewService(context.Background(),
		option.WithoutAuthentication(),
		option.WithHTTPClient(ts.Client()),
	)
	require.NoError(t, err)
	srv.BasePath = ts.URL + "/"
	return &Client{srv: srv, spreadsheetID: "sheet-id", sheet: SheetDocuments}
}

func TestClient_GetMissing(t *testing.T) {
	c := newTestClient(t, &fakeSheet{rows: [][]interface{}{{"key", "body", "updated_at"}}})
	_, err := c.Get(context.Background(), "tasks")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClient_UpdateAppendsThenRewritesRow(t *testing.T) {
	fake := &fakeSheet{rows: [][]interface{}{
		{"key", "body", "updated_at"},
		{"configs", "{}", ""},
	}}
	c := newTestClient(t, fake)
	ctx := context.Background()

	var seen []string
	fn := func(cur []byte) ([]byte, error) {
		seen = append(seen, string(cur))
		if cur == nil {
			return []byte(`{"tasks":[]}`), nil
		}
		return []byte(`{"tasks":[{"chatId":1}]}`), nil
	}
	require.NoError(t, c.Update(ctx, "tasks", fn))
	require.NoError(t, c.Update(ctx, "tasks", fn))

	assert.Equal(t, []string{"", `{"tasks":[]}`}, seen)
	appends, updates, rows := fake.stats()
	assert.Equal(t, 1, appends)
	assert.Equal(t, 1, updates)
	assert.Equal(t, 3, rows)

	doc, err := c.Get(ctx, "tasks")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tasks":[{"chatId":1}]}`, string(doc))

	other, err := c.Get(ctx, "configs")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(other))
}
