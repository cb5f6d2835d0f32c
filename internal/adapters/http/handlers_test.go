package http

import (
	"bufio"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadmap/squadmap/internal/app"
	"github.com/squadmap/squadmap/internal/config"
)

func newTestRouter(t *testing.T) (*gin.Engine, *app.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Mode:         "test",
		BaseURL:      "http://localhost:8080",
		ReadLimit:    1024,
		HistoryLimit: 200,
		InviteExpiry: 24 * time.Hour,
	}
	rooms := app.NewRegistry(cfg.HistoryLimit, app.ParseDeletePolicy(cfg.DeletePolicy))
	invites := app.NewInviteStore(rooms, cfg.InviteExpiry)
	return SetupRouter(cfg, NewHandler(cfg, rooms, invites)), rooms
}

func do(t *testing.T, r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMessageCreatesRoom(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, "GET", "/message?room=r1&password=p&name=alice&text=hi", "")
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	w = do(t, r, "GET", "/checkRoom?room=r1&password=p", "")
	assert.Equal(t, 200, w.Code)

	w = do(t, r, "GET", "/message?room=r1&password=wrong&name=alice&text=hi", "")
	assert.Equal(t, 403, w.Code)
}

func TestMessagePostJSON(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, "POST", "/message?room=r1&password=p", `{"name":"alice","text":"hi"}`)
	assert.Equal(t, 200, w.Code)

	w = do(t, r, "POST", "/message?room=r1&password=p", `{"name":"alice",`)
	assert.Equal(t, 400, w.Code, "malformed JSON body")

	w = do(t, r, "POST", "/message?room=r1&password=p", `{"name":"alice"}`)
	assert.Equal(t, 400, w.Code, "text is required")
}

func TestMessageBodyTooLarge(t *testing.T) {
	r, _ := newTestRouter(t)

	big := `{"name":"alice","text":"` + strings.Repeat("x", 4096) + `"}`
	w := do(t, r, "POST", "/message?room=r1&password=p", big)
	assert.Equal(t, 413, w.Code)
}

func TestLocationValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, "GET", "/location?room=r1&password=p&name=bob&lat=1.5&lon=2.5", "")
	assert.Equal(t, 200, w.Code)

	w = do(t, r, "GET", "/location?room=r1&password=p&name=bob&lat=1.5", "")
	assert.Equal(t, 400, w.Code, "missing lon")

	w = do(t, r, "GET", "/location?room=r1&password=p&name=bob&lat=abc&lon=2", "")
	assert.Equal(t, 400, w.Code, "non-numeric lat")

	w = do(t, r, "POST", "/location?room=r1&password=p", `{"name":"bob","lat":3,"lon":4}`)
	assert.Equal(t, 200, w.Code)
}

func TestLogoutClearsPresence(t *testing.T) {
	r, rooms := newTestRouter(t)

	do(t, r, "GET", "/location?room=r1&password=p&name=bob&lat=1&lon=2", "")
	w := do(t, r, "GET", "/logout?room=r1&password=p&name=bob", "")
	assert.Equal(t, 200, w.Code)

	room, err := rooms.Get("r1")
	require.NoError(t, err)
	replay := room.Subscribe("probe", newSSESink())
	assert.Empty(t, replay.Presence)
}

func TestRoomsList(t *testing.T) {
	r, _ := newTestRouter(t)

	do(t, r, "GET", "/message?room=beta&password=&name=a&text=x", "")
	do(t, r, "GET", "/message?room=alpha&password=&name=a&text=x", "")

	w := do(t, r, "GET", "/rooms", "")
	require.Equal(t, 200, w.Code)
	var names []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &names))
	assert.Equal(t, []string{"alpha", "beta"}, names)
}

func TestCheckRoomCodes(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, "GET", "/checkRoom?room=ghost&password=p", "")
	assert.Equal(t, 404, w.Code)

	do(t, r, "GET", "/message?room=r1&password=p&name=a&text=x", "")

	w = do(t, r, "GET", "/checkRoom?room=r1&password=wrong", "")
	assert.Equal(t, 403, w.Code)

	w = do(t, r, "GET", "/checkRoom?room=r1&password=p", "")
	assert.Equal(t, 200, w.Code)
}

func TestDeleteRoom(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, "GET", "/deleteRoom?room=ghost&password=p", "")
	assert.Equal(t, 404, w.Code)

	do(t, r, "GET", "/message?room=r1&password=p&name=a&text=x", "")

	w = do(t, r, "GET", "/deleteRoom?room=r1&password=wrong", "")
	assert.Equal(t, 403, w.Code)

	w = do(t, r, "GET", "/deleteRoom?room=r1&password=p", "")
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "deleted", w.Body.String())

	w = do(t, r, "GET", "/checkRoom?room=r1&password=p", "")
	assert.Equal(t, 404, w.Code)
}

func TestInviteFlow(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, "GET", "/invite/create?password=p", "")
	assert.Equal(t, 400, w.Code, "missing room")

	w = do(t, r, "GET", "/invite/create?room=r1&password=p", "")
	assert.Equal(t, 404, w.Code, "room must already exist")

	do(t, r, "GET", "/message?room=r1&password=p&name=a&text=x", "")

	w = do(t, r, "GET", "/invite/create?room=r1&password=wrong", "")
	assert.Equal(t, 403, w.Code)

	w = do(t, r, "GET", "/invite/create?room=r1&password=p&expiry=1&maxUses=2", "")
	require.Equal(t, 200, w.Code)
	var created inviteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.Token)
	assert.Contains(t, created.Link, "/invite?token="+created.Token)

	for i := 0; i < 2; i++ {
		w = do(t, r, "GET", "/invite?token="+created.Token, "")
		require.Equal(t, 200, w.Code)
		var redeemed redeemResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &redeemed))
		assert.Equal(t, "r1", redeemed.Room)
		assert.Equal(t, "p", redeemed.Password)
	}

	w = do(t, r, "GET", "/invite?token="+created.Token, "")
	assert.Equal(t, 404, w.Code, "exhausted token behaves as unknown")

	w = do(t, r, "GET", "/invite/join?token=bogus", "")
	assert.Equal(t, 404, w.Code)
}

type sseFrame struct {
	event string
	data  string
}

// readFrames consumes n complete SSE frames from the stream.
func readFrames(t *testing.T, r *bufio.Reader, n int) []sseFrame {
	t.Helper()
	var frames []sseFrame
	var cur sseFrame
	for len(frames) < n {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event:"):
			cur.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			cur.data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "" && cur.event != "":
			frames = append(frames, cur)
			cur = sseFrame{}
		}
	}
	return frames
}

func TestEventsStream(t *testing.T) {
	r, _ := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	seed := []string{
		"/message?room=r1&password=p&name=alice&text=hello",
		"/message?room=r1&password=p&name=alice&text=again",
		"/location?room=r1&password=p&name=bob&lat=1&lon=2",
	}
	for _, path := range seed {
		resp, err := nethttp.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, 200, resp.StatusCode)
	}

	// wrong password against the now-existing room
	resp, err := nethttp.Get(srv.URL + "/events?room=r1&password=wrong")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 403, resp.StatusCode)

	resp, err = nethttp.Get(srv.URL + "/events?room=r1&password=p")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	reader := bufio.NewReader(resp.Body)
	replay := readFrames(t, reader, 3)
	assert.Equal(t, "message", replay[0].event)
	assert.Contains(t, replay[0].data, "hello")
	assert.Equal(t, "message", replay[1].event)
	assert.Contains(t, replay[1].data, "again")
	assert.Equal(t, "location", replay[2].event)
	assert.Contains(t, replay[2].data, "bob")

	// live tail after the replay prefix
	liveResp, err := nethttp.Get(srv.URL + "/message?room=r1&password=p&name=alice&text=live")
	require.NoError(t, err)
	liveResp.Body.Close()

	live := readFrames(t, reader, 1)
	assert.Equal(t, "message", live[0].event)
	assert.Contains(t, live[0].data, "live")

	// deleting the room force-closes the stream
	delResp, err := nethttp.Get(srv.URL + "/deleteRoom?room=r1&password=p")
	require.NoError(t, err)
	delResp.Body.Close()
	require.Equal(t, 200, delResp.StatusCode)

	for {
		if _, err := reader.ReadString('\n'); err != nil {
			assert.ErrorIs(t, err, io.EOF)
			break
		}
	}
}

func TestEventsCreatesRoom(t *testing.T) {
	r, _ := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := nethttp.Get(srv.URL + "/events?room=fresh&password=secret")
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	resp.Body.Close()

	check, err := nethttp.Get(srv.URL + "/checkRoom?room=fresh&password=secret")
	require.NoError(t, err)
	check.Body.Close()
	assert.Equal(t, 200, check.StatusCode)
}
