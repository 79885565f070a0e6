package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hoshinonyaruko/dungeon-in-im/action"
	"github.com/hoshinonyaruko/dungeon-in-im/content"
	"github.com/hoshinonyaruko/dungeon-in-im/kv"
	"github.com/hoshinonyaruko/dungeon-in-im/leaderboard"
	"github.com/hoshinonyaruko/dungeon-in-im/puzzle"
	"github.com/hoshinonyaruko/dungeon-in-im/render"
	"github.com/hoshinonyaruko/dungeon-in-im/state"
	"github.com/hoshinonyaruko/dungeon-in-im/structs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, modToken string) *gin.Engine {
	t.Helper()
	store := kv.NewMemory()
	st := state.New(store, leaderboard.NewDungeon(store))
	return NewRouter(&Deps{
		Processor:       action.NewProcessor(st, action.WithDefaultPrompt("A mysterious chamber")),
		Store:           st,
		Puzzles:         puzzle.NewService(store, leaderboard.NewTrivia(store), nil),
		Renderer:        &render.Renderer{BlockSize: 8, Dir: t.TempDir()},
		LeaderboardSize: 5,
		ModToken:        modToken,
		SelfPath:        "http://dungeon.example/",
	})
}

func do(t *testing.T, r *gin.Engine, method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func move(kind, dir string) MoveRequest {
	return MoveRequest{Action: action.Payload{Kind: kind, Direction: dir}}
}

func TestMoveAndAttack(t *testing.T) {
	r := newTestRouter(t, "")

	w := do(t, r, http.MethodPost, "/api/move?community=alpha&userid=u1&username=ann", move("move", "east"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[MoveResponse](t, w)
	assert.True(t, res.OK)
	assert.Equal(t, "Moved east", res.Message)
	require.NotNil(t, res.State)
	assert.Equal(t, structs.Point{X: 2, Y: 1}, res.State.Players["u1"].Position)
	assert.Equal(t, int64(1), res.State.Players["u1"].Score)

	headers := map[string]string{"X-Community": "alpha", "X-User-Id": "u1", "X-Username": "ann"}
	w = do(t, r, http.MethodPost, "/api/move", move("attack", ""), headers)
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[MoveResponse](t, w)
	assert.Equal(t, int64(4), res.State.Players["u1"].Score)

	w = do(t, r, http.MethodGet, "/api/leaderboard?community=alpha", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	lb := decode[LeaderboardResponse](t, w)
	assert.True(t, lb.OK)
	assert.Equal(t, []structs.LeaderboardEntry{{UserID: "u1", Username: "ann", Score: 4}}, lb.Top)
}

func TestMoveFailures(t *testing.T) {
	r := newTestRouter(t, "")

	w := do(t, r, http.MethodPost, "/api/move?community=alpha", move("attack", ""), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, MoveResponse{OK: false, Message: "Not authenticated"}, decode[MoveResponse](t, w))

	w = do(t, r, http.MethodPost, "/api/move?userid=u1", move("attack", ""), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing community", decode[MoveResponse](t, w).Message)

	w = do(t, r, http.MethodPost, "/api/move?community=alpha&userid=u1", move("move", "up"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid action", decode[MoveResponse](t, w).Message)
}

func TestInspectDefault(t *testing.T) {
	r := newTestRouter(t, "")
	w := do(t, r, http.MethodPost, "/api/move?community=alpha&userid=u1", move("inspect", ""), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "You find nothing of note.", decode[MoveResponse](t, w).Message)
}

func TestLeaderboardEmptyAndMissingCommunity(t *testing.T) {
	r := newTestRouter(t, "")

	w := do(t, r, http.MethodGet, "/api/leaderboard?community=nobody", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	lb := decode[LeaderboardResponse](t, w)
	assert.True(t, lb.OK)
	assert.Empty(t, lb.Top)
	assert.Contains(t, w.Body.String(), `"top":[]`)

	w = do(t, r, http.MethodGet, "/api/leaderboard", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestModeratorEndpoints(t *testing.T) {
	r := newTestRouter(t, "secret")
	mod := map[string]string{"X-Mod-Token": "secret"}

	w := do(t, r, http.MethodPost, "/api/start-level?community=alpha&userid=mod", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, http.MethodPost, "/api/move?community=alpha&userid=u1", move("startNewLevel", ""), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, http.MethodPost, "/api/generate-room?community=alpha&userid=mod", GenerateRoomRequest{Prompt: "test"}, mod)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	gen := decode[GenerateRoomResponse](t, w)
	assert.True(t, gen.OK)
	assert.Equal(t, content.Generate("test", ""), gen.Event)

	w = do(t, r, http.MethodPost, "/api/start-level?community=alpha&userid=mod", nil, mod)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[MoveResponse](t, w)
	assert.Equal(t, 2, res.State.CurrentLevel.LevelNumber)
	assert.Nil(t, res.State.CurrentRoomEvent)

	w = do(t, r, http.MethodPost, "/api/post?community=alpha", PostRequest{PostID: "t3_abc"}, mod)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/api/state?community=alpha", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[MoveResponse](t, w)
	assert.Equal(t, "t3_abc", got.State.CurrentPostID)
	assert.Equal(t, 2, got.State.CurrentLevel.LevelNumber)
}

func TestPuzzleEndpoints(t *testing.T) {
	r := newTestRouter(t, "")

	w := do(t, r, http.MethodGet, "/api/puzzle", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"answer"`)
	p := decode[PuzzleResponse](t, w)
	assert.Equal(t, puzzle.Fallback().Question, p.Question)

	w = do(t, r, http.MethodPost, "/api/check-answer?community=alpha&userid=u1", CheckAnswerRequest{Guess: "snoo"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[puzzle.CheckResult](t, w)
	assert.True(t, res.Correct)
	assert.Equal(t, "Snoo", res.Answer)

	// trivia points do not land on the dungeon leaderboard
	w = do(t, r, http.MethodGet, "/api/leaderboard?community=alpha", nil, nil)
	assert.Empty(t, decode[LeaderboardResponse](t, w).Top)
}

func TestCheckAnswerBody(t *testing.T) {
	r := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/check-answer?community=alpha&userid=u1", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, MoveResponse{OK: false, Message: "Invalid action"}, decode[MoveResponse](t, w))

	w = do(t, r, http.MethodPost, "/api/check-answer?community=alpha&userid=u1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "No guess provided.", decode[puzzle.CheckResult](t, w).Message)
}

func TestRenderMap(t *testing.T) {
	r := newTestRouter(t, "")
	do(t, r, http.MethodPost, "/api/move?community=alpha&userid=u1", move("move", "south"), nil)

	w := do(t, r, http.MethodGet, "/render-map?community=alpha", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	urls := decode[map[string]string](t, w)
	assert.Equal(t, "http://dungeon.example/static/alpha.png", urls["image_url"])
	assert.Equal(t, "http://dungeon.example/static/alpha_preview.png", urls["preview_url"])

	w = do(t, r, http.MethodGet, "/static/alpha.png", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
}
