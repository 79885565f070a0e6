package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hoshinonyaruko/dungeon-in-im/action"
	"github.com/hoshinonyaruko/dungeon-in-im/puzzle"
	"github.com/hoshinonyaruko/dungeon-in-im/render"
	"github.com/hoshinonyaruko/dungeon-in-im/state"
	"github.com/hoshinonyaruko/dungeon-in-im/structs"
)

// Deps 是处理函数依赖的服务。
type Deps struct {
	Processor       *action.Processor
	Store           *state.Store
	Puzzles         *puzzle.Service
	Renderer        *render.Renderer
	LeaderboardSize int
	ModToken        string // empty leaves moderation checks to the caller
	SelfPath        string
}

// MoveRequest is the body of POST /api/move.
type MoveRequest struct {
	Action action.Payload `json:"action"`
}

// MoveResponse is returned by every state-changing endpoint.
type MoveResponse struct {
	OK      bool               `json:"ok"`
	Message string             `json:"message"`
	State   *structs.GameState `json:"state,omitempty"`
}

// LeaderboardResponse is returned by GET /api/leaderboard.
type LeaderboardResponse struct {
	OK  bool                       `json:"ok"`
	Top []structs.LeaderboardEntry `json:"top"`
}

// GenerateRoomRequest is the body of POST /api/generate-room.
type GenerateRoomRequest struct {
	Prompt   string `json:"prompt"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// GenerateRoomResponse is returned by POST /api/generate-room.
type GenerateRoomResponse struct {
	OK    bool              `json:"ok"`
	Event structs.RoomEvent `json:"event"`
}

// PostRequest is the body of POST /api/post.
type PostRequest struct {
	PostID string `json:"postId"`
}

// PuzzleResponse hides the answer.
type PuzzleResponse struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// CheckAnswerRequest is the body of POST /api/check-answer.
type CheckAnswerRequest struct {
	Guess string `json:"guess"`
}

// NewRouter 注册所有路由。
func NewRouter(d *Deps) *gin.Engine {
	router := gin.Default()
	// 处理玩家行动
	router.POST("/api/move", MoveHandler(d))
	router.GET("/api/state", StateHandler(d))
	router.GET("/api/leaderboard", LeaderboardHandler(d))
	// 以下为管理工具调用
	router.POST("/api/generate-room", GenerateRoomHandler(d))
	router.POST("/api/start-level", StartLevelHandler(d))
	router.POST("/api/post", SetPostHandler(d))
	// 每日问答
	router.GET("/api/puzzle", PuzzleHandler(d))
	router.POST("/api/check-answer", CheckAnswerHandler(d))
	// 渲染函数 返回静态地址
	if d.Renderer != nil {
		router.GET("/render-map", RenderMapHandler(d))
		router.Static("/static", d.Renderer.Dir)
	}
	return router
}

type identity struct {
	community string
	userID    string
	username  string
}

// resolve reads the caller's identity and community from the query string,
// falling back to headers set by the hosting platform.
func resolve(c *gin.Context) identity {
	pick := func(query, header string) string {
		if v := strings.TrimSpace(c.Query(query)); v != "" {
			return v
		}
		return strings.TrimSpace(c.GetHeader(header))
	}
	id := identity{
		community: pick("community", "X-Community"),
		userID:    pick("userid", "X-User-Id"),
		username:  pick("username", "X-Username"),
	}
	if id.username == "" {
		id.username = id.userID
	}
	return id
}

func (d *Deps) moderator(c *gin.Context) bool {
	return d.ModToken == "" || c.GetHeader("X-Mod-Token") == d.ModToken
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, MoveResponse{OK: false, Message: message})
}

// failFor maps processor errors to the response the caller sees.
func failFor(c *gin.Context, err error) {
	switch {
	case errors.Is(err, action.ErrNotAuthenticated):
		fail(c, http.StatusUnauthorized, "Not authenticated")
	case errors.Is(err, action.ErrMissingCommunity):
		fail(c, http.StatusBadRequest, "Missing community")
	case errors.Is(err, action.ErrInvalidAction):
		fail(c, http.StatusBadRequest, "Invalid action")
	default:
		log.Printf("action failed: %v", err)
		fail(c, http.StatusInternalServerError, "Failed to process action")
	}
}

func (d *Deps) process(c *gin.Context, a action.Action) (action.Result, bool) {
	if action.Privileged(a) && !d.moderator(c) {
		fail(c, http.StatusForbidden, "Moderator only")
		return action.Result{}, false
	}
	id := resolve(c)
	res, err := d.Processor.Process(c.Request.Context(), action.Request{
		Community: id.community,
		UserID:    id.userID,
		Username:  id.username,
		Action:    a,
	})
	if err != nil {
		failFor(c, err)
		return action.Result{}, false
	}
	return res, true
}

// MoveHandler accepts any action in the wire union.
func MoveHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MoveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "Invalid action")
			return
		}
		a, err := action.Decode(req.Action)
		if err != nil {
			failFor(c, err)
			return
		}
		if res, ok := d.process(c, a); ok {
			c.JSON(http.StatusOK, MoveResponse{OK: true, Message: res.Message, State: res.State})
		}
	}
}

func StateHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := resolve(c)
		if id.community == "" {
			fail(c, http.StatusBadRequest, "Missing community")
			return
		}
		st, err := d.Store.GetOrInit(c.Request.Context(), id.community)
		if err != nil {
			failFor(c, err)
			return
		}
		c.JSON(http.StatusOK, MoveResponse{OK: true, State: st})
	}
}

func LeaderboardHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := resolve(c)
		if id.community == "" {
			fail(c, http.StatusBadRequest, "Missing community")
			return
		}
		n, _ := strconv.Atoi(c.DefaultQuery("n", strconv.Itoa(d.LeaderboardSize)))
		top, err := d.Store.Board().TopN(c.Request.Context(), id.community, n)
		if err != nil {
			failFor(c, err)
			return
		}
		c.JSON(http.StatusOK, LeaderboardResponse{OK: true, Top: top})
	}
}

func GenerateRoomHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GenerateRoomRequest
		// an empty body falls back to the configured prompt
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				fail(c, http.StatusBadRequest, "Invalid action")
				return
			}
		}
		res, ok := d.process(c, action.GenerateRoom{Prompt: req.Prompt, ImageRef: req.ImageURL})
		if !ok {
			return
		}
		var ev structs.RoomEvent
		if res.State.CurrentRoomEvent != nil {
			ev = *res.State.CurrentRoomEvent
		}
		c.JSON(http.StatusOK, GenerateRoomResponse{OK: true, Event: ev})
	}
}

func StartLevelHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if res, ok := d.process(c, action.StartNewLevel{}); ok {
			c.JSON(http.StatusOK, MoveResponse{OK: true, Message: res.Message, State: res.State})
		}
	}
}

func SetPostHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !d.moderator(c) {
			fail(c, http.StatusForbidden, "Moderator only")
			return
		}
		id := resolve(c)
		if id.community == "" {
			fail(c, http.StatusBadRequest, "Missing community")
			return
		}
		var req PostRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.PostID == "" {
			fail(c, http.StatusBadRequest, "Missing postId")
			return
		}
		if _, err := d.Store.SetPost(c.Request.Context(), id.community, req.PostID); err != nil {
			failFor(c, err)
			return
		}
		c.JSON(http.StatusOK, MoveResponse{OK: true, Message: "Post updated"})
	}
}

func PuzzleHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := d.Puzzles.Today(c.Request.Context())
		c.JSON(http.StatusOK, PuzzleResponse{Question: p.Question, Options: p.Options})
	}
}

func CheckAnswerHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CheckAnswerRequest
		// a missing body is a blank guess
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				fail(c, http.StatusBadRequest, "Invalid action")
				return
			}
		}
		id := resolve(c)
		res, err := d.Puzzles.Check(c.Request.Context(), id.community, id.userID, id.username, req.Guess)
		if err != nil {
			failFor(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func RenderMapHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := resolve(c)
		if id.community == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing community"})
			return
		}
		st, err := d.Store.GetOrInit(c.Request.Context(), id.community)
		if err != nil {
			log.Printf("render-map load %s: %v", id.community, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to fetch game state"})
			return
		}
		paths, err := d.Renderer.Render(st)
		if err != nil {
			log.Printf("render-map draw %s: %v", id.community, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to render map"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"image_url":   d.staticURL(paths.Map),
			"preview_url": d.staticURL(paths.Preview),
		})
	}
}

func (d *Deps) staticURL(path string) string {
	return fmt.Sprintf("%s/static/%s", strings.TrimRight(d.SelfPath, "/"), filepath.Base(path))
}
