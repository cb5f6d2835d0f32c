package http

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/squadmap/squadmap/internal/app"
	"github.com/squadmap/squadmap/internal/config"
	"github.com/squadmap/squadmap/internal/core"
	"github.com/squadmap/squadmap/internal/domain"
)

// Handler is the request gate: it validates each request, resolves the
// room through the registry and dispatches into core. No room state is
// ever touched outside these handlers.
type Handler struct {
	cfg     *config.Config
	rooms   *app.Registry
	invites *app.InviteStore
}

func NewHandler(cfg *config.Config, rooms *app.Registry, invites *app.InviteStore) *Handler {
	return &Handler{cfg: cfg, rooms: rooms, invites: invites}
}

type authReq struct {
	Room     string `form:"room" json:"room"`
	Password string `form:"password" json:"password"`
}

type messageReq struct {
	authReq
	Name string `form:"name" json:"name"`
	Text string `form:"text" json:"text"`
}

type locationReq struct {
	authReq
	Name string   `form:"name" json:"name"`
	Lat  *float64 `form:"lat" json:"lat"`
	Lon  *float64 `form:"lon" json:"lon"`
}

// bind fills dst from the query string and, for a POST carrying a body,
// overlays the JSON fields on top. Credentials may ride in the query
// while the payload comes as JSON.
func bind(c *gin.Context, dst any) error {
	if err := c.ShouldBindQuery(dst); err != nil {
		return err
	}
	if c.Request.Method == http.MethodPost && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(dst); err != nil {
			return err
		}
	}
	return nil
}

// fail maps service errors onto the wire contract.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrBadPassword):
		c.String(http.StatusForbidden, "wrong password")
	case errors.Is(err, app.ErrRoomNotFound):
		c.String(http.StatusNotFound, "unknown room")
	case errors.Is(err, app.ErrInviteNotFound):
		c.String(http.StatusNotFound, "unknown token")
	case errors.Is(err, app.ErrInviteExpired):
		c.String(http.StatusGone, "invite expired")
	case errors.Is(err, app.ErrRoomOccupied):
		c.String(http.StatusConflict, "room occupied")
	default:
		log.Error().Err(err).Str("module", "adapters.http").Msg("unhandled error")
		c.String(http.StatusInternalServerError, "internal error")
	}
}

// badRequest distinguishes an oversized body, which must abort the
// connection, from plain malformed input.
func badRequest(c *gin.Context, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		c.String(http.StatusRequestEntityTooLarge, "body too large")
		c.Abort()
		return
	}
	c.String(http.StatusBadRequest, "bad request")
}

// Events opens the SSE stream for a room: an opening blank line, every
// buffered message in append order, the presence board, then the live
// tail until the client disconnects or the room is deleted.
func (h *Handler) Events(c *gin.Context) {
	var req authReq
	if err := bind(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	room, err := h.rooms.EnsureRoom(domain.RoomName(req.Room), req.Password)
	if err != nil {
		fail(c, err)
		return
	}

	w := c.Writer
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "\n")
	w.Flush()

	id := core.SubscriberID(uuid.NewString())
	sink := newSSESink()
	replay := room.Subscribe(id, sink)
	defer room.Unsubscribe(id)

	for _, msg := range replay.Messages {
		sse.Encode(w, sse.Event{Event: "message", Data: msg})
	}
	for _, loc := range replay.Presence {
		sse.Encode(w, sse.Event{Event: "location", Data: loc})
	}
	w.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sink.events:
			if !ok {
				// room deleted or sink pruned
				return
			}
			sse.Encode(w, sse.Event{Event: ev.Name, Data: ev.Data})
			w.Flush()
		}
	}
}

// Message posts a chat line into the room, creating the room on first
// use, and answers a plain "ok".
func (h *Handler) Message(c *gin.Context) {
	var req messageReq
	if err := bind(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Name == "" || req.Text == "" {
		c.String(http.StatusBadRequest, "name and text required")
		return
	}
	room, err := h.rooms.EnsureRoom(domain.RoomName(req.Room), req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	room.PostMessage(req.Name, req.Text)
	c.String(http.StatusOK, "ok")
}

// Location updates the presence board. Coordinates must be present and
// finite; anything else is a validation failure, not a partial write.
func (h *Handler) Location(c *gin.Context) {
	var req locationReq
	if err := bind(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Name == "" || req.Lat == nil || req.Lon == nil || !finite(*req.Lat) || !finite(*req.Lon) {
		c.String(http.StatusBadRequest, "name and finite lat/lon required")
		return
	}
	room, err := h.rooms.EnsureRoom(domain.RoomName(req.Room), req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	room.SetLocation(req.Name, *req.Lat, *req.Lon)
	c.String(http.StatusOK, "ok")
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Logout drops the presence entry for a name and announces the removal.
func (h *Handler) Logout(c *gin.Context) {
	var req messageReq
	if err := bind(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Name == "" {
		c.String(http.StatusBadRequest, "name required")
		return
	}
	room, err := h.rooms.EnsureRoom(domain.RoomName(req.Room), req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	room.ClearLocation(req.Name)
	c.String(http.StatusOK, "ok")
}

// Rooms lists current room names.
func (h *Handler) Rooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.rooms.List())
}

// CheckRoom verifies a room/password pair without mutating anything.
func (h *Handler) CheckRoom(c *gin.Context) {
	var req authReq
	if err := bind(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.rooms.Authorize(domain.RoomName(req.Room), req.Password); err != nil {
		fail(c, err)
		return
	}
	c.String(http.StatusOK, "ok")
}

// DeleteRoom removes a room after password validation, force-closing
// every live subscriber under the default policy.
func (h *Handler) DeleteRoom(c *gin.Context) {
	var req authReq
	if err := bind(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.rooms.Delete(domain.RoomName(req.Room), req.Password); err != nil {
		fail(c, err)
		return
	}
	c.String(http.StatusOK, "deleted")
}

type inviteResponse struct {
	Token string `json:"token"`
	Link  string `json:"link"`
}

// InviteCreate issues a token for an existing room. Expiry is given in
// minutes, maxUses is clamped to at least one by the store.
func (h *Handler) InviteCreate(c *gin.Context) {
	var req authReq
	if err := bind(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Room == "" {
		c.String(http.StatusBadRequest, "room required")
		return
	}

	expiry := time.Duration(0)
	if raw := c.Query("expiry"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes < 0 {
			c.String(http.StatusBadRequest, "bad expiry")
			return
		}
		expiry = time.Duration(minutes) * time.Minute
	}
	maxUses := 1
	if raw := c.Query("maxUses"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.String(http.StatusBadRequest, "bad maxUses")
			return
		}
		maxUses = n
	}

	inv, err := h.invites.Create(domain.RoomName(req.Room), req.Password, expiry, maxUses)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, inviteResponse{
		Token: inv.Token,
		Link:  strings.TrimRight(h.cfg.BaseURL, "/") + "/invite?token=" + inv.Token,
	})
}

type redeemResponse struct {
	Room     string `json:"room"`
	Password string `json:"password"`
}

// InviteRedeem consumes one use of a token and hands back the
// room/password snapshot taken when the invite was created.
func (h *Handler) InviteRedeem(c *gin.Context) {
	room, password, err := h.invites.Redeem(c.Query("token"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, redeemResponse{Room: string(room), Password: password})
}
