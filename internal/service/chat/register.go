package chat

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campusmatch/engine/internal/app"
	"github.com/campusmatch/engine/internal/auth"
	svcErr "github.com/campusmatch/engine/internal/errors"
	"github.com/campusmatch/engine/internal/server/respond"
)

// Registrar ties the direct and plan chat endpoints into the HTTP router
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

func (r *Registrar) Register(rg *gin.RouterGroup) {
	h := &handler{svc: NewService(r.appCtx), appCtx: r.appCtx}
	rg.GET("/chat/:otherUserId/messages", h.listDirect)
	rg.POST("/chat/:otherUserId/messages", h.sendDirect)
	rg.GET("/plans/:id/chat", h.listPlan)
	rg.POST("/plans/:id/chat", h.sendPlan)
}

type handler struct {
	svc    *Service
	appCtx *app.AppContext
}

func (h *handler) history(c *gin.Context) (afterID uint64, limit int, err error) {
	if afterID, err = respond.AfterID(c); err != nil {
		return 0, 0, err
	}
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			return 0, 0, svcErr.InvalidArgument("limit must be an integer")
		}
	}
	return afterID, limit, nil
}

func (h *handler) listDirect(c *gin.Context) {
	other, err := respond.ParamID(c, "otherUserId")
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	afterID, limit, err := h.history(c)
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	msgs, err := h.svc.ListDirect(c.Request.Context(), auth.UserID(c), other, afterID, limit)
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	respond.OK(c, gin.H{"messages": msgs})
}

func (h *handler) sendDirect(c *gin.Context) {
	other, err := respond.ParamID(c, "otherUserId")
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	var in SendInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Error(c, h.appCtx.Logger, svcErr.InvalidArgument("malformed body"))
		return
	}
	msg, err := h.svc.SendDirect(c.Request.Context(), auth.UserID(c), other, in)
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	respond.Created(c, msg)
}

func (h *handler) listPlan(c *gin.Context) {
	planID, err := respond.ParamID(c, "id")
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	afterID, limit, err := h.history(c)
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	msgs, err := h.svc.ListPlan(c.Request.Context(), auth.UserID(c), planID, afterID, limit)
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	respond.OK(c, gin.H{"messages": msgs})
}

func (h *handler) sendPlan(c *gin.Context) {
	planID, err := respond.ParamID(c, "id")
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	var in SendInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Error(c, h.appCtx.Logger, svcErr.InvalidArgument("malformed body"))
		return
	}
	msg, err := h.svc.SendPlan(c.Request.Context(), auth.UserID(c), planID, in)
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	respond.Created(c, msg)
}
