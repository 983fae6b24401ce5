package notification

import (
	"github.com/gin-gonic/gin"

	"github.com/campusmatch/engine/internal/app"
	"github.com/campusmatch/engine/internal/auth"
	"github.com/campusmatch/engine/internal/server/respond"
)

// Registrar ties the notification endpoints into the HTTP router
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

func (r *Registrar) Register(rg *gin.RouterGroup) {
	h := &handler{svc: NewService(r.appCtx), appCtx: r.appCtx}
	rg.GET("/notifications", h.list)
	rg.GET("/notifications/summary", h.summary)
	rg.POST("/notifications/read", h.markAllRead)
	rg.POST("/notifications/:id/read", h.markRead)
}

type handler struct {
	svc    *Service
	appCtx *app.AppContext
}

func (h *handler) list(c *gin.Context) {
	token, limit, err := respond.Page(c)
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	items, next, err := h.svc.List(c.Request.Context(), auth.UserID(c), token, limit)
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	respond.OK(c, gin.H{"notifications": items, "nextCursor": next})
}

func (h *handler) summary(c *gin.Context) {
	sum, err := h.svc.Summary(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	respond.OK(c, sum)
}

func (h *handler) markAllRead(c *gin.Context) {
	if err := h.svc.MarkAllRead(c.Request.Context(), auth.UserID(c)); err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	respond.OK(c, gin.H{"success": true})
}

func (h *handler) markRead(c *gin.Context) {
	id, err := respond.ParamID(c, "id")
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	if err := h.svc.MarkRead(c.Request.Context(), auth.UserID(c), id); err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	respond.OK(c, gin.H{"success": true})
}
