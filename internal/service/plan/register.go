package plan

import (
	"github.com/gin-gonic/gin"

	"github.com/campusmatch/engine/internal/app"
	"github.com/campusmatch/engine/internal/auth"
	"github.com/campusmatch/engine/internal/server/respond"
)

// Registrar ties the plan attendance endpoints into the HTTP router
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

func (r *Registrar) Register(rg *gin.RouterGroup) {
	h := &handler{svc: NewService(r.appCtx), appCtx: r.appCtx}
	rg.POST("/plans/:id/join", h.join)
	rg.POST("/plans/:id/leave", h.leave)
	rg.DELETE("/plans/:id/attendees/:userId", h.removeAttendee)
	rg.POST("/plans/:id/attendees/:userId/attended", h.markAttended)
}

type handler struct {
	svc    *Service
	appCtx *app.AppContext
}

func (h *handler) join(c *gin.Context) {
	planID, err := respond.ParamID(c, "id")
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	res, err := h.svc.Join(c.Request.Context(), planID, auth.UserID(c))
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	respond.OK(c, res)
}

func (h *handler) leave(c *gin.Context) {
	planID, err := respond.ParamID(c, "id")
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	if err := h.svc.Leave(c.Request.Context(), planID, auth.UserID(c)); err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	respond.OK(c, gin.H{"success": true})
}

func (h *handler) removeAttendee(c *gin.Context) {
	planID, userID, ok := h.ids(c)
	if !ok {
		return
	}
	if err := h.svc.RemoveAttendee(c.Request.Context(), auth.UserID(c), planID, userID); err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	respond.OK(c, gin.H{"success": true})
}

func (h *handler) markAttended(c *gin.Context) {
	planID, userID, ok := h.ids(c)
	if !ok {
		return
	}
	if err := h.svc.MarkAttended(c.Request.Context(), auth.UserID(c), planID, userID); err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	respond.OK(c, gin.H{"success": true})
}

func (h *handler) ids(c *gin.Context) (planID, userID uint64, ok bool) {
	planID, err := respond.ParamID(c, "id")
	if err == nil {
		userID, err = respond.ParamID(c, "userId")
	}
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return 0, 0, false
	}
	return planID, userID, true
}
