package block

import (
	"github.com/gin-gonic/gin"

	"github.com/campusmatch/engine/internal/app"
	"github.com/campusmatch/engine/internal/auth"
	svcErr "github.com/campusmatch/engine/internal/errors"
	"github.com/campusmatch/engine/internal/server/respond"
)

// Registrar ties the block/report endpoints into the HTTP router
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

func (r *Registrar) Register(rg *gin.RouterGroup) {
	h := &handler{svc: NewService(r.appCtx), appCtx: r.appCtx}
	rg.POST("/blocks", h.block)
	rg.DELETE("/blocks/:userId", h.unblock)
	rg.POST("/reports", h.report)
}

type handler struct {
	svc    *Service
	appCtx *app.AppContext
}

type blockRequest struct {
	UserID uint64 `json:"userId"`
}

func (h *handler) block(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == 0 {
		respond.Error(c, h.appCtx.Logger, svcErr.InvalidArgument("userId is required"))
		return
	}
	if err := h.svc.Block(c.Request.Context(), auth.UserID(c), req.UserID); err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	respond.OK(c, gin.H{"success": true})
}

func (h *handler) unblock(c *gin.Context) {
	target, err := respond.ParamID(c, "userId")
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	if err := h.svc.Unblock(c.Request.Context(), auth.UserID(c), target); err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	respond.OK(c, gin.H{"success": true})
}

func (h *handler) report(c *gin.Context) {
	var in ReportInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Error(c, h.appCtx.Logger, svcErr.InvalidArgument("malformed body"))
		return
	}
	if err := h.svc.Report(c.Request.Context(), auth.UserID(c), in); err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	respond.Created(c, gin.H{"success": true})
}
