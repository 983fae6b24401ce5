package reaction

import (
	"github.com/gin-gonic/gin"

	"github.com/campusmatch/engine/internal/app"
	"github.com/campusmatch/engine/internal/auth"
	svcErr "github.com/campusmatch/engine/internal/errors"
	"github.com/campusmatch/engine/internal/server/respond"
)

// Registrar ties the reaction and match endpoints into the HTTP router
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

func (r *Registrar) Register(rg *gin.RouterGroup) {
	h := &handler{svc: NewService(r.appCtx), appCtx: r.appCtx}
	rg.POST("/likes", h.submit)
	rg.GET("/likes/received", h.listReceived)
	rg.GET("/likes/received/count", h.countReceived)
	rg.GET("/likes/quota", h.quota)
	rg.GET("/matches", h.listMatches)
}

type handler struct {
	svc    *Service
	appCtx *app.AppContext
}

func (h *handler) submit(c *gin.Context) {
	var in SubmitInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Error(c, h.appCtx.Logger, svcErr.InvalidArgument("malformed body"))
		return
	}
	res, err := h.svc.Submit(c.Request.Context(), auth.UserID(c), in)
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	respond.OK(c, res)
}

func (h *handler) listReceived(c *gin.Context) {
	token, limit, err := respond.Page(c)
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	likers, next, err := h.svc.ListReceived(c.Request.Context(), auth.UserID(c), token, limit)
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	respond.OK(c, gin.H{"likes": likers, "nextCursor": next})
}

func (h *handler) countReceived(c *gin.Context) {
	n, err := h.svc.CountReceived(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	respond.OK(c, gin.H{"count": n})
}

func (h *handler) quota(c *gin.Context) {
	q, err := h.svc.Quota(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	respond.OK(c, q)
}

func (h *handler) listMatches(c *gin.Context) {
	matches, err := h.svc.ListMatches(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respond.Error(c, h.appCtx.Logger, err)
		return
	}
	respond.OK(c, gin.H{"matches": matches})
}
