package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cleancoindev/zaidan-dealer-client/internal/service"
)

type AllowanceHandler struct {
	allowances *service.AllowanceManager
}

func NewAllowanceHandler(allowances *service.AllowanceManager) *AllowanceHandler {
	return &AllowanceHandler{allowances: allowances}
}

func (h *AllowanceHandler) Get(c *gin.Context) {
	state, err := h.allowances.HasAllowance(c.Request.Context(), c.Param("asset"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// Set approves the maximum allowance and answers once the approval is mined.
func (h *AllowanceHandler) Set(c *gin.Context) {
	conf, err := h.allowances.SetAllowance(c.Request.Context(), c.Param("asset"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, conf)
}
