package api

import (
	"net/http"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/gin-gonic/gin"

	"github.com/paw-chain/pawmarket/x/market/types"
)

const (
	fnGrantRole       = "grant_role"
	fnRevokeRole      = "revoke_role"
	fnSetCircuitLevel = "set_circuit_level"
	fnEmergencyPause  = "emergency_pause"
	fnUnpause         = "unpause"
	fnPauseFunction   = "pause_function"
	fnResumeFunction  = "resume_function"
	fnSlashProvider   = "slash_provider"
	fnUpdateParams    = "update_params"
)

// deliverAdmin runs an administrative call and acknowledges it.
func (s *Server) deliverAdmin(c *gin.Context, fn string, call func(ctx sdk.Context, caller sdk.AccAddress) error) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	err := s.app.Deliver(c.Request.Context(), fn, caller, func(ctx sdk.Context) error {
		return call(ctx, caller)
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: fn})
}

func parseRoleRequest(c *gin.Context) (types.Role, sdk.AccAddress, bool) {
	var req RoleRequest
	if !bindJSON(c, &req) {
		return "", nil, false
	}
	role, err := types.ParseRole(req.Role)
	if err != nil {
		writeError(c, err)
		return "", nil, false
	}
	addr, err := sdk.AccAddressFromBech32(req.Address)
	if err != nil {
		badRequest(c, "Invalid address", err)
		return "", nil, false
	}
	return role, addr, true
}

func (s *Server) handleGrantRole(c *gin.Context) {
	role, addr, ok := parseRoleRequest(c)
	if !ok {
		return
	}
	s.deliverAdmin(c, fnGrantRole, func(ctx sdk.Context, authority sdk.AccAddress) error {
		return s.app.MarketKeeper.GrantRole(ctx, authority, role, addr)
	})
}

func (s *Server) handleRevokeRole(c *gin.Context) {
	role, addr, ok := parseRoleRequest(c)
	if !ok {
		return
	}
	s.deliverAdmin(c, fnRevokeRole, func(ctx sdk.Context, authority sdk.AccAddress) error {
		return s.app.MarketKeeper.RevokeRole(ctx, authority, role, addr)
	})
}

func (s *Server) handleSetCircuitLevel(c *gin.Context) {
	var req CircuitLevelRequest
	if !bindJSON(c, &req) {
		return
	}
	level, err := types.ParseCircuitLevel(req.Level)
	if err != nil {
		badRequest(c, "Invalid level", err)
		return
	}
	s.deliverAdmin(c, fnSetCircuitLevel, func(ctx sdk.Context, guardian sdk.AccAddress) error {
		return s.app.MarketKeeper.SetCircuitLevel(ctx, guardian, level, req.Reason)
	})
}

func (s *Server) handleEmergencyPause(c *gin.Context) {
	var req ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	s.deliverAdmin(c, fnEmergencyPause, func(ctx sdk.Context, guardian sdk.AccAddress) error {
		return s.app.MarketKeeper.EmergencyPause(ctx, guardian, req.Reason)
	})
}

func (s *Server) handleUnpause(c *gin.Context) {
	var req ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	s.deliverAdmin(c, fnUnpause, func(ctx sdk.Context, guardian sdk.AccAddress) error {
		return s.app.MarketKeeper.Unpause(ctx, guardian, req.Reason)
	})
}

func (s *Server) handlePauseFunction(c *gin.Context) {
	var req ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	fn := c.Param("fn")
	s.deliverAdmin(c, fnPauseFunction, func(ctx sdk.Context, guardian sdk.AccAddress) error {
		return s.app.MarketKeeper.PauseFunction(ctx, guardian, fn, req.Reason)
	})
}

func (s *Server) handleResumeFunction(c *gin.Context) {
	fn := c.Param("fn")
	s.deliverAdmin(c, fnResumeFunction, func(ctx sdk.Context, guardian sdk.AccAddress) error {
		return s.app.MarketKeeper.ResumeFunction(ctx, guardian, fn)
	})
}

func (s *Server) handleSlashProvider(c *gin.Context) {
	authority, ok := callerAddress(c)
	if !ok {
		return
	}
	var req SlashRequest
	if !bindJSON(c, &req) {
		return
	}
	provider, err := sdk.AccAddressFromBech32(req.Provider)
	if err != nil {
		badRequest(c, "Invalid provider", err)
		return
	}
	var resp SlashResponse
	err = s.app.Deliver(c.Request.Context(), fnSlashProvider, authority, func(ctx sdk.Context) error {
		var err error
		resp.Slashed, err = s.app.MarketKeeper.SlashProvider(ctx, authority, provider, intOrZero(req.Amount), req.Reason)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleUpdateParams replaces the market parameters wholesale. The body is a
// complete parameter set, usually fetched from /api/market/params and edited.
func (s *Server) handleUpdateParams(c *gin.Context) {
	var params types.Params
	if !bindJSON(c, &params) {
		return
	}
	s.deliverAdmin(c, fnUpdateParams, func(ctx sdk.Context, authority sdk.AccAddress) error {
		return s.app.MarketKeeper.UpdateParams(ctx, authority, params)
	})
}
