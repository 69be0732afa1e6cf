package api

import (
	"net/http"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/gin-gonic/gin"

	ledgertypes "github.com/paw-chain/pawmarket/x/ledger/types"
)

// Ledger operation names for tracing and rejection accounting. They are not
// pausable market operations.
const (
	fnTransfer         = "transfer"
	fnRegisterProvider = "register_provider"
	fnAddStake         = "add_stake"
)

func (s *Server) handleGetBalance(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	var resp BalanceResponse
	err := s.app.Query(c.Request.Context(), func(ctx sdk.Context) error {
		resp = BalanceResponse{Address: addr.String(), Balance: s.app.LedgerKeeper.BalanceOf(ctx, addr)}
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetProvider returns the provider record with its reputation, slash
// history and the jobs its controller currently holds.
func (s *Server) handleGetProvider(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	var resp ProviderResponse
	err := s.app.Query(c.Request.Context(), func(ctx sdk.Context) error {
		provider, found := s.app.LedgerKeeper.GetProvider(ctx, addr)
		if !found {
			return ledgertypes.ErrProviderNotFound.Wrap(addr.String())
		}
		resp = ProviderResponse{
			Provider:     provider,
			Reputation:   s.app.LedgerKeeper.GetReputation(ctx, addr),
			DecayedScore: s.app.LedgerKeeper.DecayedScore(ctx, addr),
			SlashRecords: s.app.LedgerKeeper.SlashRecords(ctx, addr),
		}
		if controller, err := sdk.AccAddressFromBech32(provider.Controller); err == nil {
			resp.ClaimedJobIDs = s.app.MarketKeeper.ControllerClaims(ctx, controller)
		}
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetRating(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var (
		rating ledgertypes.Rating
		found  bool
	)
	err := s.app.Query(c.Request.Context(), func(ctx sdk.Context) error {
		rating, found = s.app.LedgerKeeper.GetRating(ctx, id)
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "rating not found"})
		return
	}
	c.JSON(http.StatusOK, rating)
}

func (s *Server) handleTransfer(c *gin.Context) {
	sender, ok := callerAddress(c)
	if !ok {
		return
	}
	var req TransferRequest
	if !bindJSON(c, &req) {
		return
	}
	recipient, err := sdk.AccAddressFromBech32(req.Recipient)
	if err != nil {
		badRequest(c, "Invalid recipient", err)
		return
	}
	err = s.app.Deliver(c.Request.Context(), fnTransfer, sender, func(ctx sdk.Context) error {
		return s.app.LedgerKeeper.Transfer(ctx, sender, recipient, intOrZero(req.Amount))
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Transfer complete"})
}

// handleRegisterProvider registers the caller as a provider. The controller
// defaults to the caller itself.
func (s *Server) handleRegisterProvider(c *gin.Context) {
	provider, ok := callerAddress(c)
	if !ok {
		return
	}
	var req RegisterProviderRequest
	if !bindJSON(c, &req) {
		return
	}
	var controller sdk.AccAddress
	if req.Controller != "" {
		var err error
		if controller, err = sdk.AccAddressFromBech32(req.Controller); err != nil {
			badRequest(c, "Invalid controller", err)
			return
		}
	}
	err := s.app.Deliver(c.Request.Context(), fnRegisterProvider, provider, func(ctx sdk.Context) error {
		return s.app.LedgerKeeper.RegisterProvider(ctx, provider, controller, intOrZero(req.Stake), req.SigningKey)
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, SuccessResponse{Success: true, Data: gin.H{"provider": provider.String()}})
}

func (s *Server) handleAddStake(c *gin.Context) {
	provider, ok := callerAddress(c)
	if !ok {
		return
	}
	var req AddStakeRequest
	if !bindJSON(c, &req) {
		return
	}
	err := s.app.Deliver(c.Request.Context(), fnAddStake, provider, func(ctx sdk.Context) error {
		return s.app.LedgerKeeper.AddStake(ctx, provider, intOrZero(req.Amount))
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Stake added"})
}
