package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/query"
	"github.com/gin-gonic/gin"

	ledgertypes "github.com/paw-chain/pawmarket/x/ledger/types"
	"github.com/paw-chain/pawmarket/x/market/types"
)

var (
	notFoundErrors = []error{
		types.ErrJobNotFound, types.ErrProofNotFound, types.ErrChallengeNotFound,
		types.ErrDisputeNotFound, ledgertypes.ErrProviderNotFound, ledgertypes.ErrEscrowNotFound,
	}
	forbiddenErrors = []error{
		types.ErrUnauthorized, types.ErrNotAssigned, types.ErrNotBuyer, types.ErrSelfDealing,
		types.ErrSybilReattempt,
	}
	throttledErrors = []error{
		types.ErrRateLimitExceeded, types.ErrCooldownActive,
	}
	unavailableErrors = []error{
		types.ErrCircuitPaused, types.ErrFunctionPaused,
	}
	badRequestErrors = []error{
		types.ErrInvalidJob, types.ErrInvalidAmount, types.ErrInvalidDeadline, types.ErrInvalidParams,
		types.ErrInvalidProof, types.ErrBatchTooLarge, types.ErrInvalidRating, types.ErrInvalidRole,
		types.ErrUnknownFunction, types.ErrLevelSkip, ledgertypes.ErrInvalidAmount,
		ledgertypes.ErrInvalidProvider, ledgertypes.ErrInvalidRating,
	}
)

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// httpStatus maps a market rejection onto an HTTP status. Registered errors
// that are not input or permission problems are state conflicts.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case isAny(err, notFoundErrors):
		return http.StatusNotFound
	case isAny(err, forbiddenErrors):
		return http.StatusForbidden
	case isAny(err, throttledErrors):
		return http.StatusTooManyRequests
	case isAny(err, unavailableErrors):
		return http.StatusServiceUnavailable
	case isAny(err, badRequestErrors):
		return http.StatusBadRequest
	}
	if codespace, _, _ := errorsmod.ABCIInfo(err, false); codespace != errorsmod.UndefinedCodespace {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError renders err with its stable codespace/code pair and, when the
// market knows one, a recovery suggestion.
func writeError(c *gin.Context, err error) {
	status := httpStatus(err)
	resp := ErrorResponse{Error: err.Error()}
	if code := errorCode(err); code != "" {
		resp.Code = code
		resp.Suggestion = types.GetRecoverySuggestion(err)
	} else if status == http.StatusInternalServerError {
		resp.Error = "Internal server error"
		resp.Details = err.Error()
	}
	c.AbortWithStatusJSON(status, resp)
}

// errorCode is the codespace/code pair of a registered error, or empty.
func errorCode(err error) string {
	codespace, code, _ := errorsmod.ABCIInfo(err, false)
	if codespace == errorsmod.UndefinedCodespace {
		return ""
	}
	return fmt.Sprintf("%s/%d", codespace, code)
}

func badRequest(c *gin.Context, msg string, err error) {
	resp := ErrorResponse{Error: msg, Code: "INVALID_REQUEST"}
	if err != nil {
		resp.Details = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, resp)
}

// bindJSON decodes the request body, writing a 400 on failure.
func bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		badRequest(c, "Invalid request", err)
		return false
	}
	return true
}

func uintParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, fmt.Sprintf("Invalid %s", name), err)
		return 0, false
	}
	return id, true
}

func addressParam(c *gin.Context, name string) (sdk.AccAddress, bool) {
	addr, err := sdk.AccAddressFromBech32(c.Param(name))
	if err != nil {
		badRequest(c, fmt.Sprintf("Invalid %s", name), err)
		return nil, false
	}
	return addr, true
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// pageRequest reads ?limit=&key=&count_total= into a cursor page request.
func pageRequest(c *gin.Context) (*query.PageRequest, bool) {
	page := &query.PageRequest{Limit: defaultPageLimit}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || limit == 0 {
			badRequest(c, "Invalid limit", err)
			return nil, false
		}
		page.Limit = min(limit, maxPageLimit)
	}
	if raw := c.Query("key"); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			badRequest(c, "Invalid page key", err)
			return nil, false
		}
		page.Key = key
	}
	page.CountTotal = c.Query("count_total") == "true"
	return page, true
}
