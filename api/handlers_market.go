package api

import (
	"context"
	"net/http"
	"strconv"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/query"
	"github.com/gin-gonic/gin"

	"github.com/paw-chain/pawmarket/x/market/types"
)

func intOrZero(v math.Int) math.Int {
	if v.IsNil() {
		return math.ZeroInt()
	}
	return v
}

// ==================== Reads ====================

// handleListJobs lists active jobs, or jobs in ?status= when given.
func (s *Server) handleListJobs(c *gin.Context) {
	page, ok := pageRequest(c)
	if !ok {
		return
	}
	var filter *types.JobStatus
	if raw := c.Query("status"); raw != "" {
		status, err := types.ParseJobStatus(raw)
		if err != nil {
			badRequest(c, "Invalid status", err)
			return
		}
		filter = &status
	}

	var resp JobListResponse
	err := s.app.Query(c.Request.Context(), func(ctx sdk.Context) error {
		var (
			jobs    []types.Job
			pageRes *query.PageResponse
			err     error
		)
		if filter == nil {
			jobs, pageRes, err = s.app.MarketKeeper.ActiveJobs(ctx, page)
		} else {
			jobs, pageRes, err = s.app.MarketKeeper.JobsByStatus(ctx, *filter, page)
		}
		if err != nil {
			return err
		}
		resp.Jobs = jobs
		if pageRes != nil {
			resp.Pagination = PageResponse{NextKey: pageRes.NextKey, Total: pageRes.Total}
		}
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetJob(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var job types.Job
	err := s.app.Query(c.Request.Context(), func(ctx sdk.Context) error {
		var err error
		job, err = s.app.MarketKeeper.GetJob(ctx, id)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleGetJobStatus(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var status types.JobStatus
	err := s.app.Query(c.Request.Context(), func(ctx sdk.Context) error {
		var err error
		status, err = s.app.MarketKeeper.JobStatus(ctx, id)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, JobStatusResponse{JobID: id, Status: status.String()})
}

func (s *Server) handleGetProof(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var proof types.ProofRecord
	err := s.app.Query(c.Request.Context(), func(ctx sdk.Context) error {
		var err error
		proof, err = s.app.MarketKeeper.GetProof(ctx, id)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, proof)
}

func (s *Server) handleGetProofHistory(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var history []types.ProofRecord
	err := s.app.Query(c.Request.Context(), func(ctx sdk.Context) error {
		var err error
		history, err = s.app.MarketKeeper.ProofHistory(ctx, id)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": id, "proofs": history})
}

func (s *Server) handleGetJobChallenges(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var challenges []types.Challenge
	err := s.app.Query(c.Request.Context(), func(ctx sdk.Context) error {
		var err error
		challenges, err = s.app.MarketKeeper.ChallengesByJob(ctx, id)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": id, "challenges": challenges})
}

func (s *Server) handleGetChallenge(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var challenge types.Challenge
	err := s.app.Query(c.Request.Context(), func(ctx sdk.Context) error {
		var err error
		challenge, err = s.app.MarketKeeper.GetChallenge(ctx, id)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, challenge)
}

func (s *Server) handleGetDispute(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var dispute types.Dispute
	err := s.app.Query(c.Request.Context(), func(ctx sdk.Context) error {
		var err error
		dispute, err = s.app.MarketKeeper.GetDispute(ctx, id)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}

func (s *Server) handleGetJobAudit(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var records []types.AuditRecord
	err := s.app.Query(c.Request.Context(), func(ctx sdk.Context) error {
		var err error
		records, err = s.app.MarketKeeper.AuditTrailForJob(ctx, id)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": id, "records": records})
}

// handleGetAuditTrail pages through the audit trail by sequence number.
func (s *Server) handleGetAuditTrail(c *gin.Context) {
	from, limit := uint64(1), uint64(defaultPageLimit)
	if raw := c.Query("from"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			badRequest(c, "Invalid from", err)
			return
		}
		from = v
	}
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || v == 0 {
			badRequest(c, "Invalid limit", err)
			return
		}
		limit = min(v, maxPageLimit)
	}

	var records []types.AuditRecord
	err := s.app.Query(c.Request.Context(), func(ctx sdk.Context) error {
		var err error
		records, err = s.app.MarketKeeper.AuditTrail(ctx, from, limit)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "records": records})
}

// handleReconcile replays the audit trail against stored job statuses.
func (s *Server) handleReconcile(c *gin.Context) {
	var rec types.Reconciliation
	err := s.app.Query(c.Request.Context(), func(ctx sdk.Context) error {
		var err error
		rec, err = s.app.MarketKeeper.ReplayAuditTrail(ctx)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if len(rec.Mismatches) > 0 {
		status = http.StatusConflict
	}
	c.JSON(status, rec)
}

func (s *Server) handleGetCircuitStatus(c *gin.Context) {
	var status types.CircuitStatus
	err := s.app.Query(c.Request.Context(), func(ctx sdk.Context) error {
		var err error
		status, err = s.app.MarketKeeper.CircuitBreakerStatus(ctx)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleGetParams(c *gin.Context) {
	var params types.Params
	err := s.app.Query(c.Request.Context(), func(ctx sdk.Context) error {
		var err error
		params, err = s.app.MarketKeeper.GetParams(ctx)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, params)
}

func (s *Server) handleGetRoles(c *gin.Context) {
	var grants []types.RoleGrant
	err := s.app.Query(c.Request.Context(), func(ctx sdk.Context) error {
		grants = s.app.MarketKeeper.Roles(ctx)
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": grants})
}

// ==================== Job lifecycle ====================

func (s *Server) handlePostJob(c *gin.Context) {
	buyer, ok := callerAddress(c)
	if !ok {
		return
	}
	var req PostJobRequest
	if !bindJSON(c, &req) {
		return
	}

	var id uint64
	err := s.app.Deliver(c.Request.Context(), types.FnPostJob, buyer, func(ctx sdk.Context) error {
		var err error
		id, err = s.app.MarketKeeper.PostJob(ctx, buyer, types.PostJobRequest{
			Capability:     req.Capability,
			InputRef:       req.InputRef,
			PaymentCeiling: intOrZero(req.PaymentCeiling),
			Deadline:       req.Deadline,
			Transferred:    intOrZero(req.Transferred),
		})
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, PostJobResponse{JobID: id})
}

// deliverJobCall runs a job-scoped call whose only result is success.
func (s *Server) deliverJobCall(c *gin.Context, fn string, call func(ctx context.Context, caller sdk.AccAddress, jobID uint64) error) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	err := s.app.Deliver(c.Request.Context(), fn, caller, func(ctx sdk.Context) error {
		return call(ctx, caller, id)
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: gin.H{"job_id": id}})
}

func (s *Server) handleClaimJob(c *gin.Context) {
	s.deliverJobCall(c, types.FnClaimJob, s.app.MarketKeeper.ClaimJob)
}

func (s *Server) handleSubmitProof(c *gin.Context) {
	var req SubmitProofRequest
	if !bindJSON(c, &req) {
		return
	}
	s.deliverJobCall(c, types.FnSubmitProof, func(ctx context.Context, provider sdk.AccAddress, id uint64) error {
		return s.app.MarketKeeper.SubmitProof(ctx, provider, id, types.ProofSubmission{
			Payload:     req.Payload,
			Commitments: req.Commitments,
			ResultRef:   req.ResultRef,
		})
	})
}

// handleVerifyProof reports an invalid proof as a normal result: the job's
// failure and the provider's penalty are committed either way.
func (s *Server) handleVerifyProof(c *gin.Context) {
	verifier, ok := callerAddress(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var valid bool
	err := s.app.Deliver(c.Request.Context(), types.FnVerifyProof, verifier, func(ctx sdk.Context) error {
		var err error
		valid, err = s.app.MarketKeeper.VerifyProof(ctx, verifier, id)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, VerifyProofResponse{JobID: id, Valid: valid})
}

func (s *Server) handleBatchVerify(c *gin.Context) {
	verifier, ok := callerAddress(c)
	if !ok {
		return
	}
	var req BatchVerifyRequest
	if !bindJSON(c, &req) {
		return
	}
	var results []types.VerifyResult
	err := s.app.Deliver(c.Request.Context(), types.FnVerifyProof, verifier, func(ctx sdk.Context) error {
		var err error
		results, err = s.app.MarketKeeper.BatchVerifyProofs(ctx, verifier, req.JobIDs)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	resp := BatchVerifyResponse{Results: make([]BatchVerifyItem, len(results))}
	for i, r := range results {
		item := BatchVerifyItem{JobID: r.JobID, Valid: r.Valid}
		if r.Rejected() {
			item.Error, item.Code = r.Err.Error(), errorCode(r.Err)
		}
		resp.Results[i] = item
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleMarkJobFailed(c *gin.Context) {
	var req ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	s.deliverJobCall(c, types.FnMarkJobFailed, func(ctx context.Context, caller sdk.AccAddress, id uint64) error {
		return s.app.MarketKeeper.MarkJobFailed(ctx, caller, id, req.Reason)
	})
}

func (s *Server) handleExpireJob(c *gin.Context) {
	s.deliverJobCall(c, types.FnExpireJob, s.app.MarketKeeper.ExpireJob)
}

func (s *Server) handleClaimAbandonedPayment(c *gin.Context) {
	s.deliverJobCall(c, types.FnClaimAbandonedPayment, s.app.MarketKeeper.ClaimAbandonedPayment)
}

func (s *Server) handleSettleJob(c *gin.Context) {
	s.deliverJobCall(c, types.FnSettleJob, s.app.MarketKeeper.SettleJob)
}

func (s *Server) handleRateProvider(c *gin.Context) {
	var req RateProviderRequest
	if !bindJSON(c, &req) {
		return
	}
	s.deliverJobCall(c, types.FnRateProvider, func(ctx context.Context, buyer sdk.AccAddress, id uint64) error {
		return s.app.MarketKeeper.RateProvider(ctx, buyer, id, req.Stars, req.Feedback)
	})
}

// ==================== Challenges and disputes ====================

func (s *Server) handleChallengeProof(c *gin.Context) {
	challenger, ok := callerAddress(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req ChallengeRequest
	if !bindJSON(c, &req) {
		return
	}
	var challengeID uint64
	err := s.app.Deliver(c.Request.Context(), types.FnChallengeProof, challenger, func(ctx sdk.Context) error {
		var err error
		challengeID, err = s.app.MarketKeeper.ChallengeProof(ctx, challenger, id, req.EvidenceRef, intOrZero(req.Stake))
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ChallengeResponse{ChallengeID: challengeID})
}

func (s *Server) handleResolveChallenge(c *gin.Context) {
	var req ResolveChallengeRequest
	if !bindJSON(c, &req) {
		return
	}
	s.deliverChallengeCall(c, types.FnResolveChallenge, func(ctx context.Context, resolver sdk.AccAddress, id uint64) error {
		return s.app.MarketKeeper.ResolveChallenge(ctx, resolver, id, req.Upheld)
	})
}

func (s *Server) handleExpireChallenge(c *gin.Context) {
	s.deliverChallengeCall(c, types.FnExpireChallenge, s.app.MarketKeeper.ExpireChallenge)
}

func (s *Server) deliverChallengeCall(c *gin.Context, fn string, call func(ctx context.Context, caller sdk.AccAddress, challengeID uint64) error) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	err := s.app.Deliver(c.Request.Context(), fn, caller, func(ctx sdk.Context) error {
		return call(ctx, caller, id)
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: gin.H{"challenge_id": id}})
}

func (s *Server) handleDisputeResult(c *gin.Context) {
	var req ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	s.deliverJobCall(c, types.FnDisputeResult, func(ctx context.Context, buyer sdk.AccAddress, id uint64) error {
		return s.app.MarketKeeper.DisputeResult(ctx, buyer, id, req.Reason)
	})
}

func (s *Server) handleResolveDispute(c *gin.Context) {
	var req ResolveDisputeRequest
	if !bindJSON(c, &req) {
		return
	}
	s.deliverJobCall(c, types.FnResolveDispute, func(ctx context.Context, resolver sdk.AccAddress, id uint64) error {
		return s.app.MarketKeeper.ResolveDispute(ctx, resolver, id, req.FavorBuyer)
	})
}
