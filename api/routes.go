package api

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	{
		// Market routes (public read, protected write)
		market := api.Group("/market")
		{
			market.GET("/jobs", s.handleListJobs)
			market.GET("/jobs/:id", s.handleGetJob)
			market.GET("/jobs/:id/status", s.handleGetJobStatus)
			market.GET("/jobs/:id/proof", s.handleGetProof)
			market.GET("/jobs/:id/proofs", s.handleGetProofHistory)
			market.GET("/jobs/:id/challenges", s.handleGetJobChallenges)
			market.GET("/jobs/:id/dispute", s.handleGetDispute)
			market.GET("/jobs/:id/audit", s.handleGetJobAudit)
			market.GET("/challenges/:id", s.handleGetChallenge)
			market.GET("/circuit", s.handleGetCircuitStatus)
			market.GET("/audit", s.handleGetAuditTrail)
			market.GET("/audit/reconcile", s.handleReconcile)
			market.GET("/params", s.handleGetParams)
			market.GET("/roles", s.handleGetRoles)

			marketProtected := market.Group("")
			marketProtected.Use(s.AuthMiddleware())
			{
				marketProtected.POST("/jobs", s.handlePostJob)
				marketProtected.POST("/jobs/:id/claim", s.handleClaimJob)
				marketProtected.POST("/jobs/:id/proof", s.handleSubmitProof)
				marketProtected.POST("/jobs/:id/verify", s.handleVerifyProof)
				marketProtected.POST("/proofs/verify", s.handleBatchVerify)
				marketProtected.POST("/jobs/:id/challenges", s.handleChallengeProof)
				marketProtected.POST("/challenges/:id/resolve", s.handleResolveChallenge)
				marketProtected.POST("/challenges/:id/expire", s.handleExpireChallenge)
				marketProtected.POST("/jobs/:id/dispute", s.handleDisputeResult)
				marketProtected.POST("/jobs/:id/dispute/resolve", s.handleResolveDispute)
				marketProtected.POST("/jobs/:id/fail", s.handleMarkJobFailed)
				marketProtected.POST("/jobs/:id/expire", s.handleExpireJob)
				marketProtected.POST("/jobs/:id/reclaim", s.handleClaimAbandonedPayment)
				marketProtected.POST("/jobs/:id/settle", s.handleSettleJob)
				marketProtected.POST("/jobs/:id/rating", s.handleRateProvider)
			}
		}

		// Ledger routes (public read, protected write)
		ledger := api.Group("/ledger")
		{
			ledger.GET("/balances/:address", s.handleGetBalance)
			ledger.GET("/providers/:address", s.handleGetProvider)
			ledger.GET("/ratings/:id", s.handleGetRating)

			ledgerProtected := ledger.Group("")
			ledgerProtected.Use(s.AuthMiddleware())
			{
				ledgerProtected.POST("/transfer", s.handleTransfer)
				ledgerProtected.POST("/providers", s.handleRegisterProvider)
				ledgerProtected.POST("/providers/stake", s.handleAddStake)
			}
		}

		// Administrative routes. The market checks the caller's role; the
		// token only proves which address is calling.
		admin := api.Group("/admin")
		admin.Use(s.AuthMiddleware())
		{
			admin.POST("/roles", s.handleGrantRole)
			admin.DELETE("/roles", s.handleRevokeRole)
			admin.POST("/circuit", s.handleSetCircuitLevel)
			admin.POST("/pause", s.handleEmergencyPause)
			admin.POST("/unpause", s.handleUnpause)
			admin.POST("/functions/:fn/pause", s.handlePauseFunction)
			admin.POST("/functions/:fn/resume", s.handleResumeFunction)
			admin.POST("/slash", s.handleSlashProvider)
			admin.PUT("/params", s.handleUpdateParams)
		}
	}
}
