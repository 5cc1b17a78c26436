package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/roach88/taskmarket/internal/domain"
	"github.com/roach88/taskmarket/internal/tasks"
	"github.com/roach88/taskmarket/internal/users"
)

// Accounts

type signupRequest struct {
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Password       string          `json:"password"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      domain.User `json:"user"`
}

func (s *Server) handleSignup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	u, err := s.market.Users.Signup(c.Request.Context(), users.SignupInput{
		Name:           req.Name,
		Email:          req.Email,
		Password:       req.Password,
		InitialBalance: req.InitialBalance,
	})
	if err != nil {
		fail(c, err)
		return
	}
	s.respondWithToken(c, http.StatusCreated, u)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	u, err := s.market.Users.Authenticate(req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	s.respondWithToken(c, http.StatusOK, u)
}

func (s *Server) respondWithToken(c *gin.Context, status int, u domain.User) {
	token, expires, err := s.issueToken(u.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(status, tokenResponse{Token: token, ExpiresAt: expires, User: u.Public()})
}

func (s *Server) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c).Public())
}

type profileRequest struct {
	Name          *string `json:"name"`
	WalletAddress *string `json:"wallet_address"`
}

func (s *Server) handleUpdateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	u, err := s.market.Users.UpdateProfile(c.Request.Context(), currentUser(c).ID, users.ProfilePatch{
		Name:          req.Name,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u.Public())
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleDeposit(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	u, err := s.market.Users.Deposit(c.Request.Context(), currentUser(c).ID, req.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u.Public())
}

func (s *Server) handlePayments(c *gin.Context) {
	c.JSON(http.StatusOK, s.market.Ledger.History(currentUser(c).ID))
}

func (s *Server) handleSummary(c *gin.Context) {
	summary, err := s.market.Ledger.Summary(currentUser(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Tasks

func (s *Server) handleListTasks(c *gin.Context) {
	f := tasks.Filter{Status: domain.Status(c.Query("status"))}
	if f.Status != "" && !f.Status.Valid() {
		fail(c, fmt.Errorf("%w: unknown status %q", tasks.ErrInvalidTask, f.Status))
		return
	}

	me := currentUser(c)
	switch c.Query("mine") {
	case "":
	case "published":
		f.PublisherID = me.ID
	case "occupied":
		f.OccupierID = me.ID
	default:
		fail(c, fmt.Errorf("%w: mine must be published or occupied", tasks.ErrInvalidTask))
		return
	}

	c.JSON(http.StatusOK, s.market.Tasks.List(f))
}

type createTaskRequest struct {
	Title       string              `json:"title"`
	Summary     string              `json:"summary"`
	Description string              `json:"description"`
	Files       []domain.Attachment `json:"files"`
	Deadline    time.Time           `json:"deadline"`
	Reward      decimal.Decimal     `json:"reward"`
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	t, err := s.market.Tasks.Create(c.Request.Context(), tasks.NewTask{
		Title:       req.Title,
		Summary:     req.Summary,
		Description: req.Description,
		Files:       req.Files,
		Publisher:   currentUser(c).Party(),
		Deadline:    req.Deadline,
		Reward:      req.Reward,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) handleGetTask(c *gin.Context) {
	t, err := s.market.Tasks.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type updateTaskRequest struct {
	Title       *string              `json:"title"`
	Summary     *string              `json:"summary"`
	Description *string              `json:"description"`
	Deadline    *time.Time           `json:"deadline"`
	Files       *[]domain.Attachment `json:"files"`
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	t, err := s.market.UpdateTask(c.Request.Context(), c.Param("id"), currentUser(c).ID, tasks.Patch{
		Title:       req.Title,
		Summary:     req.Summary,
		Description: req.Description,
		Deadline:    req.Deadline,
		Files:       req.Files,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.market.DeleteTask(c.Request.Context(), c.Param("id"), currentUser(c).ID); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleTaskTransactions(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.market.Tasks.Get(id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.market.Ledger.ForTask(id))
}

// Lifecycle

func (s *Server) handleClaim(c *gin.Context) {
	t, err := s.market.Tasks.Claim(c.Request.Context(), c.Param("id"), currentUser(c).Party())
	respondTask(c, t, err)
}

func (s *Server) handleComplete(c *gin.Context) {
	t, err := s.market.Tasks.MarkComplete(c.Request.Context(), c.Param("id"), currentUser(c).ID)
	respondTask(c, t, err)
}

func (s *Server) handleConfirm(c *gin.Context) {
	t, err := s.market.ConfirmCompletion(c.Request.Context(), c.Param("id"), currentUser(c).ID)
	respondTask(c, t, err)
}

func (s *Server) handleRevise(c *gin.Context) {
	t, err := s.market.Tasks.RequestRevision(c.Request.Context(), c.Param("id"), currentUser(c).ID)
	respondTask(c, t, err)
}

// Threads

type entryRequest struct {
	Text  string              `json:"text"`
	Files []domain.Attachment `json:"files"`
}

func (s *Server) handleReport(c *gin.Context) {
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := s.market.Tasks.AddReport(c.Request.Context(), c.Param("id"), currentUser(c).Party(), req.Text, req.Files)
	respondTask(c, t, err)
}

func (s *Server) handleChallenge(c *gin.Context) {
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := s.market.Tasks.AddChallenge(c.Request.Context(), c.Param("id"), currentUser(c).Party(), req.Text)
	respondTask(c, t, err)
}

func (s *Server) handleStatusUpdate(c *gin.Context) {
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := s.market.PostStatusUpdate(c.Request.Context(), c.Param("id"), currentUser(c).ID, req.Text, req.Files)
	respondTask(c, t, err)
}

// Rewards

func (s *Server) handleAddReward(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := s.market.Ledger.AddReward(c.Request.Context(), c.Param("id"), currentUser(c).ID, req.Amount)
	respondTask(c, t, err)
}

func (s *Server) handlePay(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := s.market.Ledger.PayReward(c.Request.Context(), c.Param("id"), currentUser(c).ID, req.Amount)
	respondTask(c, t, err)
}

func (s *Server) handleConfirmPayment(c *gin.Context) {
	t, err := s.market.Ledger.ConfirmPayment(c.Request.Context(), c.Param("id"), currentUser(c).ID)
	respondTask(c, t, err)
}

func respondTask(c *gin.Context, t domain.Task, err error) {
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
