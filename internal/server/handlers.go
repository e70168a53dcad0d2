package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rolerag/internal/domain"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

type loginResponse struct {
	Message string `json:"message"`
	Role    string `json:"role"`
}

type chatUser struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type chatRequest struct {
	User    chatUser `json:"user"`
	Message string   `json:"message"`
}

type chatResponse struct {
	Response     string   `json:"response"`
	Role         string   `json:"role"`
	Scope        string   `json:"scope"`
	UsedFallback bool     `json:"used_fallback"`
	Sources      []string `json:"sources"`
}

type healthResponse struct {
	Status string `json:"status"`
	Chunks int    `json:"chunks"`
}

var errNoCredentials = errors.New("no credentials")

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Basic")
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Detail: "Invalid credentials"})
}

// authenticate checks the request's Basic credentials.
func (s *Server) authenticate(c *gin.Context) (domain.Principal, error) {
	username, password, ok := c.Request.BasicAuth()
	if !ok {
		return domain.Principal{}, errNoCredentials
	}
	return s.auth.Authenticate(c.Request.Context(), username, password)
}

func (s *Server) handleLogin(c *gin.Context) {
	p, err := s.authenticate(c)
	if err != nil {
		unauthorized(c)
		return
	}
	c.JSON(http.StatusOK, loginResponse{Message: "Welcome " + p.Username + "!", Role: string(p.Role)})
}

func (s *Server) handleTest(c *gin.Context) {
	p, err := s.authenticate(c)
	if err != nil {
		unauthorized(c)
		return
	}
	c.JSON(http.StatusOK, loginResponse{Message: "Hello " + p.Username + "! You can now chat.", Role: string(p.Role)})
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Detail: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Detail: "message is required"})
		return
	}

	role := req.User.Role
	p, err := s.authenticate(c)
	switch {
	case err == nil:
		role = string(p.Role)
	case errors.Is(err, errNoCredentials) && s.opts.TrustBodyRole:
		// body role stands
	default:
		unauthorized(c)
		return
	}

	reply := s.chat.Reply(c.Request.Context(), role, req.Message)
	if reply.Err != nil {
		requestLoggerFor(s.logger, c).Warn("chat reply carries error", "role", reply.Role, "error", reply.Err)
	}

	sources := reply.Sources
	if sources == nil {
		sources = []string{}
	}
	c.JSON(http.StatusOK, chatResponse{
		Response:     reply.Response,
		Role:         string(reply.Role),
		Scope:        reply.Scope,
		UsedFallback: reply.UsedFallback,
		Sources:      sources,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "ok", Chunks: s.index.Stats().Chunks})
}
