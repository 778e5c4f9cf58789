package server

import (
	"crypto/subtle"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/swupdate/internal/docstore"
)

// Router serves the subset of the GitHub issues API that swupdate uses,
// backed by a docstore.
// Endpoints:
//
//	GET   {basePath}/repos/:owner/:repo/issues/:number
//	PATCH {basePath}/repos/:owner/:repo/issues/:number           body: {"body": "..."}
//	PUT   {basePath}/repos/:owner/:repo/issues/:number           body: {"body": "..."}
//	GET   {basePath}/repos/:owner/:repo/issues/:number/comments
//	POST  {basePath}/repos/:owner/:repo/issues/:number/comments  body: {"body": "..."}
//
// PATCH and comments require an existing issue; PUT provisions one.
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	store    docstore.Store
	basePath string
	token    string
	logger   *slog.Logger
}

// NewRouter constructs a Router. An empty token disables authentication.
func NewRouter(store docstore.Store, basePath, token string, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{store: store, basePath: sanitizeBase(basePath), token: token, logger: log.With("component", "server")}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	r.Register(g.Group(r.basePath))
	return g
}

// Register mounts the issue endpoints on group.
func (r *Router) Register(group *gin.RouterGroup) {
	issues := group.Group("/repos/:owner/:repo/issues/:number", r.authenticate)
	issues.GET("", r.handleGet)
	issues.PATCH("", r.handlePatch)
	issues.PUT("", r.handlePut)
	issues.GET("/comments", r.handleListComments)
	issues.POST("/comments", r.handleComment)
}

// NewServer binds addr and serves this router on it, over TLS when tlsCfg is
// set. Bind errors are returned; Addr of the result holds the bound address.
func NewServer(addr string, r *Router, tlsCfg *tls.Config) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		TLSConfig:         tlsCfg,
	}
	go func() {
		var err error
		if tlsCfg != nil {
			err = server.ServeTLS(ln, "", "")
		} else {
			err = server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("issue server stopped", "addr", server.Addr, "error", err)
		}
	}()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Message string `json:"message"`
}

type bodyReq struct {
	Body *string `json:"body"`
}

type issueResp struct {
	Number    int       `json:"number"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

type commentResp struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Router) authenticate(c *gin.Context) {
	if r.token == "" {
		c.Next()
		return
	}
	h := c.GetHeader("Authorization")
	var got string
	switch {
	case strings.HasPrefix(h, "Bearer "):
		got = strings.TrimPrefix(h, "Bearer ")
	case strings.HasPrefix(h, "token "):
		got = strings.TrimPrefix(h, "token ")
	}
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(r.token)) != 1 {
		writeJSON(c, http.StatusUnauthorized, errorResp{Message: "Bad credentials"})
		c.Abort()
		return
	}
	c.Next()
}

// key extracts the issue address from the path. It writes the error
// response itself and reports false on bad input.
func (r *Router) key(c *gin.Context) (docstore.Key, bool) {
	owner, repo := c.Param("owner"), c.Param("repo")
	if !isSafeName(owner) || !isSafeName(repo) {
		writeJSON(c, http.StatusBadRequest, errorResp{Message: "invalid repository name"})
		return docstore.Key{}, false
	}
	n, ok := parseIssueNumber(c.Param("number"))
	if !ok {
		writeJSON(c, http.StatusBadRequest, errorResp{Message: "invalid issue number"})
		return docstore.Key{}, false
	}
	return docstore.Key{Repo: owner + "/" + repo, Number: n}, true
}

func (r *Router) body(c *gin.Context) (string, bool) {
	var req bodyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Message: "invalid JSON: " + err.Error()})
		return "", false
	}
	if req.Body == nil {
		writeJSON(c, http.StatusUnprocessableEntity, errorResp{Message: "body is required"})
		return "", false
	}
	return *req.Body, true
}

func (r *Router) fail(c *gin.Context, k docstore.Key, err error) {
	if errors.Is(err, docstore.ErrNotFound) {
		writeJSON(c, http.StatusNotFound, errorResp{Message: "Not Found"})
		return
	}
	r.logger.Error("store operation failed", "issue", k.String(), "error", err)
	writeJSON(c, http.StatusInternalServerError, errorResp{Message: "internal error"})
}

func (r *Router) handleGet(c *gin.Context) {
	k, ok := r.key(c)
	if !ok {
		return
	}
	is, err := r.store.Get(c.Request.Context(), k)
	if err != nil {
		r.fail(c, k, err)
		return
	}
	writeJSON(c, http.StatusOK, issueResp{Number: k.Number, Body: is.Body, UpdatedAt: is.UpdatedAt})
}

func (r *Router) handlePatch(c *gin.Context) {
	k, ok := r.key(c)
	if !ok {
		return
	}
	body, ok := r.body(c)
	if !ok {
		return
	}
	is, err := r.store.Update(c.Request.Context(), k, body)
	if err != nil {
		r.fail(c, k, err)
		return
	}
	r.logger.Debug("issue body replaced", "issue", k.String(), "bytes", len(body))
	writeJSON(c, http.StatusOK, issueResp{Number: k.Number, Body: is.Body, UpdatedAt: is.UpdatedAt})
}

func (r *Router) handlePut(c *gin.Context) {
	k, ok := r.key(c)
	if !ok {
		return
	}
	body, ok := r.body(c)
	if !ok {
		return
	}
	is, err := r.store.Put(c.Request.Context(), k, body)
	if err != nil {
		r.fail(c, k, err)
		return
	}
	r.logger.Info("issue provisioned", "issue", k.String())
	writeJSON(c, http.StatusOK, issueResp{Number: k.Number, Body: is.Body, UpdatedAt: is.UpdatedAt})
}

func (r *Router) handleComment(c *gin.Context) {
	k, ok := r.key(c)
	if !ok {
		return
	}
	body, ok := r.body(c)
	if !ok {
		return
	}
	cm, err := r.store.AddComment(c.Request.Context(), k, body)
	if err != nil {
		r.fail(c, k, err)
		return
	}
	writeJSON(c, http.StatusCreated, commentResp{ID: cm.ID, Body: cm.Body, CreatedAt: cm.CreatedAt})
}

func (r *Router) handleListComments(c *gin.Context) {
	k, ok := r.key(c)
	if !ok {
		return
	}
	if _, err := r.store.Get(c.Request.Context(), k); err != nil {
		r.fail(c, k, err)
		return
	}
	cs, err := r.store.Comments(c.Request.Context(), k)
	if err != nil {
		r.fail(c, k, err)
		return
	}
	out := make([]commentResp, 0, len(cs))
	for _, cm := range cs {
		out = append(out, commentResp{ID: cm.ID, Body: cm.Body, CreatedAt: cm.CreatedAt})
	}
	writeJSON(c, http.StatusOK, out)
}
