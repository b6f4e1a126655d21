// Package oauthcb receives the OAuth provider redirect on a loopback
// listener. The remote auth service does the code exchange; what comes
// back here is the finished result encoded in query parameters (token,
// URL-encoded user JSON, or an error).
package oauthcb

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"codeberg.org/algorave/passage/internal/authstate"
	"codeberg.org/algorave/passage/internal/logger"
	"codeberg.org/algorave/passage/internal/model"
)

const callbackPath = "/oauth/callback"

// outcome of one redirect delivery
type Result struct {
	User  *model.User
	Token string
	Err   error
}

// one-shot loopback server waiting for the provider redirect
type Listener struct {
	port    int
	store   *authstate.Store
	srv     *http.Server
	ln      net.Listener
	results chan Result
}

// creates a callback listener bound to the given loopback port
func New(port int, store *authstate.Store) *Listener {
	return &Listener{
		port:    port,
		store:   store,
		results: make(chan Result, 1),
	}
}

// returns the redirect URI the auth service should send the browser to
func (l *Listener) RedirectURI() string {
	port := l.port

	// once bound, report the actual port (matters when configured as 0)
	if l.ln != nil {
		if addr, ok := l.ln.Addr().(*net.TCPAddr); ok {
			port = addr.Port
		}
	}

	return fmt.Sprintf("http://127.0.0.1:%d%s", port, callbackPath)
}

// delivers the outcome of the first redirect received
func (l *Listener) Result() <-chan Result {
	return l.results
}

// starts serving the callback route. Returns once the listener is
// bound, so the browser can be opened immediately after.
func (l *Listener) Start() error {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET(callbackPath, l.handleCallback)

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", l.port))
	if err != nil {
		return fmt.Errorf("failed to bind oauth callback listener: %w", err)
	}
	l.ln = ln

	l.srv = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := l.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.ErrorErr(err, "oauth callback listener stopped")
		}
	}()

	logger.Info("oauth callback listener started", "uri", l.RedirectURI())

	return nil
}

// stops the listener
func (l *Listener) Shutdown(ctx context.Context) error {
	if l.srv == nil {
		return nil
	}

	return l.srv.Shutdown(ctx)
}

// handles the provider redirect. An error parameter, a missing token,
// or an unparseable user all end in the error status; the session is
// only completed when every parameter checks out.
func (l *Listener) handleCallback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		l.reject(c, fmt.Errorf("provider returned error: %s", errParam), "Sign-in was cancelled or denied.")
		return
	}

	token := c.Query("token")
	if token == "" {
		l.reject(c, errors.New("redirect missing token parameter"), "Sign-in failed: the redirect was incomplete.")
		return
	}

	user, err := model.ParseOAuthUser(c.Query("user"))
	if err != nil {
		l.reject(c, err, "Sign-in failed: the redirect was incomplete.")
		return
	}

	if err := l.store.CompleteOAuth(user, token); err != nil {
		l.reject(c, err, "Sign-in failed.")
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, "<html><body><p>Signed in. You can return to the terminal.</p></body></html>")

	l.deliver(Result{User: user, Token: token})
}

func (l *Listener) reject(c *gin.Context, err error, page string) {
	logger.ErrorErr(err, "oauth callback rejected")
	l.store.RejectOAuth("OAuth sign-in failed")

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusBadRequest, "<html><body><p>%s</p></body></html>", page)

	l.deliver(Result{Err: err})
}

// only the first redirect counts; repeats (browser refresh) are dropped
func (l *Listener) deliver(r Result) {
	select {
	case l.results <- r:
	default:
	}
}
