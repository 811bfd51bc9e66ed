package server

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/boergens/spotify-shokz-sync/internal/shared"
)

// CallbackResult carries the authorization code captured from the redirect.
type CallbackResult struct {
	Code string
	err  error
}

func (r CallbackResult) Error() error {
	return r.err
}

// CallbackHandler serves the OAuth2 redirect endpoint of the authorization
// code flow. It validates the state parameter and hands the raw authorization
// code back through [CallbackHandler.Result]; exchanging the code for tokens
// stays with the catalog client, which owns token persistence.
type CallbackHandler struct {
	state      string
	path       string
	resultChan chan CallbackResult
	once       sync.Once
	mu         sync.Mutex
	done       bool
}

// NewCallbackHandler creates a handler serving the given redirect path. The
// state token must be unguessable; any callback that does not echo it is
// rejected.
func NewCallbackHandler(state, path string) *CallbackHandler {
	if path == "" {
		path = "/callback"
	}
	return &CallbackHandler{
		state:      state,
		path:       path,
		resultChan: make(chan CallbackResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *CallbackHandler) Routes() []string {
	return []string{h.path}
}

// ServeHTTP handles the redirect request. Only the first callback is
// processed; replays get a 400.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.done = true
	h.mu.Unlock()

	if state := r.URL.Query().Get("state"); state != h.state {
		h.send(CallbackResult{err: fmt.Errorf("invalid state parameter")})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		errParam := r.URL.Query().Get("error")
		errDesc := r.URL.Query().Get("error_description")
		h.send(CallbackResult{err: fmt.Errorf("%w: %s - %s", shared.ErrAuthFailed, errParam, errDesc)})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	h.send(CallbackResult{Code: code})

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, successPage)
}

// send delivers the result exactly once, then closes the channel.
func (h *CallbackHandler) send(result CallbackResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the channel that receives the single flow outcome.
func (h *CallbackHandler) Result() <-chan CallbackResult {
	return h.resultChan
}

const successPage = `
<!DOCTYPE html>
<html>
<head>
    <title>Authorization Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ Authorization Successful</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`
