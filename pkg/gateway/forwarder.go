package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// connectTimeout bounds dialing and receiving the first byte of an
// upstream response; idleTimeout bounds the gap between subsequent chunks
// of a streaming reply, per §4.I.
const (
	connectTimeout = 10 * time.Second
	idleTimeout    = 120 * time.Second
)

// Forwarder issues the outbound upstream request and either buffers the
// full response (non-streaming) or pipes it chunk by chunk to the client
// (streaming), grounded on the teacher's forwardRequest/forwardStreamingRequest
// pair but simplified: one client, one timeout policy, no provider-specific
// header quirks since this gateway speaks exactly two dialects.
type Forwarder struct {
	client *http.Client
}

// NewForwarder builds a client with no blanket request timeout: a
// streaming reply can legitimately run far longer than any single-shot
// deadline would allow. Connect latency and stream staleness are bounded
// separately, by ForwardStream's connect timer and idle watchdog.
func NewForwarder() *Forwarder {
	return &Forwarder{
		client: &http.Client{},
	}
}

// buildUpstreamRequest assembles the outbound request: endpoint + path
// suffix, bearer auth, identity encoding so the forwarder never has to
// transparently re-compress a response it is about to re-frame. The
// inbound client's anthropic-version header, when present, is preserved
// on the outbound request per §6.
func buildUpstreamRequest(ctx context.Context, endpoint, pathSuffix, apiKey, anthropicVersion string, body []byte) (*http.Request, error) {
	url := strings.TrimRight(endpoint, "/") + pathSuffix
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("x-api-key", apiKey)
	if anthropicVersion != "" {
		req.Header.Set("anthropic-version", anthropicVersion)
	}
	return req, nil
}

// ForwardBuffered sends body to endpoint+pathSuffix and returns the full
// response, used for non-streaming requests where the caller still needs
// to translate the reply before sending it to the client.
func (f *Forwarder) ForwardBuffered(ctx context.Context, endpoint, pathSuffix, apiKey, anthropicVersion string, body []byte) (statusCode int, header http.Header, respBody []byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, idleTimeout)
	defer cancel()
	req, err := buildUpstreamRequest(ctx, endpoint, pathSuffix, apiKey, anthropicVersion, body)
	if err != nil {
		return 0, nil, nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return resp.StatusCode, resp.Header.Clone(), nil, fmt.Errorf("read upstream response: %w", err)
	}
	return resp.StatusCode, resp.Header.Clone(), b, nil
}

// ForwardStream sends body to endpoint+pathSuffix and pipes the response
// byte-by-byte into handle as it arrives, so a caller can translate and
// flush each fragment without buffering the whole stream in memory first.
// onStatus, when non-nil, is invoked exactly once with the upstream's
// status line and headers before the first chunk is handed to handle, so a
// caller can set the real status on its own response before writing any
// body bytes. The upstream connection's own idle gaps are bounded by an
// idle-reset deadline so a silently stalled upstream can't hold the
// handler open forever.
func (f *Forwarder) ForwardStream(ctx context.Context, endpoint, pathSuffix, apiKey, anthropicVersion string, body []byte, onStatus func(status int, header http.Header), handle func(chunk []byte) error) (statusCode int, header http.Header, err error) {
	// The request context also governs reading the response body, so it
	// must outlive Do: the connect timeout cancels it only if the response
	// headers have not arrived in time.
	reqCtx, cancelReq := context.WithCancel(ctx)
	defer cancelReq()
	connectTimer := time.AfterFunc(connectTimeout, cancelReq)
	req, err := buildUpstreamRequest(reqCtx, endpoint, pathSuffix, apiKey, anthropicVersion, body)
	if err != nil {
		connectTimer.Stop()
		return 0, nil, err
	}
	resp, err := f.client.Do(req)
	connectTimer.Stop()
	if err != nil {
		return 0, nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()
	respHeader := resp.Header.Clone()
	if onStatus != nil {
		onStatus(resp.StatusCode, respHeader)
	}

	// idleCtx is cancelled if no chunk arrives within idleTimeout; every
	// successful read pushes the deadline back out.
	idleCtx, cancelIdle := context.WithCancel(ctx)
	defer cancelIdle()
	timer := time.AfterFunc(idleTimeout, cancelIdle)
	defer timer.Stop()

	type readResult struct {
		n   int
		err error
	}
	buf := make([]byte, 32*1024)
	resultCh := make(chan readResult, 1)

	for {
		go func() {
			n, err := resp.Body.Read(buf)
			resultCh <- readResult{n, err}
		}()

		select {
		case <-idleCtx.Done():
			return resp.StatusCode, resp.Header.Clone(), idleCtx.Err()
		case res := <-resultCh:
			timer.Reset(idleTimeout)
			if res.n > 0 {
				if err := handle(buf[:res.n]); err != nil {
					return resp.StatusCode, resp.Header.Clone(), fmt.Errorf("write to client: %w", err)
				}
			}
			if errors.Is(res.err, io.EOF) {
				return resp.StatusCode, resp.Header.Clone(), nil
			}
			if res.err != nil {
				return resp.StatusCode, resp.Header.Clone(), fmt.Errorf("read upstream stream: %w", res.err)
			}
		}
	}
}
