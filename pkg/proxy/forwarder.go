// Package proxy implements the HTTP Forwarder: the request lifecycle
// that classifies, buffers, redacts, forwards, streams or buffers the
// response, and fires the capture pipeline — all driven by the
// Router's classification and the Plugin pipeline's hooks.
//
// Grounded on the teacher's pkg/proxy/proxy.go Handler/handleProxy
// split, replumbed for multi-provider routing instead of a single
// fixed upstream and for the generic plugin pipeline instead of the
// teacher's guardrails calls.
package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quietloop/airgate/pkg/capture"
	"github.com/quietloop/airgate/pkg/headerfilter"
	"github.com/quietloop/airgate/pkg/jsonvalue"
	"github.com/quietloop/airgate/pkg/plugin"
	"github.com/quietloop/airgate/pkg/router"
)

// Forwarder is the proxy's central http.Handler.
type Forwarder struct {
	Upstreams           router.Upstreams
	AllowTargetOverride bool
	GatewayKey          string
	Plugins             []plugin.Plugin
	Capture             *capture.Logger
	Client              *http.Client

	caps plugin.Capabilities
}

// NewForwarder pre-scans plugins for hook presence, the documented
// performance contract: a hook class no plugin implements costs
// nothing on the hot path.
func NewForwarder(upstreams router.Upstreams, allowTargetOverride bool, gatewayKey string, plugins []plugin.Plugin, logger *capture.Logger) *Forwarder {
	return &Forwarder{
		Upstreams:           upstreams,
		AllowTargetOverride: allowTargetOverride,
		GatewayKey:          gatewayKey,
		Plugins:             plugins,
		Capture:             logger,
		Client:              &http.Client{Timeout: 120 * time.Second},
		caps:                plugin.Scan(plugins),
	}
}

func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !authenticateGateway(w, r, f.GatewayKey) {
		return
	}

	// x-target-url trust: drop it before routing unless the caller is
	// loopback and overrides are explicitly enabled.
	if r.Header.Get("x-target-url") != "" {
		if !(isLoopback(r) && f.AllowTargetOverride) {
			r.Header.Del("x-target-url")
		}
	}

	extracted := router.ExtractSource(r.URL.Path)
	provider, apiFormat := router.Classify(extracted.CleanPath, r.Header)
	query := ""
	if r.URL.RawQuery != "" {
		query = "?" + r.URL.RawQuery
	}
	resolved := router.ResolveTargetUrl(extracted.CleanPath, query, r.Header, f.Upstreams)

	runID := uuid.New().String()
	ctx, span := startSpan(r.Context(), runID, extracted.CleanPath, provider.String(), apiFormat.String())
	defer span.End()
	r = r.WithContext(ctx)

	if r.Method != http.MethodPost {
		f.forwardPassthrough(w, r, resolved.URL, runID)
		return
	}

	f.forwardPost(w, r, resolved.URL, extracted, provider, apiFormat, runID, span)
}

// forwardPassthrough handles non-POST requests: no plugins, no
// capture, headers built as in §4.2, body (if any) piped once.
func (f *Forwarder) forwardPassthrough(w http.ResponseWriter, r *http.Request, targetURL string, runID string) {
	target, err := url.Parse(targetURL)
	if err != nil {
		writeProxyError(w, http.StatusBadGateway, err)
		return
	}

	upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL, r.Body)
	if err != nil {
		writeProxyError(w, http.StatusBadGateway, err)
		return
	}
	upstreamReq.Header = headerfilter.ForwardHeaders(r.Header, target.Host, -1, false)
	if upstreamReq.Header.Get("Content-Length") == "" {
		upstreamReq.ContentLength = r.ContentLength
	}

	resp, err := f.Client.Do(upstreamReq)
	if err != nil {
		writeProxyError(w, http.StatusBadGateway, err)
		return
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// forwardPost implements §4.7 steps 4-11: buffer, decompress, parse,
// onRequest, body decision, forward, stream-or-buffer the response,
// timings, capture.
func (f *Forwarder) forwardPost(w http.ResponseWriter, r *http.Request, targetURL string, extracted router.Extracted, provider router.Provider, apiFormat router.ApiFormat, runID string, span trace.Span) {
	t0 := time.Now()

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		writeProxyError(w, http.StatusBadRequest, err)
		return
	}
	r.Body.Close()

	decompressed := decompressBody(rawBody, r.Header.Get("content-encoding"))

	var parsedBody *jsonvalue.Value
	if v, err := jsonvalue.Parse(decompressed); err == nil {
		parsedBody = &v
	}

	reqCtx := plugin.NewRequestContext(parsedBody)
	reqCtx.Provider = provider
	reqCtx.ApiFormat = apiFormat
	reqCtx.Path = extracted.CleanPath
	reqCtx.Source = optionalString(extracted.Source)
	reqCtx.SessionID = optionalString(extracted.SessionID)
	reqCtx.Headers = flattenHeaders(r.Header)
	reqCtx.RawBody = rawBody

	if f.caps.HasRequest {
		reqCtx = safeDispatchRequest(f.Plugins, reqCtx)
	}

	forwardBody := rawBody
	bodyMutated := reqCtx.BodyMutated()
	if bodyMutated && reqCtx.Body != nil {
		encoded, err := jsonvalue.Marshal(*reqCtx.Body)
		if err == nil {
			forwardBody = encoded
		} else {
			bodyMutated = false
		}
	}

	target, err := url.Parse(targetURL)
	if err != nil {
		writeProxyError(w, http.StatusBadGateway, err)
		return
	}

	var tRequestSent, tFirstByte time.Time
	clientTrace := &httptrace.ClientTrace{
		WroteRequest: func(httptrace.WroteRequestInfo) { tRequestSent = time.Now() },
		GotFirstResponseByte: func() {
			if tFirstByte.IsZero() {
				tFirstByte = time.Now()
			}
		},
	}
	tracedCtx := httptrace.WithClientTrace(r.Context(), clientTrace)

	upstreamReq, err := http.NewRequestWithContext(tracedCtx, http.MethodPost, targetURL, bytes.NewReader(forwardBody))
	if err != nil {
		writeProxyError(w, http.StatusBadGateway, err)
		return
	}
	upstreamReq.Header = headerfilter.ForwardHeaders(r.Header, target.Host, len(forwardBody), bodyMutated)

	resp, err := f.Client.Do(upstreamReq)
	if err != nil {
		f.writeUpstreamErrorAndCapture(w, runID, extracted, provider, apiFormat, target, r, reqCtx, t0, err)
		return
	}
	defer resp.Body.Close()
	if tFirstByte.IsZero() {
		tFirstByte = time.Now()
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	streaming := strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream")
	shouldBuffer := f.caps.HasResponse && !streaming
	span.SetAttributes(
		attribute.String("airgate.session_id", extracted.SessionID),
		attribute.Bool("airgate.streaming", streaming),
	)

	var (
		responseBody    []byte
		responseStatus  = resp.StatusCode
		responseHeaders = resp.Header
	)

	if shouldBuffer {
		buffered, err := io.ReadAll(resp.Body)
		if err != nil {
			writeProxyError(w, http.StatusBadGateway, err)
			return
		}
		respCtx := &plugin.ResponseContext{
			Status:    resp.StatusCode,
			Headers:   flattenHeaders(resp.Header),
			Body:      buffered,
			SessionID: optionalString(extracted.SessionID),
		}
		respCtx = safeDispatchResponse(f.Plugins, respCtx)
		responseBody = respCtx.Body
		responseStatus = respCtx.Status

		for k, vv := range resp.Header {
			for _, v := range vv {
				w.Header().Add(k, v)
			}
		}
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(responseBody)))
		w.WriteHeader(responseStatus)
		w.Write(responseBody)
	} else {
		full, _ := streamResponse(w, resp, f.caps, f.Plugins, optionalString(extracted.SessionID), runID)
		responseBody = full
	}

	tEnd := time.Now()
	timings := computeTimings(t0, tRequestSent, tFirstByte, tEnd)
	span.SetAttributes(attribute.Int64("airgate.total_ms", timings.TotalMS))

	if f.Capture == nil {
		return
	}
	failureCategory := capture.Classify(responseStatus, string(responseBody))
	data := buildCaptureData(t0, extracted, provider, apiFormat, r, target, reqCtx, responseStatus, responseHeaders, responseBody, streaming, timings, failureCategory)
	f.Capture.Write(data, t0.UnixMilli())
	if f.caps.HasCapture {
		plugin.DispatchCapture(f.Plugins, data)
	}
}

func (f *Forwarder) writeUpstreamErrorAndCapture(w http.ResponseWriter, runID string, extracted router.Extracted, provider router.Provider, apiFormat router.ApiFormat, target *url.URL, r *http.Request, reqCtx *plugin.RequestContext, t0 time.Time, upstreamErr error) {
	log.Printf("[proxy] run=%s upstream error: %v", runID, upstreamErr)
	writeProxyError(w, http.StatusBadGateway, upstreamErr)

	if f.Capture == nil {
		return
	}
	timings := computeTimings(t0, time.Time{}, time.Time{}, time.Now())
	data := buildCaptureData(t0, extracted, provider, apiFormat, r, target, reqCtx, 0, nil, nil, false, timings, capture.ClassifyTransportError(upstreamErr))
	f.Capture.Write(data, t0.UnixMilli())
	if f.caps.HasCapture {
		plugin.DispatchCapture(f.Plugins, data)
	}
}

func writeProxyError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "Proxy error",
		"details": err.Error(),
	})
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if len(vv) > 0 {
			out[k] = vv[0]
		}
	}
	return out
}

func safeDispatchRequest(plugins []plugin.Plugin, ctx *plugin.RequestContext) (result *plugin.RequestContext) {
	result = ctx
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[proxy] onRequest pipeline error: %v", r)
			result = ctx
		}
	}()
	return plugin.DispatchRequest(plugins, ctx)
}

func safeDispatchResponse(plugins []plugin.Plugin, ctx *plugin.ResponseContext) (result *plugin.ResponseContext) {
	result = ctx
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[proxy] onResponse pipeline error: %v", r)
			result = ctx
		}
	}()
	return plugin.DispatchResponse(plugins, ctx)
}
