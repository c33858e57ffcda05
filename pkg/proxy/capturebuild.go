package proxy

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/quietloop/airgate/pkg/capture"
	"github.com/quietloop/airgate/pkg/headerfilter"
	"github.com/quietloop/airgate/pkg/jsonvalue"
	"github.com/quietloop/airgate/pkg/plugin"
	"github.com/quietloop/airgate/pkg/router"
)

// buildCaptureData assembles the on-disk record for one request. It
// never panics on a nil response (the upstream-error path passes nil
// headers/body).
func buildCaptureData(
	t0 time.Time,
	extracted router.Extracted,
	provider router.Provider,
	apiFormat router.ApiFormat,
	r *http.Request,
	target *url.URL,
	reqCtx *plugin.RequestContext,
	responseStatus int,
	responseHeaders http.Header,
	responseBody []byte,
	streaming bool,
	timings capture.Timings,
	failureCategory string,
) capture.Data {
	var requestBody interface{}
	if reqCtx.Body != nil {
		if encoded, err := jsonvalue.Marshal(*reqCtx.Body); err == nil {
			requestBody = json.RawMessage(encoded)
		}
	}

	return capture.Data{
		Timestamp:           t0.UTC().Format(time.RFC3339Nano),
		SessionID:           optionalString(extracted.SessionID),
		Method:              r.Method,
		Path:                extracted.CleanPath,
		Source:              optionalString(extracted.Source),
		Provider:            provider.String(),
		ApiFormat:           apiFormat.String(),
		TargetUrl:           target.String(),
		RequestHeaders:      headerfilter.SelectHeaders(r.Header),
		RequestBody:         requestBody,
		RequestBytes:        len(reqCtx.RawBody),
		ResponseStatus:      responseStatus,
		ResponseHeaders:     headerfilter.SelectHeaders(responseHeaders),
		ResponseBody:        string(responseBody),
		ResponseIsStreaming: streaming,
		ResponseBytes:       len(responseBody),
		Timings:             timings,
		FailureCategory:     failureCategory,
	}
}
