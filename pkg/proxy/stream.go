package proxy

import (
	"bytes"
	"io"
	"log"
	"net/http"

	"github.com/quietloop/airgate/pkg/plugin"
)

// streamResponse writes status and headers as soon as they arrive,
// then forwards each chunk through the stream plugin chain (if any),
// writing each one to the client as it becomes ready. It returns the
// full, unmutated response bytes for capture and whether any body
// byte was read.
func streamResponse(w http.ResponseWriter, resp *http.Response, caps plugin.Capabilities, plugins []plugin.Plugin, sessionID *string, runID string) (full []byte, firstByte bool) {
	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	flusher, canFlush := w.(http.Flusher)

	var capture bytes.Buffer
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			firstByte = true
			chunk := buf[:n]
			capture.Write(chunk)
			out := chunk
			if caps.HasStream {
				out = plugin.DispatchStreamChunk(plugins, chunk, sessionID)
			}
			if len(out) > 0 {
				w.Write(out)
				if canFlush {
					flusher.Flush()
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("[proxy] run=%s stream read error: %v", runID, err)
			}
			break
		}
	}

	if caps.HasStream {
		if tail := plugin.DispatchStreamEnd(plugins, sessionID); len(tail) > 0 {
			w.Write(tail)
			if canFlush {
				flusher.Flush()
			}
		}
	}

	return capture.Bytes(), firstByte
}
