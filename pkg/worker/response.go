package worker

import "github.com/valyala/fasthttp"

const (
	HeaderCache     = "X-Reelcache-Cache"
	HeaderSynthetic = "X-Reelcache-Synthetic"
)

const (
	MediaUnavailableBody = "Media not available"
	OfflineBody          = "Offline"
)

// SyntheticResponse builds a plain-text placeholder returned when neither the
// network nor the cache produced a response.
func SyntheticResponse(status int, body string) *fasthttp.Response {
	resp := &fasthttp.Response{}
	resp.SetStatusCode(status)
	resp.Header.SetContentType("text/plain")
	resp.Header.Set(HeaderSynthetic, "true")
	resp.SetBodyString(body)
	return resp
}

// IsSynthetic reports whether resp is a placeholder rather than real content.
func IsSynthetic(resp *fasthttp.Response) bool {
	return string(resp.Header.Peek(HeaderSynthetic)) == "true"
}

func mediaUnavailable() *fasthttp.Response {
	return SyntheticResponse(fasthttp.StatusNotFound, MediaUnavailableBody)
}

func offline() *fasthttp.Response {
	return SyntheticResponse(fasthttp.StatusServiceUnavailable, OfflineBody)
}
