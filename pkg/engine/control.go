package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"reelcache/pkg/carousel"
	"reelcache/pkg/models"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
)

const (
	CONTROL_PREFIX    = "/__reelcache/"
	ROUTE_MESSAGE     = CONTROL_PREFIX + "message"
	ROUTE_STATE       = CONTROL_PREFIX + "state"
	ROUTE_CAROUSEL    = CONTROL_PREFIX + "carousel/"
	HEADER_ECT        = "ECT"
	HEADER_ACCEPT_CH  = "Accept-CH"
	HEADER_LINK       = "Link"
	CONTENT_TYPE_JSON = "application/json"
)

type carouselView struct {
	Index       int                 `json:"index"`
	Count       int                 `json:"count"`
	AutoPlaying bool                `json:"autoPlaying"`
	Item        *models.CatalogItem `json:"item,omitempty"`
	Preloaded   []string            `json:"preloaded"`
}

type stateView struct {
	Worker      string       `json:"worker"`
	Controlling bool         `json:"controlling"`
	Shell       string       `json:"shellPartition"`
	Media       string       `json:"mediaPartition"`
	Partitions  []string     `json:"partitions"`
	Carousel    carouselView `json:"carousel"`
}

func isControlPath(path string) bool {
	return strings.HasPrefix(path, CONTROL_PREFIX)
}

func (engine *ReelcacheEngine) handleControl(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())

	switch {
	case path == ROUTE_MESSAGE:
		if !requireMethod(ctx, fasthttp.MethodPost) {
			return
		}
		engine.handleMessage(ctx)
	case path == ROUTE_STATE:
		if !requireMethod(ctx, fasthttp.MethodGet) {
			return
		}
		engine.writeState(ctx)
	case strings.HasPrefix(path, ROUTE_CAROUSEL):
		if !requireMethod(ctx, fasthttp.MethodPost) {
			return
		}
		engine.handleCarousel(ctx, strings.TrimPrefix(path, ROUTE_CAROUSEL))
	default:
		ctx.Error("Unknown control route", fasthttp.StatusNotFound)
	}
}

func requireMethod(ctx *fasthttp.RequestCtx, method string) bool {
	if string(ctx.Method()) == method {
		return true
	}
	// Error resets the response headers, so Allow goes on afterwards.
	ctx.Error("Method not allowed", fasthttp.StatusMethodNotAllowed)
	ctx.Response.Header.Set(fasthttp.HeaderAllow, method)
	return false
}

func (engine *ReelcacheEngine) handleMessage(ctx *fasthttp.RequestCtx) {
	if err := engine.worker.HandleMessage(engine.ctx, ctx.PostBody()); err != nil {
		engine.logger.Error(fmt.Sprintf("Control message failed: %v", err))
		ctx.Error("Control message failed: "+err.Error(), fasthttp.StatusInternalServerError)
		return
	}
	engine.writeState(ctx)
}

func (engine *ReelcacheEngine) handleCarousel(ctx *fasthttp.RequestCtx, action string) {
	if ect := ctx.Request.Header.Peek(HEADER_ECT); len(ect) > 0 {
		engine.network.Set(string(ect))
	}

	switch action {
	case "next":
		engine.cursor.Next()
	case "prev":
		engine.cursor.Previous()
	case "goto":
		index, err := strconv.Atoi(string(ctx.QueryArgs().Peek("index")))
		if err != nil {
			ctx.Error("index must be an integer", fasthttp.StatusBadRequest)
			return
		}
		if _, err := engine.cursor.GoTo(index); err != nil {
			if errors.Is(err, carousel.ErrIndexOutOfRange) {
				ctx.Error(err.Error(), fasthttp.StatusBadRequest)
				return
			}
			ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
			return
		}
	default:
		ctx.Error("Unknown carousel action "+action, fasthttp.StatusNotFound)
		return
	}

	view := engine.carouselView()
	ctx.Response.Header.Set(HEADER_ACCEPT_CH, HEADER_ECT)
	if len(view.Preloaded) > 0 {
		if link := engine.hints.LinkHeader(view.Preloaded...); link != "" {
			ctx.Response.Header.Set(HEADER_LINK, link)
		}
	}
	writeJSON(ctx, view)
}

func (engine *ReelcacheEngine) carouselView() carouselView {
	view := carouselView{
		Index:       engine.cursor.Current(),
		Count:       engine.cursor.Count(),
		AutoPlaying: engine.cursor.AutoPlaying(),
		Preloaded:   []string{},
	}
	if view.Index < len(engine.config.Catalog) {
		item := engine.config.Catalog[view.Index]
		view.Item = &item
	}
	if engine.preloader != nil {
		view.Preloaded = engine.preloader.Preloaded()
	}
	return view
}

func (engine *ReelcacheEngine) writeState(ctx *fasthttp.RequestCtx) {
	names := engine.worker.Names()
	partitions, err := engine.store.Names()
	if err != nil {
		engine.logger.Error(fmt.Sprintf("Unable to list partitions: %v", err))
		ctx.Error("Unable to list partitions", fasthttp.StatusInternalServerError)
		return
	}
	if partitions == nil {
		partitions = []string{}
	}

	writeJSON(ctx, stateView{
		Worker:      engine.worker.State().String(),
		Controlling: engine.worker.Controlling(),
		Shell:       names.Shell,
		Media:       names.Media,
		Partitions:  partitions,
		Carousel:    engine.carouselView(),
	})
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.Error("Unable to encode response", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType(CONTENT_TYPE_JSON)
	ctx.SetBody(body)
}
