package worker

import (
	"context"
	"fmt"
	"reelcache/pkg/cache"
	"reelcache/pkg/cachemanager"

	"github.com/valyala/fasthttp"
)

// Handle answers req from the cache, the network or both, depending on the
// class of its path. The returned error is non-nil only for unclassified
// requests that failed on the network and had no cached copy.
func (w *Worker) Handle(ctx context.Context, req *fasthttp.Request) (*fasthttp.Response, error) {
	path := string(req.URI().Path())

	if !w.Controlling() {
		w.logger.Debug(fmt.Sprintf("Not controlling; passing %s straight to the network", path))
		return w.network(ctx, req)
	}

	if !req.Header.IsGet() {
		w.logger.Debug(fmt.Sprintf("Method %s is never cached; passing %s to the network", req.Header.Method(), path))
		return w.network(ctx, req)
	}

	if w.bypass != nil && w.bypass.MatchString(path) {
		w.logger.Debug(fmt.Sprintf("Path %s bypasses the cache", path))
		return w.network(ctx, req)
	}

	key := cachemanager.GetKey(w.opts.KeyConfig, req)
	class := w.classifier.Classify(path)
	w.logger.Debug(fmt.Sprintf("Request %s classified as %s (%s)", key, class, class.Strategy()))

	switch class {
	case ClassMedia:
		return w.cacheFirst(ctx, req, key, w.opts.Names.Media), nil
	case ClassShell:
		return w.networkFirst(ctx, req, key, w.opts.Names.Shell), nil
	default:
		return w.passThrough(ctx, req, key)
	}
}

func (w *Worker) cacheFirst(ctx context.Context, req *fasthttp.Request, key, name string) *fasthttp.Response {
	partition, err := w.store.Open(name)
	if err != nil {
		w.logger.Error(fmt.Sprintf("Unable to open partition %s: %v", name, err))
	}

	if partition != nil {
		if resp, ok := w.lookup(partition, key); ok {
			return resp
		}
	}

	resp, err := w.fetch(ctx, req, ClassMedia)
	if err != nil {
		w.logger.Warn(fmt.Sprintf("Network failed for %s with no cached copy: %v", key, err))
		w.metrics.Synthetic("404")
		return mediaUnavailable()
	}

	if partition != nil {
		w.store200(partition, key, resp)
	}
	return resp
}

func (w *Worker) networkFirst(ctx context.Context, req *fasthttp.Request, key, name string) *fasthttp.Response {
	resp, err := w.fetch(ctx, req, ClassShell)
	if err == nil {
		if resp.StatusCode() == fasthttp.StatusOK {
			partition, oerr := w.store.Open(name)
			if oerr != nil {
				w.logger.Error(fmt.Sprintf("Unable to open partition %s: %v", name, oerr))
			} else {
				w.store200(partition, key, resp)
			}
		}
		return resp
	}

	w.logger.Warn(fmt.Sprintf("Network failed for %s, trying cache: %v", key, err))
	partition, oerr := w.store.Open(name)
	if oerr == nil {
		if cached, ok := w.lookup(partition, key); ok {
			return cached
		}
	} else {
		w.logger.Error(fmt.Sprintf("Unable to open partition %s: %v", name, oerr))
	}

	w.metrics.Synthetic("503")
	return offline()
}

// passThrough never writes. On network failure any partition may answer;
// without a cached copy the network error is returned as is.
func (w *Worker) passThrough(ctx context.Context, req *fasthttp.Request, key string) (*fasthttp.Response, error) {
	resp, err := w.fetch(ctx, req, ClassUncached)
	if err == nil {
		return resp, nil
	}

	entry, ok, merr := w.store.Match(key)
	if merr != nil {
		w.logger.Error(fmt.Sprintf("Cache lookup failed for %s: %v", key, merr))
	}
	w.metrics.Lookup("*", ok)
	if ok {
		w.logger.Info(fmt.Sprintf("Network failed for %s; served cached copy", key))
		return hitResponse(entry), nil
	}
	return nil, err
}

func (w *Worker) lookup(partition cache.Partition, key string) (*fasthttp.Response, bool) {
	entry, ok, err := partition.Match(key)
	if err != nil {
		w.logger.Error(fmt.Sprintf("Cache lookup failed for %s in %s: %v", key, partition.Name(), err))
		ok = false
	}
	w.metrics.Lookup(partition.Name(), ok)
	if !ok {
		w.logger.Debug(fmt.Sprintf("Cache MISS for %s in %s", key, partition.Name()))
		return nil, false
	}
	w.logger.Debug(fmt.Sprintf("Cache HIT for %s in %s", key, partition.Name()))
	return hitResponse(entry), true
}

// store200 writes a copy of resp when its status is exactly 200. Write
// failures are logged; the caller still gets resp.
func (w *Worker) store200(partition cache.Partition, key string, resp *fasthttp.Response) {
	status := resp.StatusCode()
	if status != fasthttp.StatusOK {
		w.logger.Debug(fmt.Sprintf("Not caching %s due to status %d", key, status))
		return
	}

	size := uint64(len(resp.Body()))
	if w.opts.MaxContentSize > 0 && size > w.opts.MaxContentSize {
		w.logger.Info(fmt.Sprintf("Response size %d exceeds max cache size %d; skipping cache for %s", size, w.opts.MaxContentSize, key))
		return
	}

	err := partition.Put(key, cache.EntryFromResponse(key, resp))
	w.metrics.Write(partition.Name(), err)
	if err != nil {
		w.logger.Error(fmt.Sprintf("Unable to cache %s in %s: %v", key, partition.Name(), err))
		return
	}
	w.logger.Debug(fmt.Sprintf("Cached %s in %s", key, partition.Name()))
}

func (w *Worker) fetch(ctx context.Context, req *fasthttp.Request, class Class) (*fasthttp.Response, error) {
	resp := &fasthttp.Response{}
	if err := w.fetcher.Fetch(ctx, req, resp); err != nil {
		w.metrics.Fetch(class.Strategy(), "error")
		return nil, err
	}
	w.metrics.Fetch(class.Strategy(), "ok")
	return resp, nil
}

func (w *Worker) network(ctx context.Context, req *fasthttp.Request) (*fasthttp.Response, error) {
	resp := &fasthttp.Response{}
	if err := w.fetcher.Fetch(ctx, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func hitResponse(entry *cache.Entry) *fasthttp.Response {
	resp := entry.Response()
	resp.Header.Set(HeaderCache, "HIT")
	return resp
}
