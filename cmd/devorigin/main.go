package main

import (
	"bytes"
	"flag"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"
)

// devorigin is a stand-in portfolio site for trying reelcache locally. It
// serves a shell page, the seed assets and fake media of any name.
func main() {
	addr := flag.String("addr", ":3000", "Address to listen on")
	mediaSize := flag.Int("media-size", 256*1024, "Size in bytes of every fake media file")
	delay := flag.Duration("delay", 0, "Delay added to every media response")
	flag.Parse()

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<!doctype html><title>portfolio</title><p>Rendered at %s</p>", time.Now().Format(time.RFC3339))
	})

	http.HandleFunc("/favicon.svg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		fmt.Fprint(w, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 1 1"><rect width="1" height="1"/></svg>`)
	})

	media := func(contentType string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if *delay > 0 {
				select {
				case <-time.After(*delay):
				case <-r.Context().Done():
					return
				}
			}
			name := path.Base(r.URL.Path)
			if strings.HasPrefix(name, "missing") {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", contentType)
			w.Write(bytes.Repeat([]byte(name[:1]), *mediaSize))
		}
	}
	http.HandleFunc("/videos/", media("video/webm"))
	http.HandleFunc("/images/", media("image/webp"))

	http.HandleFunc("/api/time", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"now":%q}`, time.Now().Format(time.RFC3339))
	})

	fmt.Printf("Dev origin running on %s\n", *addr)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		fmt.Println(err)
	}
}
