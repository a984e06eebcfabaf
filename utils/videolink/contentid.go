// Package videolink derives a stable external content id from the link or
// embed snippet stored with a classroom video.
package videolink

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	youTubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	driveIDPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]{10,}$`)
)

// ExtractContentID returns the id of the hosted content, or "" when the link
// is not recognised. source is the video's declared source; an empty or
// unknown source is inferred from the link itself.
func ExtractContentID(source, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "<") {
		src := iframeSrc(raw)
		if src == "" {
			return ""
		}
		raw = src
	}

	switch strings.ToLower(strings.TrimSpace(source)) {
	case "youtube", "youtube-url":
		return youTubeID(raw)
	case "zoom":
		return zoomID(raw)
	case "drive":
		return driveID(raw)
	case "firebase":
		return firebasePath(raw)
	}

	for _, extract := range []func(string) string{youTubeID, zoomID, driveID, firebasePath} {
		if id := extract(raw); id != "" {
			return id
		}
	}
	return ""
}

// iframeSrc returns the src attribute of the first <iframe> in an embed snippet.
func iframeSrc(snippet string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(snippet))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := tokenizer.Token()
			if tok.Data != "iframe" {
				continue
			}
			for _, attr := range tok.Attr {
				if attr.Key == "src" {
					return strings.TrimSpace(attr.Val)
				}
			}
		}
	}
}

func parseURL(raw string) *url.URL {
	if !strings.Contains(raw, "://") {
		if strings.HasPrefix(raw, "//") {
			raw = "https:" + raw
		} else {
			raw = "https://" + raw
		}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil
	}
	return u
}

func pathSegments(u *url.URL) []string {
	var out []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func hostIs(u *url.URL, domains ...string) bool {
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func youTubeID(raw string) string {
	if youTubeIDPattern.MatchString(raw) {
		return raw
	}
	u := parseURL(raw)
	if u == nil {
		return ""
	}
	var candidate string
	segs := pathSegments(u)
	switch {
	case hostIs(u, "youtu.be"):
		if len(segs) > 0 {
			candidate = segs[0]
		}
	case hostIs(u, "youtube.com", "youtube-nocookie.com"):
		if v := u.Query().Get("v"); v != "" {
			candidate = v
		} else if len(segs) >= 2 {
			switch segs[0] {
			case "embed", "live", "shorts", "v":
				candidate = segs[1]
			}
		}
	}
	if youTubeIDPattern.MatchString(candidate) {
		return candidate
	}
	return ""
}

// zoomID returns the recording token of a cloud recording link, or the
// meeting number of a join link.
func zoomID(raw string) string {
	u := parseURL(raw)
	if u == nil || !hostIs(u, "zoom.us", "zoom.com") {
		return ""
	}
	segs := pathSegments(u)
	for i := 0; i+1 < len(segs); i++ {
		switch {
		case segs[i] == "rec" && (segs[i+1] == "share" || segs[i+1] == "play") && i+2 < len(segs):
			return segs[i+2]
		case segs[i] == "j" || segs[i] == "w":
			return segs[i+1]
		}
	}
	return ""
}

func driveID(raw string) string {
	u := parseURL(raw)
	if u == nil || !hostIs(u, "drive.google.com", "docs.google.com") {
		return ""
	}
	segs := pathSegments(u)
	for i := 0; i+1 < len(segs); i++ {
		if segs[i] == "d" && driveIDPattern.MatchString(segs[i+1]) {
			return segs[i+1]
		}
	}
	if id := u.Query().Get("id"); driveIDPattern.MatchString(id) {
		return id
	}
	return ""
}

// firebasePath returns the storage object path of a Firebase download URL.
func firebasePath(raw string) string {
	if strings.HasPrefix(raw, "gs://") {
		if u, err := url.Parse(raw); err == nil {
			return strings.TrimPrefix(u.Path, "/")
		}
		return ""
	}
	u := parseURL(raw)
	if u == nil || !hostIs(u, "firebasestorage.googleapis.com") {
		return ""
	}
	// object names are escaped into a single segment ("videos%2Fa.mp4")
	segs := strings.Split(u.EscapedPath(), "/")
	for i := 0; i+1 < len(segs); i++ {
		if segs[i] == "o" {
			if p, err := url.PathUnescape(segs[i+1]); err == nil {
				return p
			}
		}
	}
	return ""
}
