package install

import (
	"context"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/net/html"

	qerrors "github.com/matzehuels/quickmod/pkg/errors"
	"github.com/matzehuels/quickmod/pkg/fetch"
)

// NavEventKind identifies a [NavEvent].
type NavEventKind int

const (
	// URLCaught: the payload URL behind the landing page is known.
	URLCaught NavEventKind = iota
	// NavProgress: bytes of the payload were transferred.
	NavProgress
	// NavCompleted: the payload is stored at Path.
	NavCompleted
	// NavFailed: navigation or download failed with Err.
	NavFailed
)

// NavEvent is an observation reported by a [Navigator].
type NavEvent struct {
	Kind    NavEventKind
	URL     string
	Current int64
	Total   int64
	Path    string
	Err     error
}

// NavigateRequest describes one web download.
type NavigateRequest struct {
	UID     string
	Version string
	PageURL string // landing page of the version
	Dir     string // directory the payload is stored in
	SHA1    string
}

// Navigator performs downloads that sit behind a web page.
//
// Navigate blocks until the download has finished and reports what happened
// through emit. It should end with exactly one NavCompleted or NavFailed
// event; a navigation that ends without one is treated as failed.
type Navigator interface {
	Navigate(ctx context.Context, req NavigateRequest, emit func(NavEvent))
}

// payloadExts are file extensions recognized as mod payloads.
var payloadExts = []string{".jar", ".zip", ".litemod"}

// HTMLNavigator fetches the landing page, picks the payload link from its
// HTML and downloads it.
type HTMLNavigator struct {
	Fetcher    fetch.Fetcher
	Downloader fetch.Downloader
	Logger     *log.Logger
}

func (n *HTMLNavigator) Navigate(ctx context.Context, req NavigateRequest, emit func(NavEvent)) {
	logger := n.Logger
	if logger == nil {
		logger = log.Default()
	}

	target := req.PageURL
	if !isPayloadURL(target) {
		page, err := n.Fetcher.Fetch(fetch.WithRefresh(ctx), req.PageURL, nil)
		if err != nil {
			emit(NavEvent{Kind: NavFailed, Err: err})
			return
		}
		target, err = FindPayloadLink(req.PageURL, string(page))
		if err != nil {
			emit(NavEvent{Kind: NavFailed, Err: err})
			return
		}
	}
	logger.Debug("payload link found", "uid", req.UID, "page", req.PageURL, "url", target)
	emit(NavEvent{Kind: URLCaught, URL: target})

	dest := filepath.Join(req.Dir, payloadName(target, req.Version))
	_, err := n.Downloader.Download(ctx, target, dest, fetch.DownloadOptions{
		SHA1: req.SHA1,
		OnProgress: func(current, total int64) {
			emit(NavEvent{Kind: NavProgress, URL: target, Current: current, Total: total})
		},
	})
	if err != nil {
		emit(NavEvent{Kind: NavFailed, URL: target, Err: err})
		return
	}
	emit(NavEvent{Kind: NavCompleted, URL: target, Path: dest})
}

// FindPayloadLink returns the absolute URL of the payload linked from an HTML
// landing page. A link to a file with a payload extension is preferred over
// a link whose text mentions "download".
func FindPayloadLink(pageURL, body string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", qerrors.Wrap(qerrors.ErrCodeInvalidInput, err, "invalid page url %q", pageURL)
	}
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", qerrors.Wrap(qerrors.ErrCodeParseFailed, err, "parse %s", pageURL)
	}

	var byExt, byText string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if byExt != "" {
			return
		}
		if node.Type == html.ElementNode && node.Data == "a" {
			if href := getAttr(node, "href"); href != "" {
				switch {
				case isPayloadURL(href):
					byExt = href
					return
				case byText == "" && strings.Contains(strings.ToLower(textOf(node)), "download"):
					byText = href
				}
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	href := byExt
	if href == "" {
		href = byText
	}
	if href == "" {
		return "", qerrors.New(qerrors.ErrCodeNotFound, "no download link on %s", pageURL)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", qerrors.Wrap(qerrors.ErrCodeParseFailed, err, "invalid link %q on %s", href, pageURL)
	}
	return base.ResolveReference(ref).String(), nil
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func isPayloadURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, e := range payloadExts {
		if ext == e {
			return true
		}
	}
	return false
}

// payloadName returns the file name a payload from raw is stored under.
func payloadName(raw, fallback string) string {
	if u, err := url.Parse(raw); err == nil {
		if name := path.Base(u.Path); name != "." && name != "/" && name != "" && name != ".." {
			return name
		}
	}
	return strings.NewReplacer("/", "-", "\\", "-").Replace(fallback) + ".jar"
}
