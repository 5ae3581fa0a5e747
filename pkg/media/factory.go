package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// maxFetchBytes caps how much is read from any single source.
const maxFetchBytes = 32 << 20

// FromSources resolves each source in order. The first failure aborts the
// whole batch; partial attachments would silently change the request.
func FromSources(ctx context.Context, sources []string) ([]Input, error) {
	inputs := make([]Input, 0, len(sources))
	for _, src := range sources {
		in, err := FromSource(ctx, src)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// FromSource resolves a single source into an Input. Recognized forms:
//
//	data:<mime>;base64,<payload>
//	http:// or https:// URL
//	s3://bucket/key (client configured from environment, see s3.go)
//	anything else: a local file path
func FromSource(ctx context.Context, src string) (Input, error) {
	switch {
	case strings.HasPrefix(src, "data:"):
		return fromDataURI(src)
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return fromURL(ctx, src)
	case strings.HasPrefix(src, "s3://"):
		return fromS3(ctx, src)
	default:
		return fromFile(src)
	}
}

func fromFile(path string) (Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("media: read %s: %w", path, err)
	}
	return classify(filepath.Base(path), data, mimeFromName(path))
}

func fromURL(ctx context.Context, url string) (Input, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("media: build request for %s: %w", url, err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media: fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("media: fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("media: read %s: %w", url, err)
	}

	mime := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "" || mime == "application/octet-stream" {
		mime = mimeFromName(url)
	}

	return classify(filepath.Base(url), data, mime)
}

func fromDataURI(uri string) (Input, error) {
	// data:<mime>;base64,<payload>
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, fmt.Errorf("media: malformed data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("media: malformed data URI: missing payload")
	}

	mime, b64 := meta, false
	if m, found := strings.CutSuffix(meta, ";base64"); found {
		mime, b64 = m, true
	}

	var data []byte
	if b64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("media: decode data URI: %w", err)
		}
		data = decoded
	} else {
		data = []byte(payload)
	}

	return classify("", data, mime)
}

// classify turns raw bytes into a typed Input. The MIME hint wins; content
// sniffing covers sources without a usable hint.
func classify(name string, data []byte, mime string) (Input, error) {
	if mime == "" {
		mime = http.DetectContentType(data)
		if i := strings.IndexByte(mime, ';'); i >= 0 {
			mime = strings.TrimSpace(mime[:i])
		}
	}

	switch {
	case isImageMIME(mime):
		img, err := normalizeImage(name, data, mime)
		if err != nil {
			return nil, err
		}
		return img, nil
	case isTextMIME(mime):
		return Text{Filename: name, Content: string(data), MIME: mime}, nil
	default:
		return nil, fmt.Errorf("media: unsupported media type %q for %s", mime, name)
	}
}
