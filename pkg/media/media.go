// Package media resolves attached files into inputs a provider can embed in
// its request payload. Sources may be local paths, http(s) URLs, s3 objects,
// or data URIs; ingestion classifies each one as text or image content.
package media

import (
	"fmt"
	"path"
	"strings"
)

// Input is one piece of attached content.
// Providers type-switch on the concrete types to build their payload shape.
type Input interface {
	// Kind is "text" or "image".
	Kind() string
	// MIMEType is the detected media type, e.g. "image/png" or "text/csv".
	MIMEType() string
}

// Text is an inlined textual attachment (plain text, csv, source code).
type Text struct {
	Filename string
	Content  string
	MIME     string
}

func (t Text) Kind() string     { return "text" }
func (t Text) MIMEType() string { return t.MIME }

// Prompt renders the attachment the way it is inlined into a prompt: a
// filename header followed by the content.
func (t Text) Prompt() string {
	if t.Filename == "" {
		return t.Content
	}
	return fmt.Sprintf("File: %s\n%s", t.Filename, t.Content)
}

// Image is an image attachment held as raw bytes.
type Image struct {
	Filename string
	Data     []byte
	MIME     string
}

func (i Image) Kind() string     { return "image" }
func (i Image) MIMEType() string { return i.MIME }

// mimeByExtension maps the file extensions the ingester recognizes. Content
// sniffing fills the gaps for extension-less sources.
var mimeByExtension = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".tsv":  "text/tab-separated-values",
	".json": "application/json",
	".yaml": "text/yaml",
	".yml":  "text/yaml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

func mimeFromName(name string) string {
	return mimeByExtension[strings.ToLower(path.Ext(name))]
}

func isImageMIME(mime string) bool {
	return strings.HasPrefix(mime, "image/")
}

func isTextMIME(mime string) bool {
	if strings.HasPrefix(mime, "text/") {
		return true
	}
	switch mime {
	case "application/json", "application/xml", "application/x-yaml":
		return true
	}
	return false
}
