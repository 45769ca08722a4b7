package server

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"path/filepath"

	"github.com/viant/afs"
	afsurl "github.com/viant/afs/url"
)

//go:embed web/index.html
var indexHTML string

// pageData is what the page template renders.
type pageData struct {
	Title   string
	RPCPath string
}

// LoadPage parses the page template found at location, which may be any URL
// afs can read (file://, gs://, s3://, mem://) or a plain file path.
// An empty location selects the built-in page.
func LoadPage(ctx context.Context, location string) (*template.Template, error) {
	if location == "" {
		return template.New("index").Parse(indexHTML)
	}
	if afsurl.Scheme(location, "") == "" {
		abs, err := filepath.Abs(location)
		if err != nil {
			return nil, err
		}
		location = "file://" + abs
	}
	data, err := afs.New().DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("download page %s: %w", location, err)
	}
	return template.New("index").Parse(string(data))
}
