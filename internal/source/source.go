package source

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// Source fetches and decodes a single frame. Implementations must be safe
// for concurrent use: the loader calls Load for every frame at once.
type Source interface {
	Load(ctx context.Context, path string) (image.Image, error)
}

// New picks a Source for a frame base path: http(s) URLs are fetched over
// HTTP, .pdf files are rendered page by page, everything else is read from
// disk.
func New(base string, dpi int) (Source, error) {
	lower := strings.ToLower(base)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return NewHTTPSource(nil), nil
	case strings.HasSuffix(lower, ".pdf"):
		return NewFitzPDFSource(base, dpi)
	default:
		return &FileSource{}, nil
	}
}

const pagePrefix = "page:"

// PagePath addresses 1-based PDF pages, matching the frame numbering used
// for image sequences.
func PagePath(n int) string {
	return pagePrefix + strconv.Itoa(n)
}

type FitzPDFSource struct {
	doc  *fitz.Document
	path string
	dpi  int
}

func NewFitzPDFSource(path string, dpi int) (*FitzPDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	if dpi <= 0 {
		dpi = 150
	}
	return &FitzPDFSource{doc: doc, path: path, dpi: dpi}, nil
}

func (f *FitzPDFSource) PageCount() int {
	return f.doc.NumPage()
}

func (f *FitzPDFSource) Load(ctx context.Context, path string) (image.Image, error) {
	if !strings.HasPrefix(path, pagePrefix) {
		return nil, fmt.Errorf("not a page path: %q", path)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(path, pagePrefix))
	if err != nil || n < 1 || n > f.doc.NumPage() {
		return nil, fmt.Errorf("page out of range: %q", path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Document is not safe for parallel rendering, each load opens its own
	workerDoc, err := fitz.New(f.path)
	if err != nil {
		return nil, err
	}
	defer workerDoc.Close()
	img, err := workerDoc.ImageDPI(n-1, float64(f.dpi))
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", n, err)
	}
	return img, nil
}

func (f *FitzPDFSource) Close() error {
	return f.doc.Close()
}
