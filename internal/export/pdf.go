package export

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"docrepo/internal/docengine"
)

// chromeBinaryNames lists the headless Chrome/Chromium binaries this
// engine will try, in order, before declaring the PDF path unavailable.
var chromeBinaryNames = []string{"chromium-browser", "chromium", "google-chrome"}

// exportPDF renders html to a PDF page via a headless Chrome instance
// driven over the DevTools protocol, named from doc (spec: export derives
// its filename from the Document Index entry, not a caller-supplied title).
func exportPDF(ctx context.Context, doc docengine.Document, html string) (*Result, error) {
	if !chromeAvailable() {
		return nil, fmt.Errorf("%w: no chromium binary on PATH", ErrPDFDependencyMissing)
	}

	renderCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(renderCtx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	dataURL := "data:text/html;charset=utf-8," + percentEncodeDataURL(html)

	var pdfData []byte
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.5).
				WithPaperHeight(11.0).
				WithMarginTop(0.75).
				WithMarginBottom(0.75).
				WithMarginLeft(0.75).
				WithMarginRight(0.75).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome pdf generation failed: %w", err)
	}

	return &Result{
		Data:     pdfData,
		Filename: documentFilename(doc, "pdf"),
		MimeType: "application/pdf",
	}, nil
}

func chromeAvailable() bool {
	for _, name := range chromeBinaryNames {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}
