package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// crawlReporter gives feedback while pages are crawled
type crawlReporter interface {
	Page(url string, err error)
	Finish()
}

// newCrawlReporter returns a spinner for interactive runs, line output in CI
// and nothing when --progress=false.
func newCrawlReporter(cmd *cobra.Command) crawlReporter {
	if show, err := cmd.Flags().GetBool("progress"); err != nil || !show {
		return nopReporter{}
	}
	w := cmd.ErrOrStderr()
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return &lineReporter{w: w}
	}
	return &barReporter{bar: progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Crawling"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)}
}

type barReporter struct {
	bar *progressbar.ProgressBar
}

func (r *barReporter) Page(url string, err error) {
	r.bar.Describe(url)
	_ = r.bar.Add(1)
}

func (r *barReporter) Finish() {
	_ = r.bar.Finish()
}

type lineReporter struct {
	w     io.Writer
	count int
}

func (r *lineReporter) Page(url string, err error) {
	r.count++
	if err != nil {
		fmt.Fprintf(r.w, "[%d] %s (failed: %v)\n", r.count, url, err)
		return
	}
	fmt.Fprintf(r.w, "[%d] %s\n", r.count, url)
}

func (r *lineReporter) Finish() {
	fmt.Fprintf(r.w, "Crawled %d pages\n", r.count)
}

type nopReporter struct{}

func (nopReporter) Page(string, error) {}
func (nopReporter) Finish()            {}
