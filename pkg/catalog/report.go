package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/coolbeans/dcatgraph/pkg/errs"
	"github.com/coolbeans/dcatgraph/pkg/store"
)

// Stage names the step at which a distribution failed.
type Stage string

const (
	StageResolve Stage = "resolve"
	StageFetch   Stage = "fetch"
	StageParse   Stage = "parse"
)

// Distribution is one row of the distribution query.
type Distribution struct {
	Node    store.Node // the dcat:Distribution resource
	Locator string     // download URL, else access URL; empty if neither
	Format  string     // declared format, if any
}

// Diagnostic records a distribution that was not loaded.
type Diagnostic struct {
	Distribution string
	Locator      string
	Stage        Stage
	Err          error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s: %v", d.Stage, d.Locator, d.Err)
}

// Report is the outcome of a catalog load.
type Report struct {
	Catalog       string
	Distributions int
	// Loaded lists the locators read into the dataset graph, in catalog
	// order.
	Loaded      []string
	Diagnostics []Diagnostic
	Elapsed     time.Duration
}

// Skipped returns the number of distributions that were not loaded.
func (r *Report) Skipped() int { return len(r.Diagnostics) }

func (r *Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Catalog: %s\n", r.Catalog)
	fmt.Fprintf(&sb, "Distributions: %d (loaded %d, skipped %d) in %s\n",
		r.Distributions, len(r.Loaded), r.Skipped(), r.Elapsed.Round(time.Millisecond))
	for _, locator := range r.Loaded {
		fmt.Fprintf(&sb, "  loaded  %s\n", locator)
	}
	for _, d := range r.Diagnostics {
		fmt.Fprintf(&sb, "  skipped %s\n", d)
	}
	return sb.String()
}

// stageOf classifies a read failure.
func stageOf(err error) Stage {
	switch errs.CodeOf(err) {
	case errs.CodeParseFailed:
		return StageParse
	case errs.CodeFormatUnresolved:
		return StageResolve
	default:
		return StageFetch
	}
}
