// Command validate checks a job file offline: it resolves the region and
// years, builds the composite request for every year, and verifies that the
// output file names are unique. Nothing is submitted.
//
// Usage:
//
//	go run ./cmd/validate -job albemarle.hcl
//	go run ./cmd/validate -v
//
// Without -job the built-in Albemarle Peninsula job is checked.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/couchcryptid/ndvi-export/internal/config"
	"github.com/couchcryptid/ndvi-export/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	jobPath := flag.String("job", "", "HCL job file (default: built-in Albemarle job)")
	verbose := flag.Bool("v", false, "print the planned request for every year")
	flag.Parse()

	os.Exit(run(*jobPath, *verbose, os.Stdout))
}

func run(jobPath string, verbose bool, out io.Writer) int {
	fmt.Fprintln(out, "=== NDVI Export Job Validation ===")
	fmt.Fprintln(out)

	job := config.DefaultJob()
	load := &phase{name: "Job file"}
	if jobPath != "" {
		var err error
		if job, err = config.LoadJob(jobPath); err != nil {
			load.errorf("%v", err)
		}
	} else if err := job.Validate(); err != nil {
		load.errorf("%v", err)
	}

	phases := []*phase{load}
	if load.passed() {
		resolve, region, years := validateResolve(job)
		phases = append(phases, resolve)
		if resolve.passed() {
			build, plans := validateBuild(job, region, years)
			phases = append(phases, build, validateFileNames(plans))
			if verbose {
				printPlans(out, plans)
			}
		}
	}

	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-30s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for _, e := range p.errors {
			fmt.Fprintf(out, "  %s\n", e)
		}
	}

	if !allPassed {
		return 1
	}
	return 0
}

// plan is the request that would be submitted for one year.
type plan struct {
	year     int
	fileName string
	req      domain.CompositeRequest
	err      error
}

func validateResolve(job config.Job) (*phase, domain.Region, domain.YearRange) {
	p := &phase{name: "Region and years"}
	region, years, err := domain.Resolve(job.Region, job.Years)
	if err != nil {
		p.errorf("%v", err)
	}
	return p, region, years
}

func validateBuild(job config.Job, region domain.Region, years domain.YearRange) (*phase, []plan) {
	p := &phase{name: "Composite requests"}
	plans := make([]plan, 0, len(years))
	for _, year := range years {
		req, err := domain.BuildRequest(year, region, job.Export)
		if err != nil {
			p.errorf("year %d: %v", year, err)
		}
		plans = append(plans, plan{
			year:     year,
			fileName: domain.FileName(job.Prefix, year, region.Label),
			req:      req,
			err:      err,
		})
	}
	return p, plans
}

func validateFileNames(plans []plan) *phase {
	p := &phase{name: "Unique file names"}
	seen := make(map[string]int, len(plans))
	for _, pl := range plans {
		if prev, ok := seen[pl.fileName]; ok {
			p.errorf("%s used by %d and %d", pl.fileName, prev, pl.year)
			continue
		}
		seen[pl.fileName] = pl.year
	}
	return p
}

func printPlans(out io.Writer, plans []plan) {
	for _, pl := range plans {
		if pl.err != nil {
			fmt.Fprintf(out, "  %d  %-28s  no request: %v\n", pl.year, pl.fileName, pl.err)
			continue
		}
		sensors := make([]string, len(pl.req.Sources))
		for i, s := range pl.req.Sources {
			sensors[i] = s.Sensor
		}
		fmt.Fprintf(out, "  %d  %-28s  %s  [%s]\n", pl.year, pl.fileName, pl.req.Key, strings.Join(sensors, ", "))
	}
	fmt.Fprintln(out)
}
