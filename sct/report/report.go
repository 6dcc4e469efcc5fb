// Package report renders the results of a run.
package report

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"

	"github.com/foxboron/go-uefi-sct/sct/assert"
	"github.com/foxboron/go-uefi-sct/sct/driver"
)

type Format string

const (
	Text  Format = "text"
	JSON  Format = "json"
	JUnit Format = "junit"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return Text, nil
	case Text, JSON, JUnit:
		return f, nil
	}
	return "", errors.Errorf("unknown report format %q", s)
}

// Write renders results to w.
func Write(w io.Writer, f Format, results []*driver.Result) error {
	switch f {
	case Text, "":
		return writeText(w, results)
	case JSON:
		return writeJSON(w, results)
	case JUnit:
		return writeJUnit(w, results)
	}
	return errors.Errorf("unknown report format %q", f)
}

// Summary totals the records of every result.
func Summary(results []*driver.Result) (assert.Counts, int) {
	var c assert.Counts
	aborted := 0
	for _, r := range results {
		s := assert.Summarize(r.Records)
		c.Passed += s.Passed
		c.Failed += s.Failed
		c.Warning += s.Warning
		if r.SetupErr != nil {
			aborted++
		}
	}
	return c, aborted
}

func writeText(w io.Writer, results []*driver.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.TestCase, r.GUID, r.State)
		for _, rec := range r.Records {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", rec.Outcome, rec.ID, rec.Title)
			if rec.Message != "" {
				fmt.Fprintf(tw, "  \t\t%s\n", rec.Message)
			}
		}
		if r.SetupErr != nil {
			fmt.Fprintf(tw, "  ABORT\t%s\t%v\n", r.SetupErr.Status, r.SetupErr.Err)
		}
		if r.Skipped > 0 {
			fmt.Fprintf(tw, "  SKIP\t%d checkpoints above the run level\t\n", r.Skipped)
		}
	}
	c, aborted := Summary(results)
	fmt.Fprintf(tw, "\n%d passed, %d failed, %d warnings, %d aborted\n", c.Passed, c.Failed, c.Warning, aborted)
	return tw.Flush()
}

type jsonResult struct {
	TestCase string          `json:"test_case"`
	GUID     string          `json:"guid"`
	State    string          `json:"state"`
	Duration string          `json:"duration"`
	Skipped  int             `json:"skipped,omitempty"`
	Setup    *jsonSetupError `json:"setup_error,omitempty"`
	Summary  assert.Counts   `json:"summary"`
	Records  []assert.Record `json:"records"`
}

type jsonSetupError struct {
	Checkpoint string `json:"checkpoint,omitempty"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

func writeJSON(w io.Writer, results []*driver.Result) error {
	out := make([]jsonResult, 0, len(results))
	for _, r := range results {
		jr := jsonResult{
			TestCase: r.TestCase,
			GUID:     r.GUID.String(),
			State:    r.State.String(),
			Duration: r.Duration.String(),
			Skipped:  r.Skipped,
			Summary:  assert.Summarize(r.Records),
			Records:  r.Records,
		}
		if jr.Records == nil {
			jr.Records = []assert.Record{}
		}
		if se := r.SetupErr; se != nil {
			jr.Setup = &jsonSetupError{Checkpoint: se.Checkpoint, Status: se.Status.String(), Message: fmt.Sprint(se.Err)}
		}
		out = append(out, jr)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

type junitSuites struct {
	XMLName  xml.Name     `xml:"testsuites"`
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Errors   int          `xml:"errors,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name     string      `xml:"name,attr"`
	ID       string      `xml:"id,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Errors   int         `xml:"errors,attr"`
	Skipped  int         `xml:"skipped,attr"`
	Time     string      `xml:"time,attr"`
	Cases    []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Failure   *junitMessage `xml:"failure,omitempty"`
	Error     *junitMessage `xml:"error,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

type junitMessage struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

func writeJUnit(w io.Writer, results []*driver.Result) error {
	doc := junitSuites{}
	for _, r := range results {
		s := junitSuite{
			Name:    r.TestCase,
			ID:      r.GUID.String(),
			Skipped: r.Skipped,
			Time:    seconds(r.Duration),
		}
		for _, rec := range r.Records {
			c := junitCase{
				Name:      fmt.Sprintf("%s [%s]", rec.Title, rec.ID),
				Classname: r.TestCase,
			}
			switch rec.Outcome {
			case assert.Failed:
				c.Failure = &junitMessage{Message: rec.Message, Type: "FAIL", Body: rec.Location}
				s.Failures++
			case assert.Warning:
				c.SystemOut = "WARN: " + rec.Message
			}
			s.Cases = append(s.Cases, c)
		}
		if se := r.SetupErr; se != nil {
			s.Cases = append(s.Cases, junitCase{
				Name:      "setup",
				Classname: r.TestCase,
				Error:     &junitMessage{Message: fmt.Sprint(se.Err), Type: se.Status.String(), Body: se.Error()},
			})
			s.Errors++
		}
		s.Tests = len(s.Cases)
		doc.Tests += s.Tests
		doc.Failures += s.Failures
		doc.Errors += s.Errors
		doc.Suites = append(doc.Suites, s)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "encoding junit report")
	}
	_, err := io.WriteString(w, "\n")
	return err
}
