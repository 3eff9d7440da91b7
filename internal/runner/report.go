package runner

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"pkt.systems/pslog"
)

// Reporter names understood by the engine.
const (
	ReporterCLI   = "cli"
	ReporterJSON  = "json"
	ReporterHTML  = "html"
	ReporterJUnit = "junit"
)

// ReportExtension returns the file extension used by a file reporter.
func ReportExtension(name string) string {
	switch name {
	case ReporterJUnit:
		return "xml"
	case ReporterJSON, ReporterHTML:
		return name
	}
	return ""
}

// maskedHeaders are replaced with asterisks in every report.
var maskedHeaders = []string{"authorization", "proxy-authorization", "cookie", "set-cookie"}

// FilterReportHeaders returns a copy of sum prepared for reporters: with
// skipAll every header is dropped, otherwise headers named in skipList
// (case-insensitive) are removed and credentials are masked.
func FilterReportHeaders(sum Summary, skipAll bool, skipList []string) Summary {
	drop := make(map[string]bool, len(skipList))
	for _, h := range skipList {
		drop[strings.ToLower(strings.TrimSpace(h))] = true
	}
	filter := func(h map[string]string) map[string]string {
		if h == nil || skipAll {
			return nil
		}
		out := make(map[string]string, len(h))
		for k, v := range h {
			switch lk := strings.ToLower(k); {
			case drop[lk]:
			case slices.Contains(maskedHeaders, lk):
				out[k] = "********"
			default:
				out[k] = v
			}
		}
		return out
	}
	out := sum
	out.Executions = slices.Clone(sum.Executions)
	for i := range out.Executions {
		ex := &out.Executions[i]
		ex.RequestHeaders = filter(ex.RequestHeaders)
		ex.ResponseHeaders = filter(ex.ResponseHeaders)
	}
	return out
}

// writeReports runs every requested reporter in order. Unknown names are
// logged and skipped.
func writeReports(sum Summary, opts RunOptions, logger pslog.Base) error {
	filtered := FilterReportHeaders(sum, opts.ReporterSkipAllHeaders, opts.ReporterSkipHeaders)
	for _, name := range opts.Reporters {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "":
			continue
		case ReporterCLI:
			reportCLI(filtered, logger)
		case ReporterJSON, ReporterHTML, ReporterJUnit:
			path := opts.ReporterOptions[name].Export
			if path == "" {
				path = filepath.Join("newman", "newman-report."+ReportExtension(name))
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("%s reporter: %w", name, err)
			}
			if err := WriteReport(name, path, filtered); err != nil {
				return fmt.Errorf("%s reporter: %w", name, err)
			}
			logger.Debug("report written", "reporter", name, "path", path)
		default:
			logger.Warn("unknown reporter, skipping", "reporter", name)
		}
	}
	return nil
}

// reportCLI logs one line per request and one per assertion.
func reportCLI(sum Summary, logger pslog.Base) {
	for _, ex := range sum.Executions {
		name := strings.Join(append(append([]string{}, ex.Folder...), ex.Item), " / ")
		switch {
		case ex.Skipped:
			logger.Info("request skipped", "iter", ex.Iteration+1, "item", name)
			continue
		case ex.ErrorText != "":
			logger.Error("request failed", "iter", ex.Iteration+1, "item", name, "method", ex.Method, "url", ex.URL, "err", ex.ErrorText)
		default:
			logger.Info("request", "iter", ex.Iteration+1, "item", name, "method", ex.Method, "url", ex.URL,
				"status", ex.Code, "size", ex.ResponseSize, "ms", ex.ResponseTime.Milliseconds())
		}
		for _, a := range ex.Assertions {
			switch {
			case a.Skipped:
				logger.Info("skipped", "item", name, "test", a.Name)
			case a.Passed:
				logger.Info("passed", "item", name, "test", a.Name)
			default:
				logger.Warn("failed", "item", name, "test", a.Name, "err", a.Error)
			}
		}
	}
}

// WriteReportJSON writes a Summary to a JSON file.
func WriteReportJSON(path string, sum Summary) error {
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

type junitTestsuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Name     string           `xml:"name,attr"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Errors   int              `xml:"errors,attr"`
	Time     string           `xml:"time,attr"`
	Suites   []junitTestsuite `xml:"testsuite"`
}

type junitTestsuite struct {
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Errors   int             `xml:"errors,attr"`
	Skipped  int             `xml:"skipped,attr"`
	Time     string          `xml:"time,attr"`
	Cases    []junitTestcase `xml:"testcase"`
}

type junitTestcase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Error     *junitFailure `xml:"error,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// WriteReportJUnit writes one testsuite per request execution with a testcase
// per assertion.
func WriteReportJUnit(path string, sum Summary) error {
	root := junitTestsuites{
		Name: sum.Collection,
		Time: fmt.Sprintf("%.3f", sum.Elapsed().Seconds()),
	}
	for _, ex := range sum.Executions {
		suiteName := strings.Join(append(append([]string{}, ex.Folder...), ex.Item), " / ")
		suite := junitTestsuite{
			Name: suiteName,
			Time: fmt.Sprintf("%.3f", ex.ResponseTime.Seconds()),
		}
		class := fmt.Sprintf("%s.iteration%d", sum.Collection, ex.Iteration+1)
		if ex.ErrorText != "" {
			suite.Errors++
			suite.Cases = append(suite.Cases, junitTestcase{
				Name:      suiteName,
				Classname: class,
				Time:      suite.Time,
				Error:     &junitFailure{Message: ex.ErrorText, Type: ErrRequest, Body: ex.ErrorText},
			})
		}
		for _, a := range ex.Assertions {
			tc := junitTestcase{Name: a.Name, Classname: class, Time: "0.000"}
			switch {
			case a.Skipped:
				suite.Skipped++
				tc.Skipped = &junitSkipped{}
			case !a.Passed:
				suite.Failures++
				tc.Failure = &junitFailure{Message: a.Error, Type: ErrAssertion, Body: a.Error}
			}
			suite.Cases = append(suite.Cases, tc)
		}
		suite.Tests = len(suite.Cases)
		root.Tests += suite.Tests
		root.Failures += suite.Failures
		root.Errors += suite.Errors
		root.Suites = append(root.Suites, suite)
	}
	data, err := xml.MarshalIndent(root, "", "  ")
	if err != nil {
		return err
	}
	data = append([]byte(xml.Header), data...)
	return os.WriteFile(path, data, 0o644)
}

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"join": strings.Join,
	"inc":  func(i int) int { return i + 1 },
}).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Collection}} report</title>
  <style>
    body { font: 14px/1.4 system-ui, sans-serif; margin: 24px; color: #222; }
    h1, h2 { font-weight: 600; }
    .summary { color: #555; margin: 0 0 20px; }
    table { border-collapse: collapse; width: 100%; margin: 0 0 20px; }
    th, td { border-bottom: 1px solid #ddd; padding: 6px 8px; text-align: left; vertical-align: top; }
    thead th { border-bottom: 2px solid #999; }
    .status-pass { color: #1b7f3b; }
    .status-fail { color: #b3261e; font-weight: 600; }
    .status-skip { color: #888; }
    .mono { font-family: ui-monospace, monospace; font-size: 12px; color: #555; }
  </style>
</head>
<body>
  <h1>{{.Collection}}</h1>
  <p class="summary">Started {{.Started.Format "2006-01-02 15:04:05"}}, took {{.Elapsed}}</p>
  <table>
    <thead><tr><th></th><th>Total</th><th>Failed</th></tr></thead>
    <tbody>
      <tr><td>Iterations</td><td>{{.Stats.Iterations.Total}}</td><td>{{.Stats.Iterations.Failed}}</td></tr>
      <tr><td>Requests</td><td>{{.Stats.Requests.Total}}</td><td>{{.Stats.Requests.Failed}}</td></tr>
      <tr><td>Prerequest scripts</td><td>{{.Stats.PrerequestScripts.Total}}</td><td>{{.Stats.PrerequestScripts.Failed}}</td></tr>
      <tr><td>Test scripts</td><td>{{.Stats.TestScripts.Total}}</td><td>{{.Stats.TestScripts.Failed}}</td></tr>
      <tr><td>Assertions</td><td>{{.Stats.Assertions.Total}}</td><td>{{.Stats.Assertions.Failed}}</td></tr>
    </tbody>
  </table>
  <table>
    <thead>
      <tr>
        <th>Iteration</th>
        <th>Request</th>
        <th>Status</th>
        <th>Time</th>
        <th>Assertions</th>
      </tr>
    </thead>
    <tbody>
      {{range .Executions}}
      <tr>
        <td>{{inc .Iteration}}</td>
        <td>{{if .Folder}}{{join .Folder " / "}} / {{end}}{{.Item}}<div class="mono">{{.Method}} {{.URL}}</div></td>
        <td>
          {{if .Skipped}}<span class="status-skip">skipped</span>{{else if .ErrorText}}<span class="status-fail">{{.ErrorText}}</span>{{else}}{{.Code}} {{.Status}}{{end}}
        </td>
        <td>{{.ResponseTime}}</td>
        <td>
          {{range .Assertions}}
          <div>{{if .Skipped}}<span class="status-skip">skipped</span>{{else if .Passed}}<span class="status-pass">passed</span>{{else}}<span class="status-fail">failed</span>{{end}} {{.Name}}{{if .Error}} <span class="mono">{{.Error}}</span>{{end}}</div>
          {{end}}
        </td>
      </tr>
      {{end}}
    </tbody>
  </table>
  {{if .Failures}}
  <h2>Failures</h2>
  <table>
    <thead><tr><th>#</th><th>Error</th><th>Source</th><th>Message</th></tr></thead>
    <tbody>
      {{range $i, $f := .Failures}}
      <tr>
        <td>{{inc $i}}</td>
        <td>{{$f.Error.Name}}</td>
        <td>{{if $f.Source}}{{$f.Source.Name}}{{else}}Unknown{{end}}</td>
        <td class="mono">{{if $f.Error.Test}}{{$f.Error.Test}}: {{end}}{{$f.Error.Message}}</td>
      </tr>
      {{end}}
    </tbody>
  </table>
  {{end}}
</body>
</html>`))

// WriteReportHTML renders the summary as a standalone HTML page.
func WriteReportHTML(path string, sum Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return htmlTemplate.Execute(f, sum)
}

var reportWriters = map[string]func(string, Summary) error{
	ReporterJSON:  WriteReportJSON,
	ReporterJUnit: WriteReportJUnit,
	ReporterHTML:  WriteReportHTML,
}

// WriteReport writes sum to path in the json, junit or html format. An
// empty format means json.
func WriteReport(format, path string, sum Summary) error {
	format = strings.ToLower(format)
	if format == "" {
		format = ReporterJSON
	}
	write, ok := reportWriters[format]
	if !ok {
		return fmt.Errorf("unsupported report format %q", format)
	}
	return write(path, sum)
}
