package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dshills/diffgate/internal/gate"
)

// Rule ids reported in SARIF output.
const (
	RuleFormatting     = "diffgate/formatting"
	RuleFormatterCrash = "diffgate/formatter-failure"
)

// SARIFWriter outputs edits and formatter failures in SARIF v2.1.0 format.
// Each edit carries a fix that replaces the reported lines.
type SARIFWriter struct{}

func (s *SARIFWriter) Write(w io.Writer, report *gate.Report) error {
	sarif := buildSARIF(report)
	data, err := json.MarshalIndent(sarif, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling SARIF: %w", err)
	}
	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("writing SARIF: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

// SARIF schema types (v2.1.0)

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool               sarifTool               `json:"tool"`
	AutomationDetails  *sarifAutomationDetails `json:"automationDetails,omitempty"`
	OriginalURIBaseIDs map[string]sarifURIBase `json:"originalUriBaseIds,omitempty"`
	Results            []sarifResult           `json:"results"`
}

type sarifAutomationDetails struct {
	ID string `json:"id"`
}

type sarifURIBase struct {
	URI string `json:"uri"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	ShortDescription sarifMessage       `json:"shortDescription"`
	DefaultConfig    sarifDefaultConfig `json:"defaultConfiguration"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
	Fixes     []sarifFix      `json:"fixes,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI       string `json:"uri"`
	URIBaseID string `json:"uriBaseId,omitempty"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine"`
}

type sarifFix struct {
	Description     sarifMessage          `json:"description"`
	ArtifactChanges []sarifArtifactChange `json:"artifactChanges"`
}

type sarifArtifactChange struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Replacements     []sarifReplacement    `json:"replacements"`
}

type sarifReplacement struct {
	DeletedRegion   sarifRegion   `json:"deletedRegion"`
	InsertedContent *sarifContent `json:"insertedContent,omitempty"`
}

type sarifContent struct {
	Text string `json:"text"`
}

const srcRoot = "SRCROOT"

func buildSARIF(report *gate.Report) sarifLog {
	results := make([]sarifResult, 0, len(report.Edits)+len(report.Failures))

	for _, e := range report.Edits {
		artifact := sarifArtifactLocation{URI: e.Path, URIBaseID: srcRoot}
		region := sarifRegion{StartLine: e.Range.Start, EndLine: e.Range.End}
		result := sarifResult{
			RuleID:  RuleFormatting,
			Level:   "error",
			Message: sarifMessage{Text: fmt.Sprintf("Changed lines %s are not formatted", e.Range)},
			Locations: []sarifLocation{{
				PhysicalLocation: sarifPhysicalLocation{ArtifactLocation: artifact, Region: &region},
			}},
		}
		repl := sarifReplacement{DeletedRegion: region}
		if len(e.ReplacementLines) > 0 {
			repl.InsertedContent = &sarifContent{Text: strings.Join(e.ReplacementLines, "")}
		}
		result.Fixes = []sarifFix{{
			Description: sarifMessage{Text: "Apply formatter output"},
			ArtifactChanges: []sarifArtifactChange{{
				ArtifactLocation: artifact,
				Replacements:     []sarifReplacement{repl},
			}},
		}}
		results = append(results, result)
	}

	for _, f := range report.Failures {
		results = append(results, sarifResult{
			RuleID:  RuleFormatterCrash,
			Level:   "warning",
			Message: sarifMessage{Text: fmt.Sprintf("%s failed: %s", f.Formatter, f.Message)},
			Locations: []sarifLocation{{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{URI: f.Path, URIBaseID: srcRoot},
				},
			}},
		})
	}

	run := sarifRun{
		Tool: sarifTool{
			Driver: sarifDriver{
				Name:           "diffgate",
				Version:        report.Version,
				InformationURI: "https://github.com/dshills/diffgate",
				Rules: []sarifRule{
					{
						ID:               RuleFormatting,
						Name:             "ChangedLinesNotFormatted",
						ShortDescription: sarifMessage{Text: "Changed lines differ from the formatter's output"},
						DefaultConfig:    sarifDefaultConfig{Level: "error"},
					},
					{
						ID:               RuleFormatterCrash,
						Name:             "FormatterFailed",
						ShortDescription: sarifMessage{Text: "The formatter could not process a changed file"},
						DefaultConfig:    sarifDefaultConfig{Level: "warning"},
					},
				},
			},
		},
		Results: results,
	}
	if report.RunID != "" {
		run.AutomationDetails = &sarifAutomationDetails{ID: "diffgate/" + report.RunID}
	}
	if report.Repo.Root != "" {
		run.OriginalURIBaseIDs = map[string]sarifURIBase{srcRoot: {URI: fileURI(report.Repo.Root)}}
	}

	return sarifLog{
		Version: "2.1.0",
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json",
		Runs:    []sarifRun{run},
	}
}

func fileURI(dir string) string {
	dir = strings.ReplaceAll(dir, `\`, "/")
	if !strings.HasPrefix(dir, "/") {
		dir = "/" + dir
	}
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return "file://" + dir
}
