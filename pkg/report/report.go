// Package report assembles the final markdown report from the stage results.
//
// The document always has the same shape: a title, a metadata line, an optional summary and
// exactly five level-2 sections in a fixed order. Model text is inserted with its level-1
// and level-2 headings demoted so it cannot add or reorder sections.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"csvanalyst/pkg/templates"
	"csvanalyst/pkg/utils"
)

// Section titles in report order.
const (
	SectionOverview        = "Dataset Overview"
	SectionCleaning        = "Data Cleaning Summary"
	SectionStatistics      = "Statistical Summary"
	SectionVisualizations  = "Visualizations"
	SectionRecommendations = "Recommendations"
)

// Sections lists the report's level-2 sections in order.
//
//nolint:gochecknoglobals // Static section order
var Sections = []string{SectionOverview, SectionCleaning, SectionStatistics, SectionVisualizations, SectionRecommendations}

// ErrMissingImage is returned when a chart to embed does not exist on disk.
var ErrMissingImage = errors.New("referenced image does not exist")

const notAvailable = "_Not available for this run._"

//nolint:gochecknoglobals // Embedded templates parsed once
var renderer = templates.MustNewRenderer()

// Image is a chart to embed in the Visualizations section.
type Image struct {
	Path    string
	Title   string
	Caption string
}

// Input is everything the report is built from.
//
//nolint:govet // grouped by report section
type Input struct {
	// Title defaults to "CSV Analysis Report: <DatasetName>".
	Title       string
	DatasetName string
	Rows        int
	Columns     int
	RunID       string
	Model       string
	GeneratedAt time.Time
	// ReportPath is where the report will be written; image links are made relative to its
	// directory.
	ReportPath string

	// Stage texts used when the synthesis does not provide the matching section.
	Overview       string
	Cleaning       string
	Visualizations string
	// Synthesis is the report stage's text. Headings that name a report section supply that
	// section; text before the first such heading becomes the summary.
	Synthesis string

	// StatisticsTables are the computed tables appended to the Statistical Summary.
	StatisticsTables string
	Images           []Image
}

// Assemble builds the report markdown. It fails with ErrMissingImage when an image in
// in.Images does not exist. Image links the model wrote itself are kept only when they resolve
// to an existing file; otherwise their alt text is kept.
func Assemble(in Input) (string, error) {
	reportDir := filepath.Dir(in.ReportPath)

	for _, img := range in.Images {
		if _, err := os.Stat(img.Path); err != nil {
			return "", fmt.Errorf("%w: %s", ErrMissingImage, img.Path)
		}
	}

	summary, provided := SplitSections(in.Synthesis)
	clean := func(text string) string {
		return strings.TrimSpace(DemoteHeadings(dropBrokenImages(text, reportDir)))
	}
	pick := func(section, fallback string) string {
		if body := clean(provided[section]); body != "" {
			return body
		}
		return clean(fallback)
	}

	stats := joinBlocks(pick(SectionStatistics, ""), strings.TrimSpace(in.StatisticsTables))
	visuals := joinBlocks(pick(SectionVisualizations, in.Visualizations), imageBlock(in.Images, reportDir))

	bodies := map[string]string{
		SectionOverview:        pick(SectionOverview, in.Overview),
		SectionCleaning:        pick(SectionCleaning, in.Cleaning),
		SectionStatistics:      stats,
		SectionVisualizations:  visuals,
		SectionRecommendations: pick(SectionRecommendations, ""),
	}

	sections := make([]templates.Section, len(Sections))
	for i, title := range Sections {
		body := bodies[title]
		if body == "" {
			body = notAvailable
		}
		sections[i] = templates.Section{Title: title, Body: body}
	}

	title := in.Title
	if title == "" {
		title = "CSV Analysis Report: " + in.DatasetName
	}

	return renderer.Render(templates.ReportTemplate, &templates.TemplateData{
		Title:    title,
		Meta:     metaLine(in),
		Summary:  clean(summary),
		Sections: sections,
	})
}

// Write stores the report at path atomically, replacing any earlier report.
func Write(path, doc string) error {
	if err := utils.WriteFileAtomic(path, []byte(doc), 0644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

func metaLine(in Input) string {
	parts := []string{fmt.Sprintf("Dataset %s, %d rows by %d columns", in.DatasetName, in.Rows, in.Columns)}
	if in.Model != "" {
		parts = append(parts, "model "+in.Model)
	}
	if in.RunID != "" {
		parts = append(parts, "run "+in.RunID)
	}
	generated := in.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	parts = append(parts, "generated "+generated.UTC().Format("2006-01-02 15:04 MST"))
	return strings.Join(parts, " | ")
}

func imageBlock(images []Image, reportDir string) string {
	if len(images) == 0 {
		return "_No charts were produced for this dataset._"
	}
	blocks := make([]string, 0, len(images))
	for _, img := range images {
		block := fmt.Sprintf("![%s](%s)", escapeAlt(img.Title), utils.RelativeTo(reportDir, img.Path))
		if img.Caption != "" {
			block += "\n\n*" + img.Caption + "*"
		}
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n")
}

func joinBlocks(blocks ...string) string {
	nonEmpty := blocks[:0:0]
	for _, b := range blocks {
		if b != "" {
			nonEmpty = append(nonEmpty, b)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

func escapeAlt(s string) string {
	return strings.NewReplacer("[", "(", "]", ")").Replace(s)
}

//nolint:gochecknoglobals // Compiled patterns
var (
	headingPattern  = regexp.MustCompile(`^(#{1,6})[ \t]+(.*?)[ \t#]*$`)
	imagePattern    = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)
	numberingPrefix = regexp.MustCompile(`^[0-9ivx]+[.)]?\s+`)
	setextUnderline = regexp.MustCompile(`^ {0,3}(=+|-+)[ \t]*$`)
	listItem        = regexp.MustCompile(`^([-*+]|[0-9]+[.)])(\s|$)`)
)

func isFence(trimmed string) bool {
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

// atxHeadings rewrites setext headings (a paragraph line underlined with = or -) as level-1
// and level-2 ATX headings and drops the underline. Fenced code blocks are left untouched.
func atxHeadings(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	inFence := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if isFence(trimmed) {
			inFence = !inFence
			out = append(out, line)
			continue
		}
		if !inFence && len(out) > 0 && setextTitle(out[len(out)-1]) {
			if m := setextUnderline.FindStringSubmatch(strings.TrimRight(line, "\r")); m != nil {
				level := "#"
				if m[1][0] == '-' {
					level = "##"
				}
				out[len(out)-1] = level + " " + strings.TrimSpace(out[len(out)-1])
				continue
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// setextTitle reports whether line can be the text of a setext heading.
func setextTitle(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || len(line)-len(strings.TrimLeft(line, " ")) > 3 {
		return false
	}
	switch trimmed[0] {
	case '#', '|', '>':
		return false
	}
	return !isFence(trimmed) && !listItem.MatchString(trimmed) && setextUnderline.FindString(trimmed) == ""
}

// DemoteHeadings rewrites level-1 and level-2 headings, ATX or setext, as level-3 ATX
// headings. Fenced code blocks are left untouched.
func DemoteHeadings(text string) string {
	lines := strings.Split(atxHeadings(text), "\n")
	inFence := false
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " ")
		if isFence(trimmed) {
			inFence = !inFence
			continue
		}
		if inFence || len(line)-len(trimmed) > 3 {
			continue
		}
		if m := headingPattern.FindStringSubmatch(trimmed); m != nil && len(m[1]) <= 2 {
			lines[i] = "### " + m[2]
		}
	}
	return strings.Join(lines, "\n")
}

// SplitSections splits text at headings that name a report section. It returns the text
// before the first such heading and each named section's text. Other headings stay in the
// text of the section they appear in. A section named twice keeps both texts in order.
func SplitSections(text string) (string, map[string]string) {
	sections := make(map[string]string)
	var (
		preamble strings.Builder
		current  string
		body     strings.Builder
	)
	flush := func() {
		if current == "" {
			preamble.WriteString(body.String())
		} else {
			sections[current] = joinBlocks(strings.TrimSpace(sections[current]), strings.TrimSpace(body.String()))
		}
		body.Reset()
	}

	inFence := false
	for _, line := range strings.SplitAfter(atxHeadings(text), "\n") {
		trimmed := strings.TrimSpace(line)
		if isFence(trimmed) {
			inFence = !inFence
		}
		if !inFence {
			if m := headingPattern.FindStringSubmatch(trimmed); m != nil {
				if section := matchSection(m[2]); section != "" {
					flush()
					current = section
					continue
				}
			}
		}
		body.WriteString(line)
	}
	flush()

	return strings.TrimSpace(preamble.String()), sections
}

// matchSection returns the report section a heading names, or "".
func matchSection(heading string) string {
	key := normalizeTitle(heading)
	for _, s := range Sections {
		if key == normalizeTitle(s) {
			return s
		}
	}
	switch key {
	case "overview", "datasetcontext", "datasetoverviewandpurpose":
		return SectionOverview
	case "datacleaning", "dataquality", "datacleaningsummaryandquality", "cleaningsummary":
		return SectionCleaning
	case "statistics", "statisticalanalysis", "descriptivestatistics":
		return SectionStatistics
	case "visualisations", "charts", "visualizationsandinsights":
		return SectionVisualizations
	case "recommendation", "recommendationsandnextsteps", "nextsteps":
		return SectionRecommendations
	}
	return ""
}

func normalizeTitle(s string) string {
	s = strings.ToLower(strings.TrimSpace(strings.Trim(s, "*_ ")))
	s = numberingPrefix.ReplaceAllString(s, "")
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// dropBrokenImages replaces image links whose local target does not exist with their alt
// text. Remote links are kept.
func dropBrokenImages(text, reportDir string) string {
	return imagePattern.ReplaceAllStringFunc(text, func(match string) string {
		m := imagePattern.FindStringSubmatch(match)
		alt, target := m[1], m[2]
		if strings.Contains(target, "://") || strings.HasPrefix(target, "data:") {
			return match
		}
		path := filepath.FromSlash(target)
		if !filepath.IsAbs(path) {
			path = filepath.Join(reportDir, path)
		}
		if _, err := os.Stat(path); err == nil {
			return match
		}
		if alt == "" {
			return ""
		}
		return "*" + alt + "*"
	})
}
