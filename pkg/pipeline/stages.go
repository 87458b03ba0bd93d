package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"csvanalyst/pkg/charts"
	"csvanalyst/pkg/report"
	"csvanalyst/pkg/stats"
	"csvanalyst/pkg/tools"
	"csvanalyst/pkg/utils"
)

// DefaultStages returns the four analysis stages in run order: dataset context, data
// quality, visualization and report synthesis.
func DefaultStages() []Stage {
	return []Stage{
		DatasetContextStage(),
		DataQualityStage(),
		VisualizationStage(),
		ReportSynthesisStage(),
	}
}

// DatasetContextStage infers what the dataset is about from its columns and sample rows.
func DatasetContextStage() Stage {
	return Stage{
		ID:    StageDatasetContext,
		Title: "Dataset Context",
		Role:  "Dataset Context Specialist",
		Goal: "Infer the context and purpose of the dataset by analyzing column names, data types, " +
			"and a few sample rows. Extract insights about the domain and the type of data provided.",
		Backstory: "An expert in understanding datasets and identifying their purpose. You have a deep " +
			"understanding of data science, machine learning, and data analysis.",
		Instructions: `Analyze the dataset to determine its context, purpose, and structure. This includes:
- Examining column names: identify meaningful column names and categorize them by their likely data type (numerical, categorical, date-time, etc.).
- Sampling data: look at the sample rows to identify patterns, relationships between fields and potential anomalies.
- Domain and application: infer the dataset's domain, such as customer reviews, sales data or operational metrics, and suggest real-world applications.

Give stakeholders an intuitive understanding of the dataset and its potential uses without requiring them to read the raw data.`,
		ExpectedOutput: `A descriptive overview of the dataset's structure and purpose, highlighting:
- Data columns and their inferred roles.
- High-level insights into the type of data (for example transactional, temporal or categorical).
- Possible applications or use cases.`,
		Tools:   []string{tools.ToolReadCSV},
		Prepare: prepareColumnTypes,
	}
}

// DataQualityStage reports missing values, type problems and descriptive statistics.
func DataQualityStage() Stage {
	return Stage{
		ID:    StageDataQuality,
		Title: "Data Quality",
		Role:  "Data Cleaning Specialist",
		Goal: "Analyze the dataset to identify missing values, incorrect data types, and potential outliers. " +
			"Summarize statistics like mean, median, and correlations between variables.",
		Backstory: "Specializes in cleaning and preparing data for analysis with expertise in data cleaning and preprocessing.",
		Instructions: `Perform a comprehensive quality analysis of the dataset. This includes:
- Missing values: quantify missing data across all columns and suggest imputation or removal strategies.
- Data types: validate the inferred column types and explain which values do not fit their column's type.
- Outliers: point out numeric columns with outliers and what they might mean.
- Statistical summaries: interpret the descriptive statistics and correlations of the numerical columns.

Use the computed facts for every number you report; they cover the full dataset while the tool output shows only a sample.`,
		ExpectedOutput: `- A table or list of missing values and strategies for handling them.
- A summary of the identified data types and how to standardize them.
- Statistical summaries for key columns, including notable correlations between variables.
- Recommendations for further preprocessing.`,
		DependsOn: []string{StageDatasetContext},
		Tools:     []string{tools.ToolReadCSV},
		Prepare:   prepareProfile,
	}
}

// VisualizationStage renders the charts and has the model explain them.
func VisualizationStage() Stage {
	return Stage{
		ID:    StageVisualization,
		Title: "Visualization",
		Role:  "Visualization Expert",
		Goal: "Explain the insights shown by histograms, scatter plots, line plots, bar charts and heatmaps " +
			"generated from the dataset.",
		Backstory: "Specializes in creating compelling and informative visualizations and is capable of turning " +
			"charts into impactful data stories.",
		Instructions: `Charts have been generated from the dataset and saved as image files, as listed in the computed facts:
- Histograms for numerical columns show the distributions.
- Bar charts for categorical columns with few distinct values show frequencies.
- A correlation heatmap shows the correlations between numerical variables.
- Scatter and line plots show relationships and trends.

For each chart, explain in one or two sentences what it reveals about the data. Refer to charts by their title. Do not invent charts that are not listed.`,
		ExpectedOutput: `- One short paragraph per chart, titled with the chart title, describing the pattern it shows.
- A closing list of the most important patterns and relationships across the charts.`,
		DependsOn: []string{StageDatasetContext, StageDataQuality},
		Prepare:   prepareCharts,
	}
}

// ReportSynthesisStage merges the earlier results into the final markdown report.
func ReportSynthesisStage() Stage {
	return Stage{
		ID:    StageReportSynthesis,
		Title: "Report Synthesis",
		Role:  "Report Specialist",
		Goal: "Compile all findings, analysis, and visualizations into a structured markdown report " +
			"with clear sections for analysis and summary.",
		Backstory: "An expert in synthesizing data insights into polished reports.",
		Instructions: `Write the content of a detailed markdown report summarizing all analysis and visualizations. Start with a short executive summary, then use exactly these level-2 headings in this order:
- ## Dataset Overview: key insights from the context analysis, such as dataset structure and inferred purpose.
- ## Data Cleaning Summary: missing data, outliers and the cleaning steps recommended.
- ## Statistical Summary: a summary of the descriptive statistics (the computed tables are appended automatically).
- ## Visualizations: the insights from the charts (the chart images are embedded automatically).
- ## Recommendations: suggestions for further preprocessing, modeling or use cases for the dataset.

The report should be organized with a logical flow, written for stakeholders without technical expertise, and focused on actionable insights and takeaways.`,
		ExpectedOutput: `- A short executive summary followed by the five sections above.
- Actionable insights and recommendations.
- Markdown only; no image links.`,
		DependsOn: []string{StageDatasetContext, StageDataQuality, StageVisualization},
		Prepare:   prepareChartList,
		Emit:      emitReport,
	}
}

func prepareColumnTypes(_ context.Context, ws *Workspace, _ *Context) (Prepared, error) {
	if ws.Profile == nil {
		return Prepared{}, fmt.Errorf("dataset has not been profiled")
	}
	return Prepared{Facts: "Column types inferred from the full dataset:\n\n" + stats.FormatMissingTable(ws.Profile)}, nil
}

func prepareProfile(_ context.Context, ws *Workspace, _ *Context) (Prepared, error) {
	if ws.Profile == nil {
		return Prepared{}, fmt.Errorf("dataset has not been profiled")
	}
	return Prepared{Facts: stats.FormatMarkdown(ws.Profile)}, nil
}

func prepareCharts(ctx context.Context, ws *Workspace, _ *Context) (Prepared, error) {
	if ws.Profile == nil || ws.Dataset == nil {
		return Prepared{}, fmt.Errorf("dataset has not been loaded")
	}

	// The previous report links to the charts about to be replaced; it must not outlive them.
	if ws.ReportPath != "" {
		if err := utils.RemoveIfExists(ws.ReportPath); err != nil {
			return Prepared{}, err
		}
	}

	specs := charts.Plan(ws.Profile, ws.Charts)
	rendered, err := charts.Render(ctx, ws.Dataset, ws.Profile, specs, ws.Charts)
	if err != nil {
		return Prepared{}, err
	}

	artifacts := make([]Artifact, len(rendered))
	for i, c := range rendered {
		artifacts[i] = Artifact{
			Path:    c.Path,
			Kind:    ArtifactImage,
			Title:   c.Title,
			Caption: c.Caption,
		}
	}
	return Prepared{Facts: describeCharts(artifacts, ws.ReportPath), Artifacts: artifacts}, nil
}

func prepareChartList(_ context.Context, ws *Workspace, rc *Context) (Prepared, error) {
	return Prepared{Facts: describeCharts(rc.Artifacts(ArtifactImage), ws.ReportPath)}, nil
}

func describeCharts(images []Artifact, reportPath string) string {
	if len(images) == 0 {
		return "No charts were generated: the dataset has no columns suitable for plotting."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d charts were generated:\n\n", len(images))
	for _, img := range images {
		path := img.Path
		if reportPath != "" {
			path = utils.RelativeTo(filepath.Dir(reportPath), img.Path)
		}
		fmt.Fprintf(&b, "- **%s** (`%s`): %s\n", img.Title, path, img.Caption)
	}
	return b.String()
}

func emitReport(_ context.Context, ws *Workspace, rc *Context, res Result) ([]Artifact, error) {
	if ws.ReportPath == "" {
		return nil, fmt.Errorf("report path not set")
	}

	content := func(id string) string {
		r, _ := rc.Get(id)
		return r.Content
	}

	images := rc.Artifacts(ArtifactImage)
	embeds := make([]report.Image, len(images))
	for i, img := range images {
		embeds[i] = report.Image{Path: img.Path, Title: img.Title, Caption: img.Caption}
	}

	in := report.Input{
		RunID:          ws.RunID,
		Model:          ws.Model,
		GeneratedAt:    ws.StartedAt,
		ReportPath:     ws.ReportPath,
		Overview:       content(StageDatasetContext),
		Cleaning:       content(StageDataQuality),
		Visualizations: content(StageVisualization),
		Synthesis:      res.Content,
		Images:         embeds,
	}
	if ws.Dataset != nil {
		in.DatasetName = ws.Dataset.Name()
		in.Rows = ws.Dataset.NumRows()
		in.Columns = ws.Dataset.NumColumns()
	}
	if ws.Profile != nil {
		in.StatisticsTables = stats.FormatMarkdown(ws.Profile)
	}

	doc, err := report.Assemble(in)
	if err != nil {
		return nil, err
	}
	if err := report.Write(ws.ReportPath, doc); err != nil {
		return nil, err
	}
	return []Artifact{{Path: ws.ReportPath, Kind: ArtifactReport, Title: "Analysis report"}}, nil
}
