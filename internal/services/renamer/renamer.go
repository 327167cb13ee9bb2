// -----------------------------------------------------------------------
// Renamer - maps extracted document text plus crawl context to a structured
// canonical filename via one Claude call.
// -----------------------------------------------------------------------

package renamer

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nyushi/internal/common"
	"github.com/ternarybob/nyushi/internal/interfaces"
	"github.com/ternarybob/nyushi/internal/models"
)

var jsonObjectRE = regexp.MustCompile(`(?s)\{.*\}`)
var illegalCharsRE = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]+`)
var underscoreRunsRE = regexp.MustCompile(`_+`)

const systemPrompt = `You assign a canonical filename to a university admissions document. Given the document's extracted text and where it was found, respond with a JSON object only:
{"name": "...", "fields": {"university": "...", "department": "...", "major": "...", "course": "...", "year": "...", "semester": "...", "doc_type": "...", "detail": "..."}, "confidence": 0.0}
Use the literal string "Unknown" for any field you cannot determine. name should be "{university}_{department}_{major}_{course}_{year}_{semester}_{doc_type}_{detail}" with the original file extension appended. Respond with JSON only, no surrounding prose.`

// Adapter implements interfaces.Renamer via one Claude chat completion per
// file, tolerating stray prose in the response.
type Adapter struct {
	logger arbor.ILogger
	llm    interfaces.LLMService
	config common.RenameConfig
}

// NewAdapter builds a Renamer bound to llm and config.
func NewAdapter(logger arbor.ILogger, config common.RenameConfig, llm interfaces.LLMService) *Adapter {
	return &Adapter{logger: logger, llm: llm, config: config}
}

var _ interfaces.Renamer = (*Adapter)(nil)

// Rename asks the LLM for a structured name, overrides the university field
// with rnCtx.SchoolName when the catalog already knows it authoritatively,
// and post-processes the result (illegal chars -> "_", collapsed runs,
// trimmed, forced extension).
func (a *Adapter) Rename(ctx context.Context, text string, rnCtx interfaces.RenameContext) (*interfaces.RenameResult, error) {
	maxLen := a.config.MaxTextLen
	if maxLen <= 0 {
		maxLen = 8000
	}
	if len(text) > maxLen {
		text = text[:maxLen]
	}

	messages := []interfaces.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf(
			"url: %s\nbreadcrumb: %s\nparent_title: %s\noriginal_name: %s\n\ntext:\n%s",
			rnCtx.URL, rnCtx.Breadcrumb, rnCtx.ParentTitle, rnCtx.OriginalName, text,
		)},
	}

	resp, err := a.llm.Chat(ctx, messages)
	if err != nil {
		return &interfaces.RenameResult{Err: fmt.Errorf("renamer llm call failed: %w", err)}, nil
	}

	parsed := extractJSONObject(resp)
	if !parsed.Exists() {
		return &interfaces.RenameResult{RawResponse: resp, Err: fmt.Errorf("renamer: no valid json object in response")}, nil
	}

	fields := models.NameFields{
		University: parsed.Get("fields.university").String(),
		Department: parsed.Get("fields.department").String(),
		Major:      parsed.Get("fields.major").String(),
		Course:     parsed.Get("fields.course").String(),
		Year:       parsed.Get("fields.year").String(),
		Semester:   parsed.Get("fields.semester").String(),
		DocType:    parsed.Get("fields.doc_type").String(),
		Detail:     parsed.Get("fields.detail").String(),
	}
	confidence := parsed.Get("confidence").Float()
	name := parsed.Get("name").String()

	if rnCtx.SchoolName != "" {
		fields.University = rnCtx.SchoolName
	}
	fields = fields.Normalize()

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(rnCtx.OriginalName), "."))
	if name == "" {
		name = nameFromFields(fields)
	} else if rnCtx.SchoolName != "" {
		name = rewriteLeadingComponent(name, fields.University)
	}
	name = postProcessName(name, ext)

	return &interfaces.RenameResult{
		Name:        name,
		Fields:      fields,
		Confidence:  confidence,
		RawResponse: resp,
	}, nil
}

// extractJSONObject tries gjson against the raw response first (handles a
// clean JSON reply), then falls back to pulling the first {...} substring
// out of surrounding prose, which is what LLMs tend to add despite
// instructions not to.
func extractJSONObject(resp string) gjson.Result {
	trimmed := strings.TrimSpace(resp)
	if gjson.Valid(trimmed) {
		return gjson.Parse(trimmed)
	}

	if m := jsonObjectRE.FindString(resp); m != "" && gjson.Valid(m) {
		return gjson.Parse(m)
	}

	return gjson.Result{}
}

func nameFromFields(f models.NameFields) string {
	p := f.Positions()
	return strings.Join(p[:], "_")
}

func rewriteLeadingComponent(name, university string) string {
	parts := strings.SplitN(name, "_", 2)
	if len(parts) != 2 {
		return name
	}
	return university + "_" + parts[1]
}

// postProcessName normalizes a candidate name into a safe filename stem:
// illegal path characters become "_", runs of "_" collapse to one,
// leading/trailing "_" trim off, and the original extension is forced
// onto the end.
func postProcessName(name, ext string) string {
	name = strings.TrimSuffix(name, path.Ext(name))
	name = illegalCharsRE.ReplaceAllString(name, "_")
	name = underscoreRunsRE.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")

	if ext == "" {
		return name
	}
	return name + "." + ext
}
