// Package parser extracts structured blocks from raw model output: tool
// requests, plans, task lists, worker requests, and state-change requests.
// All blocks are XML embedded in free text; a parse failure on one block
// never prevents extraction of its siblings.
package parser

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
)

// Block tags recognized in model output.
const (
	tagToolRequests  = "tool_requests"
	tagPlan          = "plan"
	tagTaskList      = "task_list"
	tagWorkerRequest = "create_worker_request"
	tagStateChange   = "state_change"
)

// ToolCallResult is the outcome of ParseToolCalls. OK is true iff at least
// one well-formed call was found; Err carries the reason otherwise.
type ToolCallResult struct {
	OK    bool
	Calls []models.ToolCall
	Err   error
}

// Parser extracts structured blocks from model text. Parse failures are
// logged at debug and surfaced through return values, never as panics.
type Parser struct {
	logger *logger.Logger
}

// New creates a parser.
func New(log *logger.Logger) *Parser {
	return &Parser{logger: log.WithFields(zap.String("component", "tool_parser"))}
}

// ParseToolCalls extracts tool calls from a <tool_requests> block. When the
// block is present but malformed, a degraded delimiter scan recovers a single
// call if a <name> element exists; recovered calls are flagged as fallback.
func (p *Parser) ParseToolCalls(text string) ToolCallResult {
	block, found := extractBlock(text, tagToolRequests)
	if !found {
		return ToolCallResult{Err: fmt.Errorf("no <%s> block found", tagToolRequests)}
	}

	var parsed toolRequestsBlock
	if err := xml.Unmarshal([]byte(block), &parsed); err != nil {
		p.logger.Debug("structured tool call parse failed, trying fallback", zap.Error(err))
		if call, ok := p.fallbackToolCall(block); ok {
			return ToolCallResult{OK: true, Calls: []models.ToolCall{call}}
		}
		return ToolCallResult{Err: fmt.Errorf("malformed tool_requests block: %w", err)}
	}

	calls := make([]models.ToolCall, 0, len(parsed.Calls.Items))
	for _, node := range parsed.Calls.Items {
		name := strings.TrimSpace(node.Name)
		if name == "" {
			p.logger.Debug("skipping tool call with empty name")
			continue
		}
		args := map[string]string(node.Args)
		if args == nil {
			args = map[string]string{}
		}
		calls = append(calls, models.ToolCall{Name: name, Args: args})
	}
	if len(calls) == 0 {
		if call, ok := p.fallbackToolCall(block); ok {
			return ToolCallResult{OK: true, Calls: []models.ToolCall{call}}
		}
		return ToolCallResult{Err: fmt.Errorf("tool_requests block contains no well-formed calls")}
	}
	return ToolCallResult{OK: true, Calls: calls}
}

// fallbackToolCall recovers a single call by delimiter scan: the first
// <name> element names the tool, and simple <key>value</key> pairs inside
// <args> become the argument map.
func (p *Parser) fallbackToolCall(block string) (models.ToolCall, bool) {
	name, ok := scanElement(block, "name")
	if !ok || strings.TrimSpace(name) == "" {
		return models.ToolCall{}, false
	}
	args := map[string]string{}
	if argsBody, found := extractInner(block, "args"); found {
		for key, value := range scanSimpleElements(argsBody) {
			args[key] = value
		}
	}
	p.logger.Debug("recovered tool call via fallback scan", zap.String("tool", strings.TrimSpace(name)))
	return models.ToolCall{Name: strings.TrimSpace(name), Args: args, Fallback: true}, true
}

// ExtractPlan returns the plan described by a <plan> block, or nil when the
// block is absent or malformed. Objectives and deliverables are dash-prefixed
// lines; the dash is stripped.
func (p *Parser) ExtractPlan(text string) *models.Plan {
	block, found := extractBlock(text, tagPlan)
	if !found {
		return nil
	}
	var parsed planBlock
	if err := xml.Unmarshal([]byte(block), &parsed); err != nil {
		p.logger.Debug("plan block parse failed", zap.Error(err))
		return nil
	}
	plan := &models.Plan{
		ProjectName:  strings.TrimSpace(parsed.ProjectName),
		Description:  strings.TrimSpace(parsed.Description),
		Objectives:   parseDashList(parsed.Objectives),
		Deliverables: parseDashList(parsed.Deliverables),
	}
	if plan.ProjectName == "" {
		p.logger.Debug("plan block missing project_name")
		return nil
	}
	return plan
}

// ExtractTaskList returns the tasks of a <task_list> block, or nil when the
// block is absent, malformed, or empty. Unknown child tags of a <task>
// element are retained as named string fields.
func (p *Parser) ExtractTaskList(text string) []models.Task {
	block, found := extractBlock(text, tagTaskList)
	if !found {
		return nil
	}
	var parsed taskListBlock
	if err := xml.Unmarshal([]byte(block), &parsed); err != nil {
		p.logger.Debug("task_list block parse failed", zap.Error(err))
		return nil
	}
	tasks := make([]models.Task, 0, len(parsed.Tasks))
	for _, node := range parsed.Tasks {
		fields := map[string]string(node)
		task := models.Task{
			ID:             fields["id"],
			Name:           fields["name"],
			Description:    fields["description"],
			RequiredSkills: fields["required_skills"],
		}
		for key, value := range fields {
			switch key {
			case "id", "name", "description", "required_skills":
			default:
				if task.Fields == nil {
					task.Fields = map[string]string{}
				}
				task.Fields[key] = value
			}
		}
		if task.Name == "" && task.Description == "" {
			p.logger.Debug("skipping task with neither name nor description")
			continue
		}
		tasks = append(tasks, task)
	}
	if len(tasks) == 0 {
		return nil
	}
	return tasks
}

// ExtractCreateWorkerRequest returns the worker request described by a
// <create_worker_request> block. A request without a task_id is invalid and
// returns nil.
func (p *Parser) ExtractCreateWorkerRequest(text string) *models.WorkerRequest {
	body, found := extractInner(text, tagWorkerRequest)
	if !found {
		return nil
	}
	fields := scanSimpleElements(body)
	taskID := strings.TrimSpace(fields["task_id"])
	if taskID == "" {
		p.logger.Debug("create_worker_request missing task_id")
		return nil
	}
	return &models.WorkerRequest{
		TaskID:    taskID,
		Specialty: strings.TrimSpace(fields["specialty"]),
	}
}

// ExtractStateChange returns the state named by a <state_change> block.
// Unknown state names are rejected.
func (p *Parser) ExtractStateChange(text string) (models.State, bool) {
	body, found := extractInner(text, tagStateChange)
	if !found {
		return "", false
	}
	raw, ok := scanElement(body, "new_state")
	if !ok {
		return "", false
	}
	state, ok := models.ParseState(strings.ToLower(strings.TrimSpace(raw)))
	if !ok {
		p.logger.Debug("state_change names unknown state", zap.String("state", raw))
		return "", false
	}
	return state, true
}

// SerializeToolCalls renders calls in the wire format models are prompted to
// produce. Argument keys are emitted in sorted order.
func SerializeToolCalls(calls []models.ToolCall) string {
	var b strings.Builder
	b.WriteString("<tool_requests>\n  <calls>\n")
	for _, call := range calls {
		b.WriteString("    <tool_call>\n")
		fmt.Fprintf(&b, "      <name>%s</name>\n", call.Name)
		b.WriteString("      <args>\n")
		keys := make([]string, 0, len(call.Args))
		for key := range call.Args {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(&b, "        <%s>%s</%s>\n", key, call.Args[key], key)
		}
		b.WriteString("      </args>\n    </tool_call>\n")
	}
	b.WriteString("  </calls>\n</tool_requests>")
	return b.String()
}

// toolRequestsBlock mirrors the tool call wire shape.
type toolRequestsBlock struct {
	XMLName xml.Name `xml:"tool_requests"`
	Calls   struct {
		Items []toolCallNode `xml:"tool_call"`
	} `xml:"calls"`
}

type toolCallNode struct {
	Name string  `xml:"name"`
	Args elemMap `xml:"args"`
}

// planBlock mirrors the plan wire shape. Objectives and deliverables hold
// raw character data to be split into dash lines.
type planBlock struct {
	XMLName      xml.Name `xml:"plan"`
	ProjectName  string   `xml:"project_name"`
	Description  string   `xml:"description"`
	Objectives   string   `xml:"objectives"`
	Deliverables string   `xml:"deliverables"`
}

type taskListBlock struct {
	XMLName xml.Name  `xml:"task_list"`
	Tasks   []elemMap `xml:"task"`
}

// elemMap decodes arbitrary child elements into a name → trimmed-text map.
type elemMap map[string]string

func (m *elemMap) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	*m = elemMap{}
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			var value string
			if err := d.DecodeElement(&value, &el); err != nil {
				return err
			}
			(*m)[el.Name.Local] = strings.TrimSpace(value)
		case xml.EndElement:
			if el.Name.Local == start.Name.Local {
				return nil
			}
		}
	}
}

// extractBlock returns the first "<tag>…</tag>" substring including the tags.
func extractBlock(text, tag string) (string, bool) {
	open := "<" + tag + ">"
	close := "</" + tag + ">"
	start := strings.Index(text, open)
	if start < 0 {
		return "", false
	}
	end := strings.Index(text[start:], close)
	if end < 0 {
		return "", false
	}
	return text[start : start+end+len(close)], true
}

// extractInner returns the content between "<tag>" and "</tag>".
func extractInner(text, tag string) (string, bool) {
	block, found := extractBlock(text, tag)
	if !found {
		return "", false
	}
	open := "<" + tag + ">"
	close := "</" + tag + ">"
	return block[len(open) : len(block)-len(close)], true
}

// scanElement extracts the text of the first "<name>…</name>" element by
// plain delimiter scan. Used by the degraded fallback path where the XML
// decoder has already refused the block.
func scanElement(text, name string) (string, bool) {
	open := "<" + name + ">"
	close := "</" + name + ">"
	start := strings.Index(text, open)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(open):]
	end := strings.Index(rest, close)
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// scanSimpleElements walks flat "<key>value</key>" pairs by delimiter scan.
// Nested or unterminated elements are skipped rather than failing the scan.
func scanSimpleElements(text string) map[string]string {
	result := map[string]string{}
	rest := text
	for {
		lt := strings.Index(rest, "<")
		if lt < 0 {
			break
		}
		gt := strings.Index(rest[lt:], ">")
		if gt < 0 {
			break
		}
		name := rest[lt+1 : lt+gt]
		if name == "" || strings.HasPrefix(name, "/") || strings.ContainsAny(name, " <\n\t") {
			rest = rest[lt+gt+1:]
			continue
		}
		close := "</" + name + ">"
		body := rest[lt+gt+1:]
		end := strings.Index(body, close)
		if end < 0 {
			rest = body
			continue
		}
		result[name] = strings.TrimSpace(body[:end])
		rest = body[end+len(close):]
	}
	return result
}

// parseDashList splits raw list text into items: every line beginning with a
// dash contributes one item with the dash stripped.
func parseDashList(raw string) []string {
	var items []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "-") {
			continue
		}
		item := strings.TrimSpace(strings.TrimPrefix(trimmed, "-"))
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
