package models

import (
	"fmt"
	"strings"
)

// Plan is the project decomposition artifact an admin agent produces to hand
// a project to a project manager.
type Plan struct {
	ProjectName  string   `json:"project_name"`
	Description  string   `json:"description"`
	Objectives   []string `json:"objectives"`
	Deliverables []string `json:"deliverables"`
}

// FormatForManager renders the plan as the user-role message appended to a
// freshly created project manager's history.
func (p Plan) FormatForManager() string {
	var b strings.Builder
	fmt.Fprintf(&b, "New project plan: %s\n", p.ProjectName)
	if p.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", p.Description)
	}
	if len(p.Objectives) > 0 {
		b.WriteString("Objectives:\n")
		for _, o := range p.Objectives {
			fmt.Fprintf(&b, "- %s\n", o)
		}
	}
	if len(p.Deliverables) > 0 {
		b.WriteString("Deliverables:\n")
		for _, d := range p.Deliverables {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}
	b.WriteString("Break this plan down into a concrete task list for your team.")
	return b.String()
}

// Task is one unit of work a project manager assigns to a worker.
type Task struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	RequiredSkills string `json:"required_skills,omitempty"`

	// Fields carries any additional tags found under the <task> element.
	Fields map[string]string `json:"fields,omitempty"`
}

// FormatForWorker renders the task as the user-role message appended to the
// worker that picks it up.
func (t Task) FormatForWorker() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[TASK %s] %s\n", t.ID, t.Name)
	if t.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", t.Description)
	}
	if t.RequiredSkills != "" {
		fmt.Fprintf(&b, "Required skills: %s\n", t.RequiredSkills)
	}
	b.WriteString("Complete this task and report the result.")
	return b.String()
}

// WorkerRequest asks the agent manager for a new specialist worker.
type WorkerRequest struct {
	TaskID    string `json:"task_id"`
	Specialty string `json:"specialty,omitempty"`
}
