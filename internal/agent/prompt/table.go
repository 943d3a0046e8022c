// Package prompt builds the per-turn message list for an agent: the
// role-and-state system prompt from a configurable table, the agent's
// history trimmed to a token budget, and a trailing dynamic-context message.
package prompt

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
)

// Table is the static (role, state) → system prompt lookup plus the
// transition guidance lines and the tools description.
type Table struct {
	prompts          map[models.Role]map[models.State]string
	guidance         map[models.State]string
	toolsDescription string
}

// tableFile is the on-disk shape of config/prompts.json.
type tableFile struct {
	AdminPrompts     map[string]string `mapstructure:"admin_prompts"`
	PMPrompts        map[string]string `mapstructure:"pm_prompts"`
	WorkerPrompts    map[string]string `mapstructure:"worker_prompts"`
	GuardianPrompts  map[string]string `mapstructure:"guardian_prompts"`
	StateGuidance    map[string]string `mapstructure:"state_guidance"`
	ToolsDescription string            `mapstructure:"tools_description"`
}

// LoadTable reads the prompt table at path. A missing file falls back to the
// built-in defaults; file entries overlay the defaults so a partial file
// still yields a complete table.
func LoadTable(path string, log *logger.Logger) (*Table, error) {
	table := defaultTable()
	if path == "" {
		return table, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Info("prompt table not found, using built-in defaults", zap.String("path", path))
		return table, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read prompt table: %w", err)
	}

	var file tableFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("failed to parse prompt table: %w", err)
	}

	table.overlayRole(models.RoleAdmin, file.AdminPrompts)
	table.overlayRole(models.RoleManager, file.PMPrompts)
	table.overlayRole(models.RoleWorker, file.WorkerPrompts)
	table.overlayRole(models.RoleGuardian, file.GuardianPrompts)
	for name, line := range file.StateGuidance {
		if state, ok := models.ParseState(name); ok {
			table.guidance[state] = line
		} else {
			log.Warn("ignoring guidance for unknown state", zap.String("state", name))
		}
	}
	if file.ToolsDescription != "" {
		table.toolsDescription = file.ToolsDescription
	}
	return table, nil
}

func (t *Table) overlayRole(role models.Role, entries map[string]string) {
	if len(entries) == 0 {
		return
	}
	if t.prompts[role] == nil {
		t.prompts[role] = make(map[models.State]string)
	}
	for name, text := range entries {
		if state, ok := models.ParseState(name); ok {
			t.prompts[role][state] = text
		}
	}
}

// Prompt looks up the system prompt for a role in a state. A missing entry
// returns false; the assembler then emits an empty system prompt and the
// agent is driven by history alone.
func (t *Table) Prompt(role models.Role, state models.State) (string, bool) {
	states, ok := t.prompts[role]
	if !ok {
		return "", false
	}
	text, ok := states[state]
	return text, ok
}

// Guidance returns the one-line guidance attached to transition notices.
func (t *Table) Guidance(state models.State) string {
	if line, ok := t.guidance[state]; ok {
		return line
	}
	return "Proceed according to your role."
}

// ToolsDescription returns the static description of available tools that
// closes every assembled prompt.
func (t *Table) ToolsDescription() string {
	return t.toolsDescription
}
