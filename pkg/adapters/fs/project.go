package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/aretw0/brewing/pkg/core"
)

// GetProject reads the project file, creating it with defaults when missing.
func (r *Repository) GetProject(ctx context.Context) (core.Project, error) {
	r.wmu.Lock()
	defer r.wmu.Unlock()
	return r.loadProject()
}

// UpdateProject applies update to the project file.
func (r *Repository) UpdateProject(ctx context.Context, update core.ProjectUpdate) (core.Project, error) {
	r.wmu.Lock()
	defer r.wmu.Unlock()

	p, err := r.loadProject()
	if err != nil {
		return core.Project{}, err
	}
	p.Onboarded = update.Onboarded
	if update.Name != nil {
		p.Name = *update.Name
	}
	if err := writeJSONAtomic(r.projectPath(), p); err != nil {
		return core.Project{}, err
	}
	if err := r.commit(ctx, "chore: update project", filepath.Join(r.config.SystemDir, ProjectFile)); err != nil {
		return core.Project{}, err
	}
	return p, nil
}

func (r *Repository) loadProject() (core.Project, error) {
	data, err := os.ReadFile(r.projectPath())
	if os.IsNotExist(err) {
		p := core.Project{ID: uuid.NewString(), Name: core.DefaultProjectName}
		if err := os.MkdirAll(r.SystemPath(), 0755); err != nil {
			return core.Project{}, fmt.Errorf("failed to create project directory: %w", err)
		}
		if err := writeJSONAtomic(r.projectPath(), p); err != nil {
			return core.Project{}, err
		}
		r.logger.Debug("project file created", "path", r.projectPath())
		return p, nil
	}
	if err != nil {
		return core.Project{}, fmt.Errorf("failed to read project: %w", err)
	}

	var p core.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return core.Project{}, fmt.Errorf("%w: invalid project file: %v", core.ErrValidationFailed, err)
	}
	if p.Name == "" {
		p.Name = core.DefaultProjectName
	}
	return p, nil
}
