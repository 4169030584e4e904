package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ProjectService handles the business logic of the project configuration
// consumed by the setup flow.
type ProjectService struct {
	store ProjectStore
}

// NewProjectService creates a new ProjectService.
func NewProjectService(store ProjectStore) *ProjectService {
	return &ProjectService{store: store}
}

// Get returns the project configuration, filling an empty name with
// DefaultProjectName.
func (s *ProjectService) Get(ctx context.Context) (Project, error) {
	p, err := s.store.GetProject(ctx)
	if err != nil {
		return Project{}, err
	}
	if p.Name == "" {
		p.Name = DefaultProjectName
	}
	return p, nil
}

// Onboard marks the project as onboarded under the given name.
func (s *ProjectService) Onboard(ctx context.Context, name string) (Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Project{}, fmt.Errorf("%w: project name cannot be empty", ErrValidationFailed)
	}
	return s.store.UpdateProject(ctx, ProjectUpdate{Onboarded: true, Name: &name})
}

// Update applies a raw update. A name that is present must not be blank.
func (s *ProjectService) Update(ctx context.Context, update ProjectUpdate) (Project, error) {
	if update.Name != nil {
		trimmed := strings.TrimSpace(*update.Name)
		if trimmed == "" {
			return Project{}, fmt.Errorf("%w: project name cannot be empty", ErrValidationFailed)
		}
		update.Name = &trimmed
	}
	return s.store.UpdateProject(ctx, update)
}

// RequireOnboarded fails when the project has not completed the setup flow.
func (s *ProjectService) RequireOnboarded(ctx context.Context) (Project, error) {
	p, err := s.Get(ctx)
	if err != nil {
		return Project{}, err
	}
	if !p.Onboarded {
		return p, errors.New("project is not onboarded")
	}
	return p, nil
}
