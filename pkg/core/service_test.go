package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/brewing/pkg/core"
)

// MockProjectStore implements core.ProjectStore in memory.
type MockProjectStore struct {
	project core.Project
	updates int
}

func (m *MockProjectStore) GetProject(ctx context.Context) (core.Project, error) {
	return m.project, nil
}

func (m *MockProjectStore) UpdateProject(ctx context.Context, update core.ProjectUpdate) (core.Project, error) {
	m.updates++
	m.project.Onboarded = update.Onboarded
	if update.Name != nil {
		m.project.Name = *update.Name
	}
	return m.project, nil
}

func TestProjectService_Onboard(t *testing.T) {
	store := &MockProjectStore{project: core.Project{ID: "p1"}}
	service := core.NewProjectService(store)
	ctx := context.TODO()

	// 1. Default name on read
	p, err := service.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if p.Name != core.DefaultProjectName {
		t.Errorf("expected default name, got '%s'", p.Name)
	}

	// 2. Not onboarded yet
	if _, err := service.RequireOnboarded(ctx); err == nil {
		t.Fatal("expected error for project that is not onboarded")
	}

	// 3. Onboard trims the name
	p, err = service.Onboard(ctx, "  Checkout  ")
	if err != nil {
		t.Fatalf("Onboard failed: %v", err)
	}
	if !p.Onboarded || p.Name != "Checkout" {
		t.Errorf("unexpected project after onboarding: %+v", p)
	}

	if _, err := service.RequireOnboarded(ctx); err != nil {
		t.Errorf("RequireOnboarded failed: %v", err)
	}
}

func TestProjectService_RejectsBlankName(t *testing.T) {
	store := &MockProjectStore{}
	service := core.NewProjectService(store)

	_, err := service.Onboard(context.TODO(), "   ")
	if !errors.Is(err, core.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}

	blank := ""
	_, err = service.Update(context.TODO(), core.ProjectUpdate{Name: &blank})
	if !errors.Is(err, core.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
	if store.updates != 0 {
		t.Errorf("store must not be called on invalid input, got %d calls", store.updates)
	}

	// Nil name keeps the current one
	if _, err := service.Update(context.TODO(), core.ProjectUpdate{Onboarded: true}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
}
