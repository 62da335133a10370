package engine

import (
	"errors"
	"testing"
)

func TestNewCatalog_PreservesOrder(t *testing.T) {
	c := mustCatalog(t, pkg("zsh"), pkg("git"), pkg("fzf", "git"))

	ids := c.IDs()
	want := []string{"zsh", "git", "fzf"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, ids)
		}
	}

	if c.Index("fzf") != 2 {
		t.Errorf("Expected index 2 for fzf, got %d", c.Index("fzf"))
	}
	if c.Index("missing") != -1 {
		t.Errorf("Expected index -1 for unknown unit, got %d", c.Index("missing"))
	}
}

func TestNewCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		units []Unit
		code  string
	}{
		{"duplicate id", []Unit{pkg("git"), pkg("git")}, ErrCodeDuplicateUnit},
		{"empty id", []Unit{{Kind: KindSystemPackage}}, ErrCodeValidation},
		{"unknown kind", []Unit{{ID: "x", Kind: "flatpak"}}, ErrCodeValidation},
		{"unknown dependency", []Unit{pkg("fzf", "git")}, ErrCodeUnknownDependency},
		{"generated file without artifact", []Unit{{ID: "rc", Kind: KindGeneratedFile}}, ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.units...)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !IsConfiguration(err) {
				t.Errorf("Expected configuration error, got: %v", err)
			}
			var eerr *EngineError
			if !errors.As(err, &eerr) || eerr.Code != tt.code {
				t.Errorf("Expected code %s, got: %v", tt.code, err)
			}
		})
	}
}

func TestCatalog_IsImmutable(t *testing.T) {
	units := []Unit{pkg("git"), pkg("fzf", "git")}
	c := mustCatalog(t, units...)

	units[1].DependsOn[0] = "mutated"
	got, _ := c.Lookup("fzf")
	if got.DependsOn[0] != "git" {
		t.Errorf("Expected catalog to be unaffected by caller mutation, got %v", got.DependsOn)
	}

	got.DependsOn[0] = "mutated"
	again, _ := c.Lookup("fzf")
	if again.DependsOn[0] != "git" {
		t.Errorf("Expected Lookup to return a copy, got %v", again.DependsOn)
	}
}

func TestCatalog_GeneratedFileOrderedAfterContributors(t *testing.T) {
	rc := Unit{ID: "zshrc", Kind: KindGeneratedFile, Artifact: &ArtifactSpec{Path: "~/.zshrc", Format: "zsh"}}
	fnm := pkg("fnm")
	fnm.Shell = ShellFragment{Init: []string{`eval "$(fnm env)"`}}
	plain := pkg("jq")

	c := mustCatalog(t, rc, fnm, plain)
	got, _ := c.Lookup("zshrc")

	if len(got.After) != 1 || got.After[0] != "fnm" {
		t.Errorf("Expected zshrc to be ordered after fnm only, got %v", got.After)
	}
}

func TestCatalog_Select(t *testing.T) {
	node := pkg("node")
	node.After = []string{"zsh"}
	c := mustCatalog(t, pkg("zsh"), pkg("curl"), pkg("fnm", "curl"), node, pkg("jq"))

	sub, err := c.Select([]string{"fnm"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	ids := sub.IDs()
	if len(ids) != 2 || ids[0] != "curl" || ids[1] != "fnm" {
		t.Errorf("Expected [curl fnm], got %v", ids)
	}

	sub, err = c.Select([]string{"node"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	got, _ := sub.Lookup("node")
	if len(got.After) != 0 {
		t.Errorf("Expected order edge to unselected unit to be dropped, got %v", got.After)
	}

	if _, err := c.Select([]string{"nope"}); !IsConfiguration(err) {
		t.Errorf("Expected configuration error for unknown unit, got: %v", err)
	}
}
