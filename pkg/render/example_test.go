package render_test

import (
	"fmt"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
	"github.com/andrew-tomago/dotfiles/pkg/render"
)

// Example_zsh shows the shell startup file rendered for two present units.
func Example_zsh() {
	a, err := render.NewArtifact("shell-config", "/tmp/env.zsh", "zsh", []string{"converge shell config"})
	if err != nil {
		fmt.Println(err)
		return
	}

	caps := engine.NewCapabilitySet(
		engine.Unit{
			ID:    "go",
			Kind:  engine.KindSystemPackage,
			Shell: engine.ShellFragment{Path: []string{"~/go/bin"}, Env: map[string]string{"GOPATH": "$HOME/go"}},
		},
		engine.Unit{
			ID:    "neovim",
			Kind:  engine.KindSystemPackage,
			Shell: engine.ShellFragment{Aliases: map[string]string{"vim": "nvim"}, Env: map[string]string{"EDITOR": "nvim"}},
		},
	)

	fmt.Print(string(a.Content(caps)))

	// Output:
	// # converge shell config
	//
	// typeset -U path PATH
	//
	// # go
	// path=("$HOME/go/bin" $path)
	// export GOPATH="$HOME/go"
	//
	// # neovim
	// export EDITOR="nvim"
	// alias vim='nvim'
}
