// Package backends implements detection and installation for each unit
// source kind: system packages (apt, brew, brew casks, snap), language
// packages (npm, pipx, uv, cargo, go, gem), binary downloads, git clones
// and installer scripts.
//
// Every backend runs external tools through a CommandRunner, so tests
// substitute a fake and nothing here touches the machine directly except
// the download and clone destinations.
//
// Package managers are queried once per run: the installed listing of each
// manager is cached and dropped after any install through that manager,
// so post-install verification sees fresh state.
package backends
