// Package config loads psresget settings using Viper.
//
// Settings come from $XDG_CONFIG_HOME/psresget/config.toml (defaulting to
// ~/.config/psresget/config.toml), overlaid by PSRESGET_* environment
// variables, where nested keys use underscores: PSRESGET_CACHE_BACKEND,
// PSRESGET_PATHS_CURRENT_USER_MODULES. A missing config file means defaults.
//
// The scope (CurrentUser or AllUsers) picks the module and script roots an
// install writes to. Every other configured module root is still scanned so
// packages installed in another scope count as satisfied.
package config
