// Package cli implements the sshmux command-line interface.
//
// Every command follows the same shape: load config, build one connection
// registry, connect the profiles it needs, do its work over the live
// transports, and close the registry on the way out.
//
// # Command Structure
//
//	sshmux profiles [list|import|save|remove]  - Manage connection profiles
//	sshmux status [profile...]                 - Connect and report status
//	sshmux exec <profile> -- <command>         - Run a command remotely
//	sshmux shell <profile>                     - Interactive shell with a PTY
//	sshmux ls|get|put <profile> ...            - File access over SFTP
//	sshmux metrics <profile>... [--watch]      - Host metrics
//	sshmux docker ps|start|stop|restart        - Containers on a host
//	sshmux secret set|delete|list              - Stored passwords
//	sshmux doctor [profile...]                 - Diagnose config, keys and hosts
//
// # Flag Handling
//
// Global flags (--config, --verbose, --no-color) are defined on the root
// command and available to all subcommands.
//
// Reconnection notices from the registry are printed to stderr while a
// command runs, so long-lived commands like shell and metrics --watch show
// when a dropped connection is being retried.
package cli
