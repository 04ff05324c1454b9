// Package logx is reminderd's logging layer: a small field-based wrapper over
// zerolog. Console output is human readable, the optional log file is JSON,
// and both can be swapped at runtime when the config is reloaded.
package logx
