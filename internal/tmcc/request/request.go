// Package request implements the CommandRequest type and its wire codec:
// the normalized in-memory representation of a single primitive TMCC1 or
// TMCC2/Legacy command (spec §3/§4.2).
package request

import (
	"github.com/pytrain/pytrain/internal/tmcc"
	"github.com/pytrain/pytrain/internal/tmcc/catalog"
)

// CommandRequest is the normalized representation of one primitive
// command, whether built locally for transmission or decoded off the
// wire.
type CommandRequest struct {
	Command *catalog.Def
	Address int
	Data    int
	Scope   tmcc.Scope

	// AliasOf holds the semantic alias name this request was constructed
	// or decoded under (e.g. "RESET"), so higher layers can match on
	// intent even though Command/Data reflect the dereferenced target.
	AliasOf string
}

// IsHalt reports whether this request is the global HALT command.
func (r *CommandRequest) IsHalt() bool {
	return r.Command != nil && r.Command.Name == "HALT"
}

// IsSystemHalt reports whether this request is SYSTEM_HALT.
func (r *CommandRequest) IsSystemHalt() bool {
	return r.Command != nil && r.Command.Name == "SYSTEM_HALT"
}

// IsBroadcast reports whether Address is the scope's reserved broadcast
// address (spec §4.6).
func (r *CommandRequest) IsBroadcast() bool {
	return r.Address == tmcc.BroadcastAddress
}

// IsFiltered reports whether the underlying catalog entry is marked
// filtered (spec §3/§4.6): suppressed when both the Base-3 TCP listener
// and the serial listener are live, to avoid double-counting an echoed
// command.
func (r *CommandRequest) IsFiltered() bool {
	return r.Command != nil && r.Command.Filtered
}

// Name returns the semantic alias name if one was recorded, else the
// underlying catalog command's name.
func (r *CommandRequest) Name() string {
	if r.AliasOf != "" {
		return r.AliasOf
	}
	if r.Command == nil {
		return ""
	}
	return r.Command.Name
}
