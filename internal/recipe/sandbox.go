package recipe

import (
	lua "github.com/yuin/gopher-lua"
)

// sandboxLuaVM strips a Lua VM down to declarative use. Recipes describe
// what to track; they must not run commands, touch the filesystem, or pull
// in code:
//   - os and io are removed entirely
//   - require/dofile/loadfile/load/loadstring are removed
//   - debug is removed (it can reach around the other restrictions)
//
// string, table, math, and the basic utilities (type, tostring, tonumber,
// pairs, ipairs) stay available.
func sandboxLuaVM(L *lua.LState) {
	L.SetGlobal("os", lua.LNil)
	L.SetGlobal("io", lua.LNil)

	L.SetGlobal("require", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)

	L.SetGlobal("debug", lua.LNil)
}

// newSandboxedVM creates the Lua state recipe evaluation runs in.
func newSandboxedVM() *lua.LState {
	L := lua.NewState()
	sandboxLuaVM(L)
	return L
}
