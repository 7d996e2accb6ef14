package platform

import (
	lua "github.com/yuin/gopher-lua"
)

// InjectPlatformTable installs a read-only `platform` global into the Lua
// state so recipe files can branch on OS, architecture, and distribution.
// Call it before evaluating any recipe code.
func InjectPlatformTable(L *lua.LState, info *Info) error {
	tbl := L.NewTable()

	L.SetField(tbl, "os", lua.LString(info.OS))
	L.SetField(tbl, "arch", lua.LString(info.Arch))
	L.SetField(tbl, "arch_raw", lua.LString(info.ArchRaw))

	L.SetField(tbl, "is_linux", lua.LBool(info.IsLinux()))
	L.SetField(tbl, "is_macos", lua.LBool(info.IsMacOS()))
	L.SetField(tbl, "is_windows", lua.LBool(info.IsWindows()))

	L.SetField(tbl, "is_amd64", lua.LBool(info.IsAMD64()))
	L.SetField(tbl, "is_arm64", lua.LBool(info.IsARM64()))
	L.SetField(tbl, "is_apple_silicon", lua.LBool(info.IsAppleSilicon()))

	// distro is nil outside Linux so recipes can test for its presence.
	if distro := info.GetDistro(); distro != nil {
		dt := L.NewTable()
		L.SetField(dt, "id", lua.LString(distro.ID))
		L.SetField(dt, "family", lua.LString(distro.Family))
		L.SetField(dt, "version", lua.LString(distro.Version))
		L.SetField(tbl, "distro", dt)
	} else {
		L.SetField(tbl, "distro", lua.LNil)
	}

	if info.IsLinux() && info.Family != "" {
		L.SetField(tbl, "linux_family", lua.LString(info.Family))
	} else {
		L.SetField(tbl, "linux_family", lua.LNil)
	}

	L.SetField(tbl, "is_debian_family", lua.LBool(info.IsDebianFamily()))
	L.SetField(tbl, "is_rhel_family", lua.LBool(info.IsRHELFamily()))
	L.SetField(tbl, "is_fedora_family", lua.LBool(info.IsFedoraFamily()))
	L.SetField(tbl, "is_suse_family", lua.LBool(info.IsSUSEFamily()))
	L.SetField(tbl, "is_arch_family", lua.LBool(info.IsArchFamily()))
	L.SetField(tbl, "is_alpine", lua.LBool(info.IsAlpine()))
	L.SetField(tbl, "is_gentoo", lua.LBool(info.IsGentoo()))

	// when(condition, value) evaluates to value when the condition holds,
	// nil otherwise. Lets recipes write option tables inline:
	//   url = platform.when(platform.is_arm64, arm_url) or intel_url
	whenFunc := L.NewFunction(func(L *lua.LState) int {
		cond := L.CheckBool(1)
		value := L.Get(2)
		if cond {
			L.Push(value)
		} else {
			L.Push(lua.LNil)
		}
		return 1
	})
	L.SetField(tbl, "when", whenFunc)

	L.SetGlobal("platform", makeReadOnly(L, tbl))
	return nil
}

// makeReadOnly wraps a table in an empty proxy whose metatable redirects
// reads to the original and raises on any write. The metatable itself is
// protected from replacement.
func makeReadOnly(L *lua.LState, table *lua.LTable) *lua.LTable {
	mt := L.NewTable()
	L.SetField(mt, "__index", table)
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("platform table is read-only and cannot be modified")
		return 0
	}))
	L.SetField(mt, "__metatable", lua.LString("protected"))

	proxy := L.NewTable()
	L.SetMetatable(proxy, mt)
	return proxy
}
