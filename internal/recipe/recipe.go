// Package recipe loads application recipes from sandboxed Lua files.
//
// A recipe file declares the applications to track in a global apps table:
//
//	apps = {
//	  {
//	    id = "firefox",
//	    strategy = "url-pattern",
//	    options = {
//	      url = "https://download.example.com/firefox/latest",
//	      pattern = [[releases/([\d.]+)/]],
//	    },
//	  },
//	}
//
// Recipes execute in a restricted VM with no os, io, or module loading. A
// read-only platform table is injected first, so recipes can branch on host
// OS, architecture, and distribution:
//
//	options = {
//	  url = platform.when(platform.is_arm64, arm_url) or intel_url,
//	}
//
// The parser only checks recipe structure. Whether a strategy name exists or
// its options are complete is decided by the source and extract registries
// when the run assembles its checks.
package recipe

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/platform"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/source"
	lua "github.com/yuin/gopher-lua"
)

// App is one tracked application as declared in a recipe file.
type App struct {
	// ID keys the application in the store and the journal.
	ID string
	// Strategy names the discovery strategy (see internal/source).
	Strategy string
	// Options configures the strategy. Values are flat strings; Lua numbers
	// and booleans are stringified.
	Options source.Options
	// ExtractMethod names the post-download version extractor, when the
	// recipe declares one (see internal/extract).
	ExtractMethod string
	// ExtractOptions configures the extractor.
	ExtractOptions source.Options
}

// Recipe is the parsed content of one recipe file.
type Recipe struct {
	Apps []App
}

// Validate rejects structural problems extraction cannot catch per-entry,
// currently duplicate application ids.
func (r *Recipe) Validate() error {
	seen := make(map[string]bool, len(r.Apps))
	for _, app := range r.Apps {
		if seen[app.ID] {
			return fmt.Errorf("duplicate application id %q", app.ID)
		}
		seen[app.ID] = true
	}
	return nil
}

// ParseError is a recipe loading failure with a user-facing message and the
// underlying technical detail.
type ParseError struct {
	Message string
	Detail  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// FormatError renders err for terminal display. Verbose keeps the full Lua
// detail; otherwise the stack traceback is trimmed away.
func FormatError(err error, verbose bool) string {
	parseErr, ok := err.(*ParseError)
	if !ok {
		return err.Error()
	}
	if verbose {
		return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
	}
	detail := parseErr.Detail
	if idx := strings.Index(detail, "stack traceback"); idx > 0 {
		detail = strings.TrimSpace(detail[:idx])
	}
	return fmt.Sprintf("%s: %s", parseErr.Message, detail)
}

// Parser evaluates recipe files against a detected platform.
type Parser struct {
	detector platform.Detector
}

// NewParser returns a parser that injects the platform table produced by
// detector. A nil detector skips injection (recipes using the platform table
// will then fail with an undefined-global error).
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector}
}

// ParseFile loads and parses the recipe file at path.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recipe file: %w", err)
	}
	rec, err := p.ParseString(ctx, string(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rec, nil
}

// ParseString parses recipe code held in memory.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Recipe, error) {
	L := newSandboxedVM()
	defer L.Close()

	if p.detector != nil {
		info, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, info); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		return nil, &ParseError{
			Message: "Lua error in recipe",
			Detail:  err.Error(),
		}
	}

	rec, err := extractRecipe(L)
	if err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, &ParseError{
			Message: "recipe validation failed",
			Detail:  err.Error(),
		}
	}
	return rec, nil
}

// extractRecipe pulls the global apps table out of the Lua state.
func extractRecipe(L *lua.LState) (*Recipe, error) {
	appsVal := L.GetGlobal("apps")
	if appsVal.Type() != lua.LTTable {
		return nil, &ParseError{
			Message: "missing or invalid 'apps' table",
			Detail:  fmt.Sprintf("expected table, got %s", appsVal.Type()),
		}
	}

	rec := &Recipe{}
	var entryErr error

	appsVal.(*lua.LTable).ForEach(func(key, value lua.LValue) {
		if entryErr != nil {
			return
		}
		// Platform conditionals leave no entry at all for the false branch,
		// so everything ForEach visits must be an app table.
		if value.Type() != lua.LTTable {
			entryErr = &ParseError{
				Message: "invalid app entry",
				Detail:  fmt.Sprintf("apps[%s] is a %s, expected a table", key.String(), value.Type()),
			}
			return
		}
		app, err := extractApp(key.String(), value.(*lua.LTable))
		if err != nil {
			entryErr = err
			return
		}
		rec.Apps = append(rec.Apps, app)
	})
	if entryErr != nil {
		return nil, entryErr
	}

	return rec, nil
}

// extractApp converts one app table. pos is the Lua-side key, used only for
// error context.
func extractApp(pos string, table *lua.LTable) (App, error) {
	app := App{}

	idVal := table.RawGetString("id")
	if idVal.Type() != lua.LTString || idVal.String() == "" {
		return App{}, &ParseError{
			Message: "invalid app entry",
			Detail:  fmt.Sprintf("apps[%s] has no id", pos),
		}
	}
	app.ID = idVal.String()

	stratVal := table.RawGetString("strategy")
	if stratVal.Type() != lua.LTString || stratVal.String() == "" {
		return App{}, &ParseError{
			Message: "invalid app entry",
			Detail:  fmt.Sprintf("app %q has no strategy", app.ID),
		}
	}
	app.Strategy = stratVal.String()

	opts, err := extractOptions(app.ID, "options", table.RawGetString("options"))
	if err != nil {
		return App{}, err
	}
	app.Options = opts

	if exVal := table.RawGetString("extract"); exVal.Type() != lua.LTNil {
		if exVal.Type() != lua.LTTable {
			return App{}, &ParseError{
				Message: "invalid app entry",
				Detail:  fmt.Sprintf("app %q extract is a %s, expected a table", app.ID, exVal.Type()),
			}
		}
		exTable := exVal.(*lua.LTable)

		methodVal := exTable.RawGetString("method")
		if methodVal.Type() != lua.LTString || methodVal.String() == "" {
			return App{}, &ParseError{
				Message: "invalid app entry",
				Detail:  fmt.Sprintf("app %q extract has no method", app.ID),
			}
		}
		app.ExtractMethod = methodVal.String()

		exOpts := source.Options{}
		var optErr error
		exTable.ForEach(func(key, value lua.LValue) {
			if optErr != nil || key.Type() != lua.LTString || key.String() == "method" {
				return
			}
			s, err := stringifyOption(app.ID, "extract", key.String(), value)
			if err != nil {
				optErr = err
				return
			}
			exOpts[key.String()] = s
		})
		if optErr != nil {
			return App{}, optErr
		}
		app.ExtractOptions = exOpts
	}

	return app, nil
}

// extractOptions converts an option table to flat strings. A missing table
// yields empty options; strategies decide at construction whether that is
// acceptable.
func extractOptions(appID, section string, val lua.LValue) (source.Options, error) {
	opts := source.Options{}
	if val.Type() == lua.LTNil {
		return opts, nil
	}
	if val.Type() != lua.LTTable {
		return nil, &ParseError{
			Message: "invalid app entry",
			Detail:  fmt.Sprintf("app %q %s is a %s, expected a table", appID, section, val.Type()),
		}
	}

	var optErr error
	val.(*lua.LTable).ForEach(func(key, value lua.LValue) {
		if optErr != nil {
			return
		}
		if key.Type() != lua.LTString {
			optErr = &ParseError{
				Message: "invalid app entry",
				Detail:  fmt.Sprintf("app %q %s has a non-string key %s", appID, section, key.String()),
			}
			return
		}
		s, err := stringifyOption(appID, section, key.String(), value)
		if err != nil {
			optErr = err
			return
		}
		opts[key.String()] = s
	})
	if optErr != nil {
		return nil, optErr
	}
	return opts, nil
}

// stringifyOption flattens a scalar Lua value. Tables and functions have no
// string form and are rejected rather than silently mangled.
func stringifyOption(appID, section, key string, value lua.LValue) (string, error) {
	switch value.Type() {
	case lua.LTString, lua.LTNumber, lua.LTBool:
		return value.String(), nil
	default:
		return "", &ParseError{
			Message: "invalid app entry",
			Detail: fmt.Sprintf("app %q %s.%s must be a string, number, or boolean, got %s",
				appID, section, key, value.Type()),
		}
	}
}
