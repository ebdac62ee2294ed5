// Package buildinfo carries version data stamped with -ldflags -X.
package buildinfo

import "runtime/debug"

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

// Info returns the stamped values, falling back to the module and VCS data
// the Go toolchain embeds when nothing was stamped.
func Info() map[string]string {
    out := map[string]string{
        "version": Version,
        "commit":  Commit,
        "builtAt": BuiltAt,
    }
    bi, ok := debug.ReadBuildInfo()
    if !ok {
        return out
    }
    out["module"] = bi.Main.Path
    out["go"] = bi.GoVersion
    if Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
        out["version"] = bi.Main.Version
    }
    for _, s := range bi.Settings {
        switch s.Key {
        case "vcs.revision":
            if Commit == "" { out["commit"] = s.Value }
        case "vcs.time":
            if BuiltAt == "" { out["builtAt"] = s.Value }
        case "vcs.modified":
            out["dirty"] = s.Value
        }
    }
    return out
}
