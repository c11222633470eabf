package handlers

import (
	"net/http"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/agritutor/agritutor/internal/appid"
	"github.com/agritutor/agritutor/internal/prompt"
)

// Build metadata, injected from main via SetVersionInfo.
var (
	AppVersion   = "dev"
	AppCommit    = "unknown"
	AppBuildDate = "unknown"
	appIdentity  *appid.Identity
)

// SetVersionInfo sets the build metadata reported by VersionHandler.
func SetVersionInfo(version, commit, buildDate string) {
	AppVersion = version
	AppCommit = commit
	AppBuildDate = buildDate
}

// SetAppIdentity overrides the identity reported by VersionHandler.
func SetAppIdentity(identity *appid.Identity) {
	appIdentity = identity
}

// VersionResponse is the body of GET /version.
type VersionResponse struct {
	App          AppInfo      `json:"app"`
	Catalog      *CatalogInfo `json:"catalog,omitempty"`
	Dependencies DepInfo      `json:"dependencies"`
	Runtime      RuntimeInfo  `json:"runtime"`
}

type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// CatalogInfo identifies the prompt catalog the server is serving.
type CatalogInfo struct {
	Source     string `json:"source"`
	Categories int    `json:"categories"`
	Templates  int    `json:"templates"`
}

type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

// BuildVersionResponse assembles version metadata. catalog may be nil.
func BuildVersionResponse(r *http.Request, catalog *prompt.Catalog) VersionResponse {
	identity := appIdentity
	if identity == nil {
		identity, _ = appid.Get(r.Context())
	}

	deps := crucible.GetVersion()
	resp := VersionResponse{
		App: AppInfo{
			Name:      identity.BinaryName,
			Version:   AppVersion,
			Commit:    AppCommit,
			BuildDate: AppBuildDate,
			GoVersion: runtime.Version(),
		},
		Dependencies: DepInfo{
			Gofulmen: deps.Gofulmen,
			Crucible: deps.Crucible,
		},
		Runtime: RuntimeInfo{
			Platform:      runtime.GOOS + "/" + runtime.GOARCH,
			NumCPU:        runtime.NumCPU(),
			NumGoroutines: runtime.NumGoroutine(),
		},
	}
	if catalog != nil {
		resp.Catalog = &CatalogInfo{
			Source:     catalog.Source(),
			Categories: len(catalog.Categories()),
			Templates:  catalog.Len(),
		}
	}
	return resp
}

// VersionHandler serves GET /version without catalog details.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BuildVersionResponse(r, nil))
}

// CatalogVersionHandler serves GET /version including catalog details.
func CatalogVersionHandler(catalog *prompt.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, BuildVersionResponse(r, catalog))
	}
}
