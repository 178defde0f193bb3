package cli

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	versionpkg "github.com/mrz1836/hdscan/internal/version"
	scanerr "github.com/mrz1836/hdscan/pkg/errors"
)

// BuildInfo describes the running binary. Fields are set at link time.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

//nolint:gochecknoglobals // set once from main
var buildInfo BuildInfo

// releaseChecker looks up the latest release. Replaced in tests.
//
//nolint:gochecknoglobals // swapped by tests
var releaseChecker = func(ctx context.Context, current string) (*versionpkg.Status, error) {
	return versionpkg.NewClient().Check(ctx, current)
}

// SetBuildInfo records the link-time version information.
func SetBuildInfo(info BuildInfo) {
	buildInfo = info
}

func formatVersion(info BuildInfo) string {
	v, commit, date := info.Version, info.Commit, info.Date
	if v == "" {
		v = "dev"
	}
	if commit == "" {
		commit = "unknown"
	}
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", v, commit, date)
}

type versionOutput struct {
	BuildInfo
	GoVersion string             `json:"go_version"`
	Platform  string             `json:"platform"`
	Update    *versionpkg.Status `json:"update,omitempty"`
}

func newVersionCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := GetCmdContext(cmd)

			res := versionOutput{
				BuildInfo: buildInfo,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}
			if res.Version == "" {
				res.Version = "dev"
			}

			if check {
				ctx, cancel := contextWithTimeout(cmd, 15*time.Second)
				defer cancel()

				st, err := releaseChecker(ctx, res.Version)
				if err != nil {
					return scanerr.WithSuggestion(scanerr.WithCause(scanerr.ErrGeneral, err),
						"check your network connection or try again later")
				}
				res.Update = st
			}

			if cc.Formatter.IsJSON() {
				return cc.Formatter.Print(res)
			}

			w := cmd.OutOrStdout()
			out(w, "hdscan %s\n", formatVersion(buildInfo))
			out(w, "%s %s\n", res.GoVersion, res.Platform)
			if res.Update != nil {
				if res.Update.IsNewer {
					out(w, "A newer release is available: %s %s\n", res.Update.Latest, res.Update.URL)
				} else {
					out(w, "Up to date (latest release %s)\n", res.Update.Latest)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "check GitHub for a newer release")

	return cmd
}
