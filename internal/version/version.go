// SPDX-License-Identifier: MIT

package version

var (
	// Version is populated by the build system via ldflags.
	Version = "v0.3.0"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)
