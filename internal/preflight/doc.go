// Package preflight provides readiness checks for filesystem paths, media
// tools, and platform credentials that Herald depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before starting the processor. Critical
//     failures abort startup; the rest are logged as warnings.
//   - The CLI "herald doctor" command prints RunAll plus CheckPlatforms,
//     which contacts each enabled platform to verify its token.
//
// Each platform check is gated by its enabled toggle.
package preflight
