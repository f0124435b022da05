// Package publish posts content to social platforms through one contract.
//
// Every binding implements Publisher and reports outcomes as a Result, never
// as a Go error. HTTP status codes, API error envelopes, transport failures,
// and malformed responses are folded into Result.Error plus a Retryable flag
// so the workflow can decide between rescheduling and giving up without
// knowing which platform it talked to.
//
// A successful Publish is an irreversible external action. Nothing here
// retries a publish call; the only internal polling is Instagram's container
// readiness check, which happens before anything becomes visible.
package publish
