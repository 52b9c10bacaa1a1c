// Package requestor is a client for the requestor API of an IRMA server. With it, a requestor
// starts disclosure, signature and issuance sessions, follows their status, cancels them, and
// fetches their results.
//
// The client performs exactly one HTTP request per call. It never polls or retries by itself:
// callers that wait for a session to finish call Result repeatedly, treating errors for which
// irma.IsNotFinished returns true as "try again later".
package requestor
