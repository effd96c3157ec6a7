// Package tunnel relays sentry envelopes from browsers to sentry. Browsers post
// envelopes to a same-origin endpoint and the tunnel forwards them to the
// sentry instance named by the dsn inside the envelope:
//   - the envelope is inspected only as far as needed to find its dsn, binary
//     items after the header lines are forwarded untouched
//   - only dsns whose host and project id are allow-listed are forwarded, so the
//     tunnel cannot be used as an open relay
//   - every envelope is forwarded at most once, failures go back to the client
//
// Requests without a content length or with more than 10 MB are rejected before
// their body is read.
package tunnel
