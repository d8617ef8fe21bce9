// Package command defines the canonical command envelope and contract used
// across the write path.
//
// Commands express caller intent before it reaches the domain deciders. The
// registry keeps validation in one place so deciders only see normalized
// envelopes with well-formed payloads.
package command
