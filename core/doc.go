// Package core contains the protocol-neutral dispatch runtime: the handler
// registry, parameter resolution, the interceptor chain and the two-phase
// dispatcher. Transport adapters depend on this package; core must not
// depend on any concrete protocol.
package core
