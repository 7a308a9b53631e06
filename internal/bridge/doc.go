// Package bridge shares a locally attached door radio over the network.
//
// The HC-12 module usually hangs off a small machine near the coop while the
// controller runs elsewhere. "coopctl bridge" opens the serial radio and
// serves it at ws://host:port/radio: each binary WebSocket message is one
// radio frame, relayed unchanged in both directions. The bridge adds no
// reliability of its own; retries and acknowledgments stay end to end
// between controller and door.
//
// The radio is half-duplex and shared, so exactly one controller may be
// connected at a time. Further clients receive HTTP 409 Conflict until the
// first disconnects.
//
// # Endpoints
//
//   - /radio: WebSocket frame relay
//   - /healthz: plain text liveness and client count
//   - /metrics: Prometheus metrics (when enabled)
package bridge
