// Package printing decides, per print call, whether a ticket is printed on this
// device or handed to the shared print queue.
package printing

// Route is the outcome of a routing decision.
type Route string

const (
	RouteDirect         Route = "direct"
	RouteQueued         Route = "queued"
	RouteDirectDegraded Route = "direct_degraded"
)

// PrintRoutingConfig carries the two persisted routing flags.
type PrintRoutingConfig struct {
	IsPrintServer bool `json:"is_print_server"`
	UsePrintQueue bool `json:"use_print_queue"`
}

// Decide maps the flags onto a route:
//
//	is_print_server  use_print_queue  route
//	true             any              direct
//	false            true             queued
//	false            false            direct_degraded
//
// The degraded route still prints locally, even when no printer is attached.
func Decide(cfg PrintRoutingConfig) Route {
	switch {
	case cfg.IsPrintServer:
		return RouteDirect
	case cfg.UsePrintQueue:
		return RouteQueued
	default:
		return RouteDirectDegraded
	}
}

// PrintsLocally reports whether the route uses this device's printer.
func (r Route) PrintsLocally() bool {
	return r == RouteDirect || r == RouteDirectDegraded
}
