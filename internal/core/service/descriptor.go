package service

import "strings"

// Layer describes which slice of Tascade's architecture a service belongs
// to: the HTTP transport, the core orchestration engine (C1-C7), the
// background sweep/cron layer, a storage backend, or the authentication
// boundary.
type Layer string

const (
	LayerTransport  Layer = "transport"
	LayerCore       Layer = "core"
	LayerBackground Layer = "background"
	LayerStorage    Layer = "storage"
	LayerSecurity   Layer = "security"
)

// Descriptor advertises a service's placement and capabilities. It is
// optional and does not change runtime behavior, but lets
// system.Manager.Descriptors (and anything reading it, such as startup
// logging) reason about registered components consistently.
type Descriptor struct {
	Name         string
	Domain       string
	Layer        Layer
	Capabilities []string
	RequiresAPIs []string
	DependsOn    []string
}

// WithCapabilities returns a copy of the descriptor with additional
// capabilities appended.
func (d Descriptor) WithCapabilities(caps ...string) Descriptor {
	if len(caps) == 0 {
		return d
	}
	combined := make([]string, 0, len(d.Capabilities)+len(caps))
	combined = append(combined, d.Capabilities...)
	combined = append(combined, caps...)
	d.Capabilities = combined
	return d
}

// WithRequires appends API surfaces this service expects a peer to expose,
// e.g. the httpapi service requires the engine surface it routes to.
func (d Descriptor) WithRequires(apis ...string) Descriptor {
	if len(apis) == 0 {
		return d
	}
	combined := make([]string, 0, len(d.RequiresAPIs)+len(apis))
	combined = append(combined, d.RequiresAPIs...)
	for _, api := range apis {
		if api = strings.TrimSpace(api); api != "" {
			combined = append(combined, api)
		}
	}
	d.RequiresAPIs = combined
	return d
}

// WithDependsOn appends the names of other registered services this one
// must be able to reach to function.
func (d Descriptor) WithDependsOn(deps ...string) Descriptor {
	if len(deps) == 0 {
		return d
	}
	combined := make([]string, 0, len(d.DependsOn)+len(deps))
	combined = append(combined, d.DependsOn...)
	for _, dep := range deps {
		if dep = strings.TrimSpace(dep); dep != "" {
			combined = append(combined, dep)
		}
	}
	d.DependsOn = combined
	return d
}
