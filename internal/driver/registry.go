package driver

// Registry resolves a job source to its driver. The set is closed: drivers
// are registered at construction and unknown sources fail fast.
type Registry struct {
	drivers map[string]Driver
}

// NewRegistry builds a registry over the given drivers, keyed by Source().
func NewRegistry(drivers ...Driver) *Registry {
	m := make(map[string]Driver, len(drivers))
	for _, d := range drivers {
		m[d.Source()] = d
	}
	return &Registry{drivers: m}
}

// Resolve returns the driver for source, or *UnsupportedSiteError.
func (r *Registry) Resolve(source string) (Driver, error) {
	d, ok := r.drivers[source]
	if !ok {
		return nil, &UnsupportedSiteError{Source: source}
	}
	return d, nil
}

// Sources lists the registered driver keys.
func (r *Registry) Sources() []string {
	out := make([]string, 0, len(r.drivers))
	for k := range r.drivers {
		out = append(out, k)
	}
	return out
}
