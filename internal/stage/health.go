package stage

// Health is the result of one handler's readiness probe.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy builds a passing probe result.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy builds a failing probe result with detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
