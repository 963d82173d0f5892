package jobs

import (
	"sort"
)

// Kind selects how a job is routed through the broker
type Kind string

const (
	// KindTask is delivered to exactly one consumer through a named queue
	KindTask Kind = "task"
	// KindEvent is broadcast through a fanout exchange to every subscriber
	KindEvent Kind = "event"
)

// Job names
const (
	HealthCheck                    = "health-check"
	DockerHealthCheck              = "docker-health-check"
	OnDockUnhealthy                = "on-dock-unhealthy"
	DockExistsCheck                = "dock.exists-check"
	DockLost                       = "dock.lost"
	DockRemoved                    = "dock.removed"
	DockDiskFilled                 = "dock.disk.filled"
	DockImagesRemove               = "dock.images.remove"
	DockVolumesRemove              = "dock.volumes.remove"
	ImagePush                      = "image.push"
	ImageRemove                    = "image.remove"
	DockImagePush                  = "dock.image.push"
	DockImageRemove                = "dock.image.remove"
	VolumeRemove                   = "volume.remove"
	DockVolumeRemove               = "dock.volume.remove"
	ASGCheckCreated                = "asg.check-created"
	OrganizationCreated            = "organization.created"
	DockerEventsStreamDisconnected = "docker.events-stream.disconnected"
)

// Definition describes one registered job name
type Definition struct {
	Name       string
	Kind       Kind
	newPayload func() any
}

// NewPayload returns a pointer to a zero payload of the job's schema type
func (d Definition) NewPayload() any {
	return d.newPayload()
}

// Route returns the exchange and routing key a job is published with
func (d Definition) Route() (exchange, routingKey string) {
	if d.Kind == KindEvent {
		return d.Name, ""
	}
	return "", d.Name
}

func task[T any](name string) Definition {
	return Definition{Name: name, Kind: KindTask, newPayload: func() any { return new(T) }}
}

func event[T any](name string) Definition {
	return Definition{Name: name, Kind: KindEvent, newPayload: func() any { return new(T) }}
}

var catalogue = func() map[string]Definition {
	defs := []Definition{
		task[Empty](HealthCheck),
		task[DockerHealthCheckPayload](DockerHealthCheck),
		task[DockPayload](OnDockUnhealthy),
		task[DockPayload](DockExistsCheck),
		event[DockPayload](DockLost),
		event[DockPayload](DockRemoved),
		event[HostPayload](DockDiskFilled),
		task[HostPayload](DockImagesRemove),
		task[HostPayload](DockVolumesRemove),
		task[ImagePayload](ImagePush),
		task[ImagePayload](ImageRemove),
		task[ImagePayload](DockImagePush),
		task[ImagePayload](DockImageRemove),
		task[VolumePayload](VolumeRemove),
		task[VolumePayload](DockVolumeRemove),
		task[OrganizationPayload](ASGCheckCreated),
		event[OrganizationPayload](OrganizationCreated),
		event[DisconnectedPayload](DockerEventsStreamDisconnected),
	}

	m := make(map[string]Definition, len(defs))
	for _, def := range defs {
		if _, dup := m[def.Name]; dup {
			panic("jobs: duplicate definition " + def.Name)
		}
		m[def.Name] = def
	}
	return m
}()

// Lookup returns the definition registered for name
func Lookup(name string) (Definition, bool) {
	def, ok := catalogue[name]
	return def, ok
}

// MustLookup is Lookup for wiring code; an unknown name is a programming error
func MustLookup(name string) Definition {
	def, ok := catalogue[name]
	if !ok {
		panic("jobs: unknown job " + name)
	}
	return def
}

// Catalogue returns every definition sorted by name
func Catalogue() []Definition {
	defs := make([]Definition, 0, len(catalogue))
	for _, def := range catalogue {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}
