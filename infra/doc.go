// Package infra holds the adapters that connect the simulation to the
// outside world: logging, metrics sinks, MQTT and Sentry. Adapters depend
// on the interfaces of the core packages, never the other way around.
package infra
