// Package hunt implements the investigation pipeline: a fixed graph of
// analysis stages (collect, intel, hypothesis, query build, detect,
// correlate, respond) driven by an Engine over a shared investigation State.
// It defines the Service (run lifecycle, notification), Engine (stage
// dispatch and routing), the stage implementations, and the domain models.
package hunt
