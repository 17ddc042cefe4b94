// Package connector groups the adapters hdm reads from and writes to.
//
// # Layout
//
//   - core: the adapter contract. A Source discovers units of work and
//     fetches a batch per unit; a Sink writes a batch and reports the entity
//     it produced.
//
//   - registry: type name to factory lookup. Adapters self-register in init()
//     and the orchestrator builds them from manifest endpoints.
//
//   - base: connection helpers shared by database adapters, such as ordered
//     host strategies and retry policies.
//
//   - shared: CSV, SQL and object-store plumbing used by several adapters.
//
//   - sources: fs, fs_chunk, dummy, mysql, postgresql and s3.
//
//   - sinks: fs, s3, google (gcs), mysql, sqlite, postgresql,
//     snowflake_internal_stage and snowflake_copy.
//
// # Writing an Adapter
//
// Decode the endpoint conf in the factory and connect lazily:
//
//	func init() {
//		_ = registry.RegisterSink("my_sink", New)
//	}
//
//	func New(p core.Params) (core.Sink, error) {
//		var cfg Config
//		if err := p.Decode(&cfg); err != nil {
//			return nil, err
//		}
//		return &Sink{cfg: cfg, logger: p.Logger}, nil
//	}
//
// Return errors from the errors package. A config or capability error stops
// the link; anything else is recorded as a failed step and the link moves on.
package connector
