// Package hdm moves tabular data from sources to sinks as described by a YAML
// manifest, recording every pull and push in a persistent state ledger.
//
// # Architecture
//
// A run is built from four layers:
//
//  1. Adapters read from a source (files, S3 objects, MySQL or PostgreSQL
//     tables) or write to a sink (files, S3, GCS, MySQL, SQLite, PostgreSQL,
//     Snowflake). They register by type name in init().
//
//  2. Runners wrap one adapter each. The source runner skips entities that a
//     previous run already pulled and resumes database sources from their last
//     watermark. The sink runner writes a batch and reports the outcome. Both
//     write an in_progress ledger row before the work and settle it afterwards.
//
//  3. A data link pairs a source runner with a sink runner and drives the
//     steps of one pipeline.
//
//  4. The orchestrator builds links from the manifest, runs pressureless links
//     one at a time, then admits the rest concurrently up to the
//     back_pressure_factor while free memory allows.
//
// # Quick Start
//
//	hdm run manifests/fs_to_s3.yml -e prod
//
// Settings come from the environment:
//
//	HDM_HOME      directory holding .hashmap_data_migrator/hdm_profiles.yml
//	HDM_ENV       profile environment, dev when unset
//	HDM_MANIFEST  manifest used when none is passed on the command line
//
// A minimal manifest:
//
//	state_manager:
//	  connection: state_manager
//	  dao: sqlite
//	orchestrator:
//	  type: declared_orchestrator
//	declared_data_links:
//	  stages:
//	    - source:
//	        name: landing
//	        type: fs_chunk
//	        conf:
//	          directory: /data
//	          chunk: 100000
//	      sink:
//	        name: staged
//	        type: s3
//	        conf:
//	          connection: lake
//	          bucket_name: raw
//
// # Key Packages
//
//	pkg/ledger        - State ledger over a SQL backend
//	pkg/dao           - Ledger and adapter database backends
//	pkg/chunk         - CSV file splitting and archiving
//	pkg/runner        - Source and sink runners
//	pkg/datalink      - Source to sink pipelines
//	pkg/orchestrator  - Link construction and backpressure scheduling
//	pkg/connector     - Adapter contract, registry and implementations
//	pkg/config        - Settings, profiles and manifests
//	pkg/errors        - Structured error handling
//	pkg/logger        - Structured logging
//	pkg/metrics       - Prometheus collectors
//
// # Development
//
//	go test ./...
//	go run ./cmd/hdm list
package hdm
