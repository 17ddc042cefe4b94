// Package config loads everything hdm needs before a run starts: the resolved
// process settings, the pipeline manifest and the connection profiles.
//
// # Settings
//
// Settings are resolved once from an explicit Snapshot of the environment,
// so nothing in hdm reads or mutates process environment variables after
// start-up:
//
//	settings := config.Resolve(config.Snapshot{HDMHome: "/opt/hdm", Env: "prod"})
//	settings.ProfileFile() // /opt/hdm/.hashmap_data_migrator/hdm_profiles.yml
//
// # Manifest
//
//	state_manager:
//	  connection: state_manager
//	  dao: sqlite
//	orchestrator:
//	  type: batch_orchestrator
//	  conf:
//	    back_pressure_factor: 2
//	declared_data_links:
//	  stages:
//	    - source: {name: source_name, type: fs_chunk, conf: {directory: /data, chunk: 1000}}
//	      sink: {name: sink_name, type: fs, conf: {directory: /data}}
//
// LoadManifest validates the document and reports every problem at once.
//
// # Profiles
//
// The profiles file maps environment → connection name → connection settings.
// Values may reference environment variables with the ${VAR_NAME} syntax:
//
//	dev:
//	  state_manager:
//	    database: /tmp/hdm_state.db
//	  mysql_src:
//	    host: localhost
//	    user: ${MYSQL_USER}
//	    password: ${MYSQL_PASSWORD}
//
// Adapters read their conf maps and profile entries into typed structs with
// Decode.
package config
