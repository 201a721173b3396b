// Package config loads and validates datafilter's configuration.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Command-line flags (applied by the CLI after Load)
//	2. Environment variables
//	3. A YAML configuration file
//	4. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern DATAFILTER_* for namespacing:
//
//	DATAFILTER_CONFIG=/etc/datafilter.yaml
//	DATAFILTER_OUTPUT_DIR=results
//	DATAFILTER_OUTPUT_STD_DEV=true
//	DATAFILTER_OUTLIER_SCOPE=cohort
//	DATAFILTER_LOGGING_LEVEL=debug
//	DATAFILTER_METRICS_FILE=/var/lib/node_exporter/datafilter.prom
//
// # Configuration File
//
// Without an explicit path, datafilter.yaml and configs/datafilter.yaml are
// tried in turn:
//
//	output:
//	  dir: results
//	  bom: true
//	outlier:
//	  scope: cohort
//	tasks_file: tasks.yaml
//
// # Validation
//
// ValidateStruct applies `validate` struct tags with go-playground/validator.
// Besides the built-in rules it knows `regexp` (the field compiles as a Go
// regular expression) and `filename` (a plain file name without directory
// components). Field names in messages are the YAML keys.
package config
