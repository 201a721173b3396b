package config

// Application constants
const (
	AppName = "datafilter"

	// EnvPrefix namespaces every environment variable, e.g.
	// DATAFILTER_OUTPUT_DIR or DATAFILTER_LOGGING_LEVEL.
	EnvPrefix = "DATAFILTER"

	// ConfigFileEnv names a config file explicitly.
	ConfigFileEnv = EnvPrefix + "_CONFIG"

	DefaultConfigFile = "datafilter.yaml"
	DotEnvFile        = ".env"
	DefaultOutputDir  = "."
	DefaultLogFile    = "logs/datafilter.log"

	OutlierScopeSession = "session"
	OutlierScopeCohort  = "cohort"
)

// configSearchPaths are tried in order when no config file is named.
var configSearchPaths = []string{
	DefaultConfigFile,
	"configs/" + DefaultConfigFile,
}
