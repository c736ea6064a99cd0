package constants

// DefaultEnvPath is the default path to the .env file
const DefaultEnvPath = "./.env"

// DefaultConfigPath is the default path to the config.toml file
const DefaultConfigPath = "./config.toml"

// DefaultRulesPath is the default path to the compaction rules file
const DefaultRulesPath = "./rules.yml"

// DefaultDataDir is the default data directory for database files
const DefaultDataDir = "./data"
