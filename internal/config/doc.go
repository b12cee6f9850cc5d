// Package config handles YAML configuration loading with environment
// variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable
// interpolation. All tunables that gate correctness (consumer concurrency,
// lease TTLs, retry bounds, invariant policy) are validated at startup.
package config
