package main

import (
	"fmt"
	"os"
	"time"

	"github.com/kjk/nstore/minioutil"
	"gopkg.in/yaml.v3"
)

// Config is read from a yaml file:
//
//	db: data/users.db
//	logDir: logs
//	verbose: true
//	syncWrites: false
//	ttl:
//	  field: updatedAt
//	  maxAge: 720h
//	backup:
//	  endpoint: s3.amazonaws.com
//	  bucket: my-backups
//	  access: ...
//	  secret: ...
//	  prefix: nstore/
type Config struct {
	DB         string `yaml:"db"`
	LogDir     string `yaml:"logDir"`
	Verbose    bool   `yaml:"verbose"`
	SyncWrites bool   `yaml:"syncWrites"`
	// max number of documents fetched concurrently by compaction
	CompactConcurrency int `yaml:"compactConcurrency"`

	TTL    *TTLConfig        `yaml:"ttl"`
	Backup *minioutil.Config `yaml:"backup"`
}

// TTLConfig makes compaction drop documents whose Field (unix time in
// seconds or RFC 3339 string) is older than MaxAge
type TTLConfig struct {
	Field  string        `yaml:"field"`
	MaxAge time.Duration `yaml:"maxAge"`
}

func parseConfig(d []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(d, &c); err != nil {
		return nil, err
	}
	if c.TTL != nil {
		if c.TTL.Field == "" {
			return nil, fmt.Errorf("ttl.field is not set")
		}
		if c.TTL.MaxAge <= 0 {
			return nil, fmt.Errorf("ttl.maxAge must be positive, is %s", c.TTL.MaxAge)
		}
	}
	return &c, nil
}

// readConfig returns an empty config if path doesn't exist and mustExist
// is false
func readConfig(path string, mustExist bool) (*Config, error) {
	d, err := os.ReadFile(path)
	if os.IsNotExist(err) && !mustExist {
		return &Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	c, err := parseConfig(d)
	if err != nil {
		return nil, fmt.Errorf("invalid config '%s': %w", path, err)
	}
	return c, nil
}
